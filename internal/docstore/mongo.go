package docstore

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/saadabdullah098/networksecurity/internal/dataset"
	"github.com/saadabdullah098/networksecurity/internal/platform/env"
)

type MongoConfig struct {
	URL            string
	ConnectTimeout time.Duration
	AppName        string
}

// MongoConfigFromEnv reads NETSEC_MONGO_URL, falling back to MONGO_DB_URL.
func MongoConfigFromEnv() (MongoConfig, error) {
	timeout, err := env.Duration("NETSEC_MONGO_CONNECT_TIMEOUT", 10*time.Second)
	if err != nil {
		return MongoConfig{}, err
	}
	cfg := MongoConfig{
		URL:            env.String("NETSEC_MONGO_URL", env.String("MONGO_DB_URL", "")),
		ConnectTimeout: timeout,
		AppName:        env.String("NETSEC_MONGO_APP_NAME", "networksecurity"),
	}
	if err := cfg.Validate(); err != nil {
		return MongoConfig{}, err
	}
	return cfg, nil
}

func (c MongoConfig) Validate() error {
	if c.URL == "" {
		return pkgerrors.New("NETSEC_MONGO_URL is required")
	}
	if c.ConnectTimeout <= 0 {
		return pkgerrors.New("NETSEC_MONGO_CONNECT_TIMEOUT must be positive")
	}
	return nil
}

type MongoStore struct {
	client *mongo.Client
}

// OpenMongo connects and pings the primary. Connection failures wrap
// ErrUnavailable.
func OpenMongo(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := options.Client().
		ApplyURI(cfg.URL).
		SetAppName(cfg.AppName).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, pkgerrors.WithStack(fmt.Errorf("%w: connect: %v", ErrUnavailable, err))
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, pkgerrors.WithStack(fmt.Errorf("%w: ping: %v", ErrUnavailable, err))
	}
	return &MongoStore{client: client}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) FetchCollection(ctx context.Context, database, collection string) (*dataset.Frame, error) {
	coll := s.client.Database(database).Collection(collection)
	cur, err := coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, pkgerrors.WithStack(fmt.Errorf("%w: find %s.%s: %v", ErrUnavailable, database, collection, err))
	}
	defer cur.Close(ctx)

	var docs []Document
	for cur.Next(ctx) {
		var raw bson.D
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", database, collection, err)
		}
		docs = append(docs, fromBSON(raw))
	}
	if err := cur.Err(); err != nil {
		return nil, pkgerrors.WithStack(fmt.Errorf("%w: iterate %s.%s: %v", ErrUnavailable, database, collection, err))
	}
	return FrameFromDocuments(docs)
}

func (s *MongoStore) InsertRecords(ctx context.Context, database, collection string, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	batch := make([]interface{}, len(docs))
	for i, d := range docs {
		batch[i] = toBSON(d)
	}
	res, err := s.client.Database(database).Collection(collection).InsertMany(ctx, batch)
	if err != nil {
		return 0, pkgerrors.WithStack(fmt.Errorf("%w: insert into %s.%s: %v", ErrUnavailable, database, collection, err))
	}
	return len(res.InsertedIDs), nil
}

func fromBSON(raw bson.D) Document {
	doc := make(Document, 0, len(raw))
	for _, e := range raw {
		doc = append(doc, Field{Key: e.Key, Value: e.Value})
	}
	return doc
}

func toBSON(doc Document) bson.D {
	out := make(bson.D, 0, len(doc))
	for _, f := range doc {
		out = append(out, bson.E{Key: f.Key, Value: f.Value})
	}
	return out
}
