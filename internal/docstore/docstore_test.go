package docstore

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameFromDocumentsDropsIDAndNormalisesNA(t *testing.T) {
	docs := []Document{
		{{Key: "_id", Value: "abc"}, {Key: "having_IP_Address", Value: int32(-1)}, {Key: "Result", Value: "1"}},
		{{Key: "_id", Value: "def"}, {Key: "having_IP_Address", Value: "na"}, {Key: "Result", Value: int64(-1)}},
		{{Key: "Result", Value: 1.0}, {Key: "SSLfinal_State", Value: nil}},
	}
	f, err := FrameFromDocuments(docs)
	require.NoError(t, err)

	assert.Equal(t, []string{"having_IP_Address", "Result", "SSLfinal_State"}, f.Columns())
	assert.Equal(t, 3, f.NumRows())
	assert.Equal(t, -1.0, f.Row(0)[0])
	assert.True(t, math.IsNaN(f.Row(1)[0]))
	assert.Equal(t, -1.0, f.Row(1)[1])
	assert.True(t, math.IsNaN(f.Row(0)[2]))
	assert.True(t, math.IsNaN(f.Row(2)[0]))
	assert.Equal(t, 4, f.CountMissing())
}

func TestFrameFromDocumentsRejectsEmptyAndText(t *testing.T) {
	_, err := FrameFromDocuments(nil)
	require.ErrorIs(t, err, ErrEmptyCollection)

	_, err = FrameFromDocuments([]Document{{{Key: "a", Value: "phish"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "a"`)
}

func TestDocumentJSONKeepsOrder(t *testing.T) {
	doc := Document{{Key: "z", Value: 1.0}, {Key: "a", Value: math.NaN()}, {Key: "m", Value: "na"}}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"z":1,"a":null,"m":"na"}`, string(raw))
	assert.True(t, strings.Index(string(raw), `"z"`) < strings.Index(string(raw), `"a"`))

	var back Document
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Len(t, back, 3)
	assert.Equal(t, "z", back[0].Key)
	assert.Equal(t, json.Number("1"), back[0].Value)
	assert.Nil(t, back[1].Value)

	f, err := FrameFromDocuments([]Document{back})
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, f.Columns())
	assert.Equal(t, 1.0, f.Row(0)[0])
}

func TestDocumentRejectsNonObject(t *testing.T) {
	var d Document
	require.Error(t, json.Unmarshal([]byte(`[1,2]`), &d))
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, err := store.FetchCollection(ctx, "db", "phish")
	require.ErrorIs(t, err, ErrEmptyCollection)

	src, err := FrameFromDocuments([]Document{
		{{Key: "a", Value: 1.0}, {Key: "Result", Value: -1.0}},
		{{Key: "a", Value: nil}, {Key: "Result", Value: 1.0}},
	})
	require.NoError(t, err)
	n, err := store.InsertRecords(ctx, "db", "phish", DocumentsFromFrame(src))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.FetchCollection(ctx, "db", "phish")
	require.NoError(t, err)
	assert.Equal(t, src.Columns(), got.Columns())
	assert.True(t, math.IsNaN(got.Row(1)[0]))
}

func TestFileSourceDropsIDColumn(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "phish.csv"), []byte("_id,a,Result\n1,1,-1\n2,na,1\n"), 0o644))

	f, err := FileSource{Dir: dir}.FetchCollection(context.Background(), "ignored", "phish")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "Result"}, f.Columns())
	assert.True(t, math.IsNaN(f.Row(1)[0]))

	_, err = FileSource{Dir: dir}.FetchCollection(context.Background(), "ignored", "missing")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestPostgresQueries(t *testing.T) {
	assert.Contains(t, createDocumentsTableQuery, "body json NOT NULL")
	assert.Contains(t, insertDocumentQuery, "ON CONFLICT (document_id) DO NOTHING")
	assert.Contains(t, selectDocumentsQuery, "ORDER BY seq ASC")
	assert.Nil(t, NewPostgresStore(nil))
}

func TestMongoConfigValidate(t *testing.T) {
	require.Error(t, MongoConfig{}.Validate())
	require.NoError(t, MongoConfig{URL: "mongodb://localhost:27017", ConnectTimeout: 1}.Validate())
}

func TestBSONConversionKeepsOrder(t *testing.T) {
	doc := Document{{Key: "b", Value: 1.0}, {Key: "a", Value: "na"}}
	back := fromBSON(toBSON(doc))
	assert.Equal(t, doc, back)
}
