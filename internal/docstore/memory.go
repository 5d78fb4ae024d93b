package docstore

import (
	"context"
	"sync"

	"github.com/saadabdullah098/networksecurity/internal/dataset"
)

// Memory is an in-process store, mainly for tests and dry runs.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]Document
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]Document)}
}

func memoryKey(database, collection string) string { return database + "/" + collection }

func (m *Memory) InsertRecords(ctx context.Context, database, collection string, docs []Document) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey(database, collection)
	m.data[key] = append(m.data[key], docs...)
	return len(docs), nil
}

func (m *Memory) FetchCollection(ctx context.Context, database, collection string) (*dataset.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	docs := append([]Document(nil), m.data[memoryKey(database, collection)]...)
	m.mu.RUnlock()
	return FrameFromDocuments(docs)
}
