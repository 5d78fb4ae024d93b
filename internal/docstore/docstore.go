// Package docstore reads and writes raw phishing records in a document
// database. Every backend yields the same tabular view: the synthetic
// document id is dropped and the "na" sentinel becomes a missing value.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/saadabdullah098/networksecurity/internal/dataset"
)

// IDField is the per-document identifier stripped before use.
const IDField = "_id"

var (
	// ErrUnavailable marks a store that cannot be reached.
	ErrUnavailable = errors.New("document store unavailable")
	// ErrEmptyCollection is returned when a collection holds no documents.
	ErrEmptyCollection = errors.New("collection is empty")
)

type Field struct {
	Key   string
	Value any
}

// Document is an ordered list of fields.
type Document []Field

func (d Document) Get(key string) (any, bool) {
	for _, f := range d {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// MarshalJSON writes the fields as a JSON object in order. Non-finite
// numbers become null.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		v := f.Value
		if x, ok := v.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
			v = nil
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON keeps the key order of the object. Nested values decode
// with encoding/json defaults; numbers stay json.Number.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("document must be a JSON object")
	}
	out := Document{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		out = append(out, Field{Key: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}

// Source fetches every document of a collection as a frame.
type Source interface {
	FetchCollection(ctx context.Context, database, collection string) (*dataset.Frame, error)
}

// Sink appends documents to a collection and reports how many were written.
type Sink interface {
	InsertRecords(ctx context.Context, database, collection string, docs []Document) (int, error)
}

// FrameFromDocuments builds a frame whose columns are the union of document
// keys in first-seen order. Absent keys, nulls and "na" are missing values.
func FrameFromDocuments(docs []Document) (*dataset.Frame, error) {
	if len(docs) == 0 {
		return nil, pkgerrors.WithStack(ErrEmptyCollection)
	}
	var columns []string
	index := make(map[string]int)
	for _, doc := range docs {
		for _, f := range doc {
			if f.Key == IDField {
				continue
			}
			if _, ok := index[f.Key]; !ok {
				index[f.Key] = len(columns)
				columns = append(columns, f.Key)
			}
		}
	}

	rows := make([][]float64, len(docs))
	for i, doc := range docs {
		row := make([]float64, len(columns))
		for j := range row {
			row[j] = math.NaN()
		}
		for _, f := range doc {
			if f.Key == IDField {
				continue
			}
			v, err := toFloat(f.Value)
			if err != nil {
				return nil, fmt.Errorf("document %d field %q: %w", i, f.Key, err)
			}
			row[index[f.Key]] = v
		}
		rows[i] = row
	}
	return dataset.New(columns, rows)
}

// DocumentsFromFrame converts each row to a document. Missing values are
// stored as null.
func DocumentsFromFrame(f *dataset.Frame) []Document {
	columns := f.Columns()
	out := make([]Document, f.NumRows())
	for i := range out {
		row := f.Row(i)
		doc := make(Document, len(columns))
		for j, name := range columns {
			var v any
			if !math.IsNaN(row[j]) {
				v = row[j]
			}
			doc[j] = Field{Key: name, Value: v}
		}
		out[i] = doc
	}
	return out
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return strconv.ParseFloat(x.String(), 64)
	case string:
		return dataset.ParseCell(x)
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}
