package docstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"

	"github.com/saadabdullah098/networksecurity/internal/dataset"
)

// FileSource reads <Dir>/<collection>.csv and ignores the database name.
type FileSource struct {
	Dir string
}

func (s FileSource) FetchCollection(ctx context.Context, _ string, collection string) (*dataset.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.Dir, collection+".csv")
	f, err := dataset.ReadCSVFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, pkgerrors.WithStack(fmt.Errorf("%w: %s", ErrUnavailable, path))
		}
		return nil, err
	}
	if f.HasColumn(IDField) {
		if f, err = f.Drop(IDField); err != nil {
			return nil, err
		}
	}
	if f.NumRows() == 0 {
		return nil, pkgerrors.WithStack(ErrEmptyCollection)
	}
	return f, nil
}
