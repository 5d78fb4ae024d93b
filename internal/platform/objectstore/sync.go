package objectstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type SyncResult struct {
	Uploaded int
	Skipped  int
}

// SyncDir uploads every file under dir to bucket/prefix/<relative path>.
// Objects whose size and ETag already match the local file are skipped.
func SyncDir(ctx context.Context, store Store, bucket, dir, prefix string) (SyncResult, error) {
	var res SyncResult
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(strings.Trim(prefix, "/"), filepath.ToSlash(rel))
		uploaded, err := syncFile(ctx, store, bucket, key, p)
		if err != nil {
			return fmt.Errorf("sync %s: %w", p, err)
		}
		if uploaded {
			res.Uploaded++
		} else {
			res.Skipped++
		}
		return nil
	})
	return res, err
}

func syncFile(ctx context.Context, store Store, bucket, key, p string) (bool, error) {
	f, err := os.Open(p)
	if err != nil {
		return false, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return false, err
	}

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if remote, err := store.Stat(ctx, bucket, key); err == nil {
		if remote.Size == info.Size() && strings.Trim(remote.ETag, `"`) == sum {
			return false, nil
		}
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	contentType := mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := store.Put(ctx, bucket, key, f, info.Size(), contentType); err != nil {
		return false, err
	}
	return true, nil
}

// FetchDir downloads every object under bucket/prefix into dir, keeping the
// key layout below prefix.
func FetchDir(ctx context.Context, store Store, bucket, prefix, dir string) (int, error) {
	prefix = strings.Trim(prefix, "/")
	objects, err := store.List(ctx, bucket, prefix+"/")
	if err != nil {
		return 0, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}
	n := 0
	for _, obj := range objects {
		rel := strings.TrimPrefix(strings.TrimPrefix(obj.Key, prefix), "/")
		if rel == "" || strings.Contains(rel, "..") {
			continue
		}
		if err := fetchObject(ctx, store, bucket, obj.Key, filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func fetchObject(ctx context.Context, store Store, bucket, key, dst string) error {
	rc, _, err := store.Get(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	defer rc.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
