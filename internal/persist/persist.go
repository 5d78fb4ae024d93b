// Package persist reads and writes the on-disk forms used by pipeline
// stages: YAML reports, JSON objects and binary matrices.
package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// WriteFile writes data to path through a temporary sibling and a rename,
// creating parent directories as needed.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WithStack(err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.WithStack(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.WithStack(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.WithStack(err)
	}
	return nil
}

func WriteYAML(path string, v any) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errors.Wrapf(err, "encode yaml %s", path)
	}
	if err := enc.Close(); err != nil {
		return errors.Wrapf(err, "encode yaml %s", path)
	}
	return WriteFile(path, buf.Bytes())
}

func ReadYAML(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := yaml.Unmarshal(raw, v); err != nil {
		return errors.Wrapf(err, "decode yaml %s", path)
	}
	return nil
}

func SaveObject(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	return WriteFile(path, append(raw, '\n'))
}

func LoadObject(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}

// SaveMatrix stores m in gonum's binary encoding, which keeps every float64
// bit pattern including NaN.
func SaveMatrix(path string, m *mat.Dense) error {
	if m == nil || m.IsEmpty() {
		return fmt.Errorf("save matrix %s: matrix is empty", path)
	}
	raw, err := m.MarshalBinary()
	if err != nil {
		return errors.Wrapf(err, "encode matrix %s", path)
	}
	return WriteFile(path, raw)
}

func LoadMatrix(path string) (*mat.Dense, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var m mat.Dense
	if err := m.UnmarshalBinary(raw); err != nil {
		return nil, errors.Wrapf(err, "decode matrix %s", path)
	}
	return &m, nil
}
