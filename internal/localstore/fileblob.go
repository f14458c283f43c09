package localstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/catchsync/internal/errors"
)

// FileBlob stores each key as one file under a directory.
// Writes go through a temp file and rename so a crash never leaves a torn value.
type FileBlob struct {
	dir string
}

// NewFileBlob creates the directory if needed and returns a FileBlob rooted there.
func NewFileBlob(dir string) (*FileBlob, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.New(err).
			Component("localstore").
			Category(errors.CategoryFileIO).
			Context("operation", "create_blob_dir").
			Build()
	}
	return &FileBlob{dir: dir}, nil
}

// keyFileName maps a key such as "@fish/catches:v1" to a safe file name.
func keyFileName(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String() + ".json"
}

func (f *FileBlob) path(key string) string {
	return filepath.Join(f.dir, keyFileName(key))
}

func (f *FileBlob) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, ErrBlobNotFound
	}
	return data, err
}

func (f *FileBlob) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, ".blob-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, f.path(key))
}

func (f *FileBlob) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
