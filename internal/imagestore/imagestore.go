// Package imagestore keeps persistent copies of catch photos in the
// application's private image directory.
package imagestore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/logger"
	"github.com/tphakala/catchsync/internal/securefs"
)

const filePerm = 0o600

// GetLogger returns the imagestore module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("imagestore")
}

// Store copies images into a sandboxed directory. Every path handed out by
// Persist is absolute and lies inside that directory.
type Store struct {
	fs *securefs.SecureFS
}

// New opens (creating if needed) the image directory.
func New(dir string) (*Store, error) {
	sfs, err := securefs.New(dir)
	if err != nil {
		return nil, errors.New(err).
			Component("imagestore").
			Category(errors.CategoryFileIO).
			FileContext(dir, 0).
			Build()
	}
	return &Store{fs: sfs}, nil
}

// Dir returns the absolute image directory.
func (s *Store) Dir() string { return s.fs.BaseDir() }

// Persist copies the picked image at transientPath into the image directory and
// returns the absolute path of the copy. The source base name is kept; a short
// random suffix is added when that name is already taken.
func (s *Store) Persist(ctx context.Context, transientPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, err := os.Open(transientPath)
	if err != nil {
		return "", s.persistError(transientPath, err)
	}
	defer src.Close()

	target, err := s.targetPath(filepath.Base(transientPath))
	if err != nil {
		return "", s.persistError(transientPath, err)
	}

	n, err := s.fs.WriteFrom(target, src, filePerm)
	if err != nil {
		if rmErr := s.fs.Remove(target); rmErr != nil && !os.IsNotExist(rmErr) {
			GetLogger().Warn("failed to remove partial image copy",
				logger.String("path", target),
				logger.Error(rmErr))
		}
		return "", s.persistError(transientPath, err)
	}

	GetLogger().Debug("image persisted",
		logger.String("path", target),
		logger.Int64("bytes", n))
	return target, nil
}

func (s *Store) targetPath(base string) (string, error) {
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = uuid.NewString() + ".jpg"
	}

	candidate := filepath.Join(s.fs.BaseDir(), base)
	exists, err := s.fs.Exists(candidate)
	if err != nil {
		return "", err
	}
	if !exists {
		return candidate, nil
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(s.fs.BaseDir(), stem+"-"+uuid.NewString()[:8]+ext), nil
}

func (s *Store) persistError(src string, err error) error {
	return errors.New(&errors.StorageError{Op: "persist_image", Err: err}).
		Component("imagestore").
		Category(errors.CategoryStorage).
		FileContext(src, 0).
		Build()
}

// Exists reports whether the image at path is present. Paths outside the image
// directory report an error.
func (s *Store) Exists(path string) (bool, error) {
	return s.fs.Exists(path)
}

// Open opens the image for reading. A missing file yields a FileMissingError.
func (s *Store) Open(path string) (io.ReadCloser, error) {
	f, err := s.fs.Open(path)
	if os.IsNotExist(err) {
		return nil, &errors.FileMissingError{Path: path}
	}
	if err != nil {
		return nil, errors.New(err).
			Component("imagestore").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	return f, nil
}

// Remove deletes the image at path. An already missing file is not an error.
func (s *Store) Remove(path string) error {
	err := s.fs.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return errors.New(err).
		Component("imagestore").
		Category(errors.CategoryFileIO).
		FileContext(path, 0).
		Build()
}

// Serve writes the image named relPath (relative to Dir) to the response.
func (s *Store) Serve(c echo.Context, relPath string) error {
	return s.fs.ServeRelativeFile(c, relPath)
}

// Close releases the directory handle.
func (s *Store) Close() error {
	return s.fs.Close()
}
