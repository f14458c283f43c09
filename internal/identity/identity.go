// Package identity answers "who is the current user" for the sync layer.
// An absent identity means the application runs in local-only mode.
package identity

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/logger"
)

// GetLogger returns the identity module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("identity")
}

// Resolver returns the current user id. CurrentID has no side effects.
type Resolver interface {
	CurrentID(ctx context.Context) (string, bool)
}

// Static always reports the same identity. An empty ID means none.
type Static string

func (s Static) CurrentID(context.Context) (string, bool) {
	id := strings.TrimSpace(string(s))
	return id, id != ""
}

// Func adapts a plain function to Resolver.
type Func func(ctx context.Context) (string, bool)

func (f Func) CurrentID(ctx context.Context) (string, bool) { return f(ctx) }

// Chain returns the identity of the first resolver that has one.
type Chain []Resolver

func (c Chain) CurrentID(ctx context.Context) (string, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if id, ok := r.CurrentID(ctx); ok {
			return id, true
		}
	}
	return "", false
}

// FileResolver keeps a user id in a small file under the data directory.
// It stands in for the session provider on hosts without one and also holds
// generated guest ids.
type FileResolver struct {
	mu   sync.RWMutex
	path string
}

// NewFileResolver returns a resolver backed by path. The file need not exist.
func NewFileResolver(path string) *FileResolver {
	return &FileResolver{path: path}
}

// Path returns the backing file path.
func (f *FileResolver) Path() string { return f.path }

func (f *FileResolver) CurrentID(ctx context.Context) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			GetLogger().Warn("failed to read identity file",
				logger.String("path", f.path),
				logger.Error(err))
		}
		return "", false
	}
	id := strings.TrimSpace(string(data))
	return id, id != ""
}

// SetID stores id as the current identity.
func (f *FileResolver) SetID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.Newf("user id must not be empty").
			Component("identity").
			Category(errors.CategoryValidation).
			Build()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := writeAtomic(f.path, []byte(id+"\n")); err != nil {
		return errors.New(err).
			Component("identity").
			Category(errors.CategoryIdentity).
			Context("operation", "set_id").
			Build()
	}
	GetLogger().Info("identity stored", logger.String("user_id", id))
	return nil
}

// Clear removes the stored identity. Clearing an absent identity is a no-op.
func (f *FileResolver) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.New(err).
			Component("identity").
			Category(errors.CategoryIdentity).
			Context("operation", "clear").
			Build()
	}
	return nil
}

// NewGuest generates and stores a random guest id.
func (f *FileResolver) NewGuest() (string, error) {
	id := "guest-" + uuid.NewString()
	if err := f.SetID(id); err != nil {
		return "", err
	}
	return id, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".identity-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
