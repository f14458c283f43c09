package localstore

import (
	"io"

	"github.com/tphakala/catchsync/internal/conf"
	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/logger"
)

// Open builds the Store selected by settings.Storage.Backend.
// The returned io.Closer releases the backend and is never nil.
func Open(settings *conf.Settings) (*BlobStore, io.Closer, error) {
	var (
		blob   Blob
		closer io.Closer = nopCloser{}
		err    error
	)

	switch settings.Storage.Backend {
	case conf.BackendMemory:
		blob = NewMemoryBlob()
	case conf.BackendFile:
		blob, err = NewFileBlob(settings.Storage.DataDir)
	case conf.BackendSQLite:
		var g *GormBlob
		g, err = OpenSQLiteBlob(settings.Storage.SQLite.Path)
		blob, closer = g, g
	case conf.BackendMySQL:
		var g *GormBlob
		g, err = OpenMySQLBlob(&settings.Storage.MySQL)
		blob, closer = g, g
	default:
		err = errors.Newf("unsupported storage backend %q", settings.Storage.Backend).
			Component("localstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return nil, nil, err
	}

	GetLogger().Debug("catch store opened", logger.String("backend", settings.Storage.Backend))
	return NewBlobStore(blob), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
