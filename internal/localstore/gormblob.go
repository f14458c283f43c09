package localstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/catchsync/internal/conf"
	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/logger"
)

// kvBlob is the row holding one blob value.
type kvBlob struct {
	Key       string `gorm:"primaryKey;size:191"`
	Value     []byte `gorm:"type:longblob"`
	UpdatedAt time.Time
}

func (kvBlob) TableName() string { return "kv_blobs" }

// GormBlob stores blob values in a kv_blobs table through GORM.
type GormBlob struct {
	db *gorm.DB
}

const slowQueryThreshold = 200 * time.Millisecond

// OpenSQLiteBlob opens (or creates) the sqlite database at path.
func OpenSQLiteBlob(path string) (*GormBlob, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, storageOpenError(err, "sqlite")
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, storageOpenError(fmt.Errorf("failed to open SQLite database: %w", err), "sqlite")
	}
	return newGormBlob(db, "sqlite")
}

// OpenMySQLBlob connects to the configured MySQL database.
func OpenMySQLBlob(settings *conf.MySQLSettings) (*GormBlob, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		settings.Username, settings.Password, settings.Host, settings.Port, settings.Database)

	db, err := gorm.Open(mysql.Open(dsn), gormConfig())
	if err != nil {
		return nil, storageOpenError(fmt.Errorf("failed to open MySQL database: %w", err), "mysql")
	}
	return newGormBlob(db, "mysql")
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(GetLogger(), slowQueryThreshold),
	}
}

func newGormBlob(db *gorm.DB, dialect string) (*GormBlob, error) {
	if dialect == "sqlite" {
		if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			GetLogger().Warn("failed to enable WAL mode", logger.Error(err))
		}
	}
	if err := db.AutoMigrate(&kvBlob{}); err != nil {
		return nil, storageOpenError(fmt.Errorf("failed to migrate kv_blobs: %w", err), dialect)
	}
	return &GormBlob{db: db}, nil
}

func storageOpenError(err error, dialect string) error {
	return errors.New(&errors.StorageError{Op: "open", Err: err}).
		Component("localstore").
		Category(errors.CategoryStorage).
		Context("dialect", dialect).
		Build()
}

func (g *GormBlob) Get(ctx context.Context, key string) ([]byte, error) {
	var row kvBlob
	result := g.db.WithContext(ctx).Where("`key` = ?", key).Limit(1).Find(&row)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrBlobNotFound
	}
	return row.Value, nil
}

func (g *GormBlob) Set(ctx context.Context, key string, value []byte) error {
	row := kvBlob{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

func (g *GormBlob) Delete(ctx context.Context, key string) error {
	return g.db.WithContext(ctx).Where("`key` = ?", key).Delete(&kvBlob{}).Error
}

// Close releases the underlying connection pool.
func (g *GormBlob) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
