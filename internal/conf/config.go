// Package conf loads catchsync settings from config.yaml, environment variables and defaults.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/logger"
)

// Settings contains all configuration options for catchsync.
type Settings struct {
	Debug bool `yaml:"debug"`

	API       APISettings          `yaml:"api"`
	Storage   StorageSettings      `yaml:"storage"`
	Sync      SyncSettings         `yaml:"sync"`
	Identity  IdentitySettings     `yaml:"identity"`
	Server    ServerSettings       `yaml:"server"`
	Metrics   MetricsSettings      `yaml:"metrics"`
	Telemetry TelemetrySettings    `yaml:"telemetry"`
	Notify    NotifySettings       `yaml:"notify"`
	Logging   logger.LoggingConfig `yaml:"logging"`
}

// APISettings describes the remote catch backend.
type APISettings struct {
	URL         string        `yaml:"url"`         // backend base URL, e.g. https://fish.example.com
	CreatePath  string        `yaml:"createpath"`  // multipart catch creation endpoint
	CatchesPath string        `yaml:"catchespath"` // catch collection resource
	Timeout     time.Duration `yaml:"timeout"`     // per-request timeout
	Token       string        `yaml:"token"`       // optional bearer token
	UserAgent   string        `yaml:"useragent"`
}

// StorageSettings selects the on-device storage medium.
type StorageSettings struct {
	Backend  string         `yaml:"backend"`  // file, sqlite, mysql or memory
	DataDir  string         `yaml:"datadir"`  // root for blob files and identity
	ImageDir string         `yaml:"imagedir"` // app-private catch image directory
	SQLite   SQLiteSettings `yaml:"sqlite"`
	MySQL    MySQLSettings  `yaml:"mysql"`
}

// SQLiteSettings configures the sqlite blob backend.
type SQLiteSettings struct {
	Path string `yaml:"path"`
}

// MySQLSettings configures the mysql blob backend.
type MySQLSettings struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// SyncSettings tunes the sync engine and the merged feed.
type SyncSettings struct {
	ListLimit    int           `yaml:"listlimit"`    // remote page size for the merged feed
	IdentityPoll time.Duration `yaml:"identitypoll"` // identity watcher interval, 0 disables
	CacheTTL     time.Duration `yaml:"cachettl"`     // lifetime of the last-known remote page
	OnStart      bool          `yaml:"onstart"`      // run a pass when the daemon starts
}

// IdentitySettings configures how the current user id is resolved.
type IdentitySettings struct {
	UserID string `yaml:"userid"` // static override, takes precedence over the stored id
	File   string `yaml:"file"`   // stored session/guest id, relative to DataDir
}

// ServerSettings configures the local HTTP API used by host applications.
type ServerSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MetricsSettings toggles the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool `yaml:"enabled"`
}

// TelemetrySettings configures Sentry error reporting.
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// NotifySettings groups outbound sync event notifications.
type NotifySettings struct {
	MQTT MQTTSettings `yaml:"mqtt"`
}

// MQTTSettings configures publishing of sync pass summaries.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"clientid"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Retain   bool   `yaml:"retain"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a Settings instance.
func Load() (*Settings, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file. An empty path searches the default locations.
func LoadFrom(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	settings.Storage.DataDir = expandPath(settings.Storage.DataDir)
	settings.Storage.ImageDir = resolveUnder(settings.Storage.DataDir, expandPath(settings.Storage.ImageDir))
	settings.Storage.SQLite.Path = resolveUnder(settings.Storage.DataDir, expandPath(settings.Storage.SQLite.Path))
	settings.Identity.File = resolveUnder(settings.Storage.DataDir, expandPath(settings.Identity.File))

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults, binds environment variables and reads the config file.
func initViper(configFile string) error {
	viper.SetConfigType("yaml")
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		logger.Global().Module("conf").Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return createDefaultConfig(configFile)
		}
		return readConfig()
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(filepath.Join(configPaths[0], "config.yaml"))
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

func readConfig() error {
	if err := viper.ReadInConfig(); err != nil {
		return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// createDefaultConfig writes the current defaults to configPath and reads them back.
func createDefaultConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("error marshaling default config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	logger.Global().Module("conf").Info("created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return readConfig()
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveSettings writes the current settings back to the active config file.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	if settingsInstance == nil {
		return errors.Newf("settings not loaded").
			Component("conf").
			Category(errors.CategoryState).
			Build()
	}

	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		var err error
		configPath, err = FindConfigFile()
		if err != nil {
			return err
		}
	}

	settingsCopy := *settingsInstance
	return SaveYAMLConfig(configPath, &settingsCopy)
}

// SaveYAMLConfig writes settings to configPath atomically.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
