package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper isolates each test from global viper state.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadFromCreatesDefaultConfig(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Setenv("CATCHSYNC_DATA_DIR", filepath.Join(dir, "data"))

	configPath := filepath.Join(dir, "config.yaml")
	settings, err := LoadFrom(configPath)
	require.NoError(t, err)

	assert.FileExists(t, configPath)
	assert.Equal(t, DefaultCreatePath, settings.API.CreatePath)
	assert.Equal(t, DefaultCatchesPath, settings.API.CatchesPath)
	assert.Equal(t, DefaultListLimit, settings.Sync.ListLimit)
	assert.Equal(t, 30*time.Second, settings.API.Timeout)
	assert.Equal(t, BackendFile, settings.Storage.Backend)
	assert.Equal(t, filepath.Join(dir, "data", "catches"), settings.Storage.ImageDir)
	assert.Equal(t, filepath.Join(dir, "data", "user_id"), settings.Identity.File)
	assert.Same(t, settings, GetSettings())
}

func TestLoadFromReadsYAML(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
api:
  url: https://fish.example.com/
  timeout: 5s
storage:
  backend: sqlite
  datadir: ` + dir + `
sync:
  listlimit: 50
identity:
  userid: angler-1
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o600))

	settings, err := LoadFrom(configPath)
	require.NoError(t, err)

	assert.Equal(t, "https://fish.example.com", settings.API.URL)
	assert.Equal(t, 5*time.Second, settings.API.Timeout)
	assert.Equal(t, BackendSQLite, settings.Storage.Backend)
	assert.Equal(t, filepath.Join(dir, "catchsync.db"), settings.Storage.SQLite.Path)
	assert.Equal(t, 50, settings.Sync.ListLimit)
	assert.Equal(t, "angler-1", settings.Identity.UserID)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("api:\n  url: https://a.example.com\n"), 0o600))

	t.Setenv("CATCHSYNC_API_URL", "https://b.example.com")
	t.Setenv("CATCHSYNC_DATA_DIR", dir)

	settings, err := LoadFrom(configPath)
	require.NoError(t, err)
	assert.Equal(t, "https://b.example.com", settings.API.URL)
}

func TestValidateSettings(t *testing.T) {
	valid := func() *Settings {
		return &Settings{
			API:     APISettings{URL: "https://fish.example.com", CreatePath: "fish/identify", CatchesPath: "/catches"},
			Storage: StorageSettings{Backend: BackendFile, DataDir: "/data", ImageDir: "/data/catches"},
			Sync:    SyncSettings{ListLimit: 200},
			Server:  ServerSettings{Enabled: true, Listen: "127.0.0.1:8765"},
		}
	}

	s := valid()
	require.NoError(t, ValidateSettings(s))
	assert.Equal(t, "/fish/identify", s.API.CreatePath)

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"relative api url", func(s *Settings) { s.API.URL = "fish.example.com" }},
		{"unknown backend", func(s *Settings) { s.Storage.Backend = "leveldb" }},
		{"mysql without database", func(s *Settings) { s.Storage.Backend = BackendMySQL }},
		{"list limit too large", func(s *Settings) { s.Sync.ListLimit = MaxListLimit + 1 }},
		{"list limit zero", func(s *Settings) { s.Sync.ListLimit = 0 }},
		{"bad listen address", func(s *Settings) { s.Server.Listen = "nope" }},
		{"mqtt without broker", func(s *Settings) { s.Notify.MQTT = MQTTSettings{Enabled: true, Topic: "t"} }},
		{"telemetry without dsn", func(s *Settings) { s.Telemetry.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			var ve ValidationError
			require.ErrorAs(t, ValidateSettings(s), &ve)
			assert.NotEmpty(t, ve.Errors)
		})
	}
}

func TestValidateEnvValues(t *testing.T) {
	assert.NoError(t, validateEnvBool(" true "))
	assert.Error(t, validateEnvBool("yes"))
	assert.NoError(t, validateEnvURL("https://x.example.com"))
	assert.Error(t, validateEnvURL("ftp://x.example.com"))
	assert.NoError(t, validateEnvDuration("10s"))
	assert.Error(t, validateEnvDuration("-1s"))
	assert.NoError(t, validateEnvBackend("sqlite"))
	assert.Error(t, validateEnvBackend("bolt"))
	assert.NoError(t, validateEnvListLimit("500"))
	assert.Error(t, validateEnvListLimit("501"))
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	settings := &Settings{
		API:     APISettings{URL: "https://fish.example.com", CreatePath: "/fish/identify", CatchesPath: "/catches", Timeout: 10 * time.Second},
		Storage: StorageSettings{Backend: BackendMemory, DataDir: dir, ImageDir: "img"},
		Sync:    SyncSettings{ListLimit: 25},
	}
	require.NoError(t, SaveYAMLConfig(configPath, settings))

	loaded, err := LoadFrom(configPath)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, loaded.Storage.Backend)
	assert.Equal(t, 25, loaded.Sync.ListLimit)
	assert.Equal(t, 10*time.Second, loaded.API.Timeout)
	assert.Equal(t, filepath.Join(dir, "img"), loaded.Storage.ImageDir)
}
