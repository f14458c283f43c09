package logger_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/catchsync/internal/logger"
)

func TestLogLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelWarn, time.UTC)

	log.Debug("hidden debug")
	log.Info("hidden info")
	log.Warn("visible warn")
	log.Error("visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warn")
	assert.Contains(t, out, "visible error")
}

func TestModuleAndFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC).
		Module("sync").
		Module("pass").
		With(logger.String("local_id", "abc"))

	log.Info("uploaded",
		logger.Int64("remote_id", 42),
		logger.Float64("confidence", 0.912345),
		logger.Duration("elapsed", 1500*time.Millisecond))

	out := buf.String()
	assert.Contains(t, out, "module=sync.pass")
	assert.Contains(t, out, "local_id=abc")
	assert.Contains(t, out, "remote_id=42")
	assert.Contains(t, out, "confidence=0.912")
	assert.Contains(t, out, "elapsed=1.5s")
}

func TestWithContextAddsTraceID(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	ctx := logger.WithTraceID(t.Context(), "trace-123")
	log.WithContext(ctx).Info("with trace")
	log.WithContext(t.Context()).Info("without trace")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "trace_id=trace-123")
	assert.NotContains(t, string(lines[1]), "trace_id")
}

func TestSensitiveValuesRedacted(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	log.Info("request",
		logger.String("api_token", "supersecret"),
		logger.String("header", "Authorization: Bearer abcdef123456"))

	out := buf.String()
	assert.NotContains(t, out, "supersecret")
	assert.NotContains(t, out, "abcdef123456")
	assert.Contains(t, out, "[REDACTED]")
}

func TestFileOutputWritesJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "catchsync.log")

	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path, Level: "debug"},
	})
	require.NoError(t, err)

	cl.Module("localstore").Info("blob written", logger.Int("records", 3))
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
	assert.Equal(t, "blob written", entry["msg"])
	assert.Equal(t, "localstore", entry["module"])
	assert.InDelta(t, 3, entry["records"], 0)
}

func TestModuleOutputRouting(t *testing.T) {
	dir := t.TempDir()
	syncPath := filepath.Join(dir, "sync.log")

	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "info",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: false},
		ModuleOutputs: map[string]logger.ModuleOutput{
			"sync": {Enabled: true, FilePath: syncPath, Level: "debug"},
		},
	})
	require.NoError(t, err)

	cl.Module("sync").Debug("pass started")
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(syncPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pass started")
}

func TestInvalidTimezone(t *testing.T) {
	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Mars/Olympus"})
	assert.Error(t, err)

	_, err = logger.NewCentralLogger(nil)
	assert.Error(t, err)
}
