// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "CATCHSYNC_DEBUG", validateEnvBool},

		// Remote backend
		{"api.url", "CATCHSYNC_API_URL", validateEnvURL},
		{"api.token", "CATCHSYNC_API_TOKEN", nil},
		{"api.timeout", "CATCHSYNC_API_TIMEOUT", validateEnvDuration},

		// Storage
		{"storage.backend", "CATCHSYNC_STORAGE_BACKEND", validateEnvBackend},
		{"storage.datadir", "CATCHSYNC_DATA_DIR", nil},
		{"storage.imagedir", "CATCHSYNC_IMAGE_DIR", nil},
		{"storage.mysql.password", "CATCHSYNC_MYSQL_PASSWORD", nil},

		// Sync
		{"sync.listlimit", "CATCHSYNC_LIST_LIMIT", validateEnvListLimit},
		{"sync.identitypoll", "CATCHSYNC_IDENTITY_POLL", validateEnvDuration},

		{"identity.userid", "CATCHSYNC_USER_ID", nil},
		{"server.listen", "CATCHSYNC_LISTEN", nil},
		{"telemetry.dsn", "CATCHSYNC_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// validateEnvBool validates boolean environment variables
func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("must be a boolean (true/false/1/0)")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvBackend(value string) error {
	switch strings.TrimSpace(value) {
	case BackendFile, BackendSQLite, BackendMySQL, BackendMemory:
		return nil
	default:
		return fmt.Errorf("must be one of %s, %s, %s, %s", BackendFile, BackendSQLite, BackendMySQL, BackendMemory)
	}
}

func validateEnvListLimit(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 1 || n > MaxListLimit {
		return fmt.Errorf("must be between 1 and %d", MaxListLimit)
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}
