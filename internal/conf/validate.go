// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateAPISettings(&settings.API); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateStorageSettings(&settings.Storage); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateSyncSettings(&settings.Sync); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateServerSettings(&settings.Server); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateMQTTSettings(&settings.Notify.MQTT); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Telemetry.Enabled && settings.Telemetry.DSN == "" {
		ve.Errors = append(ve.Errors, "telemetry is enabled but no DSN is configured")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAPISettings(settings *APISettings) error {
	u, err := url.Parse(settings.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.url must be an absolute http(s) URL, got %q", settings.URL)
	}
	settings.URL = strings.TrimRight(settings.URL, "/")

	for name, path := range map[string]*string{
		"api.createpath":  &settings.CreatePath,
		"api.catchespath": &settings.CatchesPath,
	} {
		if *path == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
		if !strings.HasPrefix(*path, "/") {
			*path = "/" + *path
		}
	}

	if settings.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	return nil
}

func validateStorageSettings(settings *StorageSettings) error {
	switch settings.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	case BackendMySQL:
		if settings.MySQL.Host == "" || settings.MySQL.Database == "" {
			return fmt.Errorf("storage.mysql.host and storage.mysql.database are required for the mysql backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", settings.Backend)
	}

	if settings.DataDir == "" {
		return fmt.Errorf("storage.datadir must not be empty")
	}
	if settings.ImageDir == "" {
		return fmt.Errorf("storage.imagedir must not be empty")
	}
	return nil
}

func validateSyncSettings(settings *SyncSettings) error {
	if settings.ListLimit < 1 || settings.ListLimit > MaxListLimit {
		return fmt.Errorf("sync.listlimit must be between 1 and %d, got %d", MaxListLimit, settings.ListLimit)
	}
	if settings.IdentityPoll < 0 {
		return fmt.Errorf("sync.identitypoll must not be negative")
	}
	if settings.CacheTTL < 0 {
		return fmt.Errorf("sync.cachettl must not be negative")
	}
	return nil
}

func validateServerSettings(settings *ServerSettings) error {
	if !settings.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return fmt.Errorf("server.listen %q is not a host:port address: %w", settings.Listen, err)
	}
	return nil
}

func validateMQTTSettings(settings *MQTTSettings) error {
	if !settings.Enabled {
		return nil
	}
	if settings.Broker == "" {
		return fmt.Errorf("notify.mqtt.broker is required when MQTT is enabled")
	}
	if settings.Topic == "" {
		return fmt.Errorf("notify.mqtt.topic is required when MQTT is enabled")
	}
	return nil
}
