package conf

import (
	"os"
	"path/filepath"

	"github.com/tphakala/catchsync/internal/errors"
)

const appName = "catchsync"

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// If a config.yaml is found in one of them, only that directory is returned.
func GetDefaultConfigPaths() ([]string, error) {
	var configPaths []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configPaths = append(configPaths, filepath.Join(xdg, appName))
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}
	configPaths = append(configPaths, filepath.Join(homeDir, ".config", appName), ".")

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// FindConfigFile locates the configuration file.
func FindConfigFile() (string, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range configPaths {
		configFilePath := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFilePath); err == nil {
			return configFilePath, nil
		}
	}

	return "", errors.Newf("config file not found").
		Component("conf").
		Category(errors.CategoryNotFound).
		Context("operation", "find-config-file").
		Build()
}

// expandPath expands environment variables and a leading ~ in path.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	expanded := os.ExpandEnv(path)
	if len(expanded) >= 2 && expanded[0] == '~' && expanded[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, expanded[2:])
		}
	}
	return filepath.Clean(expanded)
}

// resolveUnder makes a relative path relative to base.
func resolveUnder(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
