// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default endpoint paths of the catch backend.
const (
	DefaultCreatePath  = "/fish/identify"
	DefaultCatchesPath = "/catches"
	DefaultListLimit   = 200
	MaxListLimit       = 500
)

// Storage backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
	BackendMemory = "memory"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("api.url", "http://localhost:8000")
	viper.SetDefault("api.createpath", DefaultCreatePath)
	viper.SetDefault("api.catchespath", DefaultCatchesPath)
	viper.SetDefault("api.timeout", 30*time.Second)
	viper.SetDefault("api.token", "")
	viper.SetDefault("api.useragent", "catchsync")

	viper.SetDefault("storage.backend", BackendFile)
	viper.SetDefault("storage.datadir", "${HOME}/.local/share/catchsync")
	viper.SetDefault("storage.imagedir", "catches")
	viper.SetDefault("storage.sqlite.path", "catchsync.db")
	viper.SetDefault("storage.mysql.host", "localhost")
	viper.SetDefault("storage.mysql.port", 3306)
	viper.SetDefault("storage.mysql.username", "")
	viper.SetDefault("storage.mysql.password", "")
	viper.SetDefault("storage.mysql.database", "catchsync")

	viper.SetDefault("sync.listlimit", DefaultListLimit)
	viper.SetDefault("sync.identitypoll", 5*time.Second)
	viper.SetDefault("sync.cachettl", 24*time.Hour)
	viper.SetDefault("sync.onstart", true)

	viper.SetDefault("identity.userid", "")
	viper.SetDefault("identity.file", "user_id")

	viper.SetDefault("server.enabled", true)
	viper.SetDefault("server.listen", "127.0.0.1:8765")

	viper.SetDefault("metrics.enabled", true)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")

	viper.SetDefault("notify.mqtt.enabled", false)
	viper.SetDefault("notify.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("notify.mqtt.topic", "catchsync/sync")
	viper.SetDefault("notify.mqtt.clientid", "catchsync")
	viper.SetDefault("notify.mqtt.username", "")
	viper.SetDefault("notify.mqtt.password", "")
	viper.SetDefault("notify.mqtt.retain", false)

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", "logs/catchsync.log")
	viper.SetDefault("logging.fileoutput.level", "info")
}
