// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "inkwell")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/inkwell.log")

	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.address", ":8080")
	viper.SetDefault("webserver.log.enabled", true)
	viper.SetDefault("webserver.log.path", "logs/web.log")

	viper.SetDefault("storage.backend", "minio")
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.accesskey", "admin")
	viper.SetDefault("storage.secretkey", "")
	viper.SetDefault("storage.bucket", "projects")
	viper.SetDefault("storage.secure", false)

	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.sqlitepath", "inkwell.db")
	viper.SetDefault("database.mysqldsn", "")

	viper.SetDefault("bake.fontpath", "")
	viper.SetDefault("bake.workers", 2)
}
