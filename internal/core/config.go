package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	BaseDirName    = ".config/frpherd"
	PidFileName    = "daemon.pid"
	SocketName     = "daemon.sock"
	DatabaseName   = "frpherd.db"
	FrpcConfigName = "frpc.toml"
)

var Config *viper.Viper

var globalFlagsToConfigKey = map[string]string{
	"config-path": "config_path",
	"verbose":     "verbose",
}

func GetSocketPath() string {
	return filepath.Join(Config.GetString("config_path"), SocketName)
}

func GetPIDFilePath() string {
	return filepath.Join(Config.GetString("config_path"), PidFileName)
}

func GetDatabasePath() string {
	return filepath.Join(Config.GetString("config_path"), DatabaseName)
}

// GetFrpcBinary returns the path to the frpc executable. A bare name is
// resolved through PATH when the process is launched.
func GetFrpcBinary() string {
	return Config.GetString("frpc.binary")
}

// GetFrpcConfig returns the path to the frpc configuration file that is
// both passed to frpc and watched for changes.
func GetFrpcConfig() string {
	path := Config.GetString("frpc.config")
	if path == "" {
		path = filepath.Join(Config.GetString("config_path"), FrpcConfigName)
	}
	return path
}

func GetAutostart() bool {
	return Config.GetBool("frpc.autostart")
}

func GetReloadDebounce() time.Duration {
	return Config.GetDuration("reload.debounce")
}

func GetReloadTimeout() time.Duration {
	return Config.GetDuration("reload.timeout")
}

func GetRestartSettle() time.Duration {
	return Config.GetDuration("restart.settle")
}

func GetHistorySize() int {
	return Config.GetInt("history_size")
}

func GetLogDir() string {
	dir := Config.GetString("log.dir")
	if dir == "" {
		dir = filepath.Join(Config.GetString("config_path"), "logs")
	}
	return dir
}

func GetLogMaxSizeMB() int     { return Config.GetInt("log.max_size_mb") }
func GetLogMaxBackups() int    { return Config.GetInt("log.max_backups") }
func GetLogMaxAgeDays() int    { return Config.GetInt("log.max_age_days") }
func GetLogCompress() bool     { return Config.GetBool("log.compress") }
func GetMetricsEnabled() bool  { return Config.GetBool("metrics.enabled") }
func GetMetricsListen() string { return Config.GetString("metrics.listen") }

func InitializeConfig(cmd *cobra.Command) ([]string, error) {
	Config = viper.New()

	// Set config path from user input
	configPath, err := cmd.Root().PersistentFlags().GetString("config-path")
	if err != nil {
		panic("Unable to determine config path")
	}
	Config.AddConfigPath(configPath)

	// Set config name
	Config.SetConfigName("config")
	Config.SetConfigType("toml")

	// Set defaults
	Config.SetDefault("verbose", 0)
	Config.SetDefault("frpc.binary", "frpc")
	Config.SetDefault("frpc.config", "")
	Config.SetDefault("frpc.autostart", true)
	Config.SetDefault("reload.debounce", "3s")
	Config.SetDefault("reload.timeout", "10s")
	Config.SetDefault("restart.settle", "1s")
	Config.SetDefault("history_size", 1000)
	Config.SetDefault("log.dir", "")
	Config.SetDefault("log.max_size_mb", 10)
	Config.SetDefault("log.max_backups", 3)
	Config.SetDefault("log.max_age_days", 7)
	Config.SetDefault("log.compress", false)
	Config.SetDefault("metrics.enabled", false)
	Config.SetDefault("metrics.listen", "127.0.0.1:9921")

	// Setup env reading
	Config.SetEnvPrefix("frpherd")

	// Load config file
	if err := Config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found - create config path and write config with defaults
			err := os.MkdirAll(configPath, 0o755)
			if err != nil {
				panic(err)
			}
			Config.SafeWriteConfig()
		} else {
			// Config file was found but another error occurred
			panic(err)
		}
	}

	// In order to get environment variables mapped into config sections, we need to replace . with _
	Config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Config.AutomaticEnv() // read in environment variables that match

	// Bind the current command's flags to viper
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			// Is this a global flag
			configKey, ok := globalFlagsToConfigKey[f.Name]
			if !ok {
				return
			}

			// Apply the viper config value to the flag when the flag is not set and viper has a value
			if !f.Changed && Config.IsSet(configKey) {
				cmd.Flags().Set(f.Name, fmt.Sprintf("%v", Config.Get(configKey)))
			} else {
				Config.Set(configKey, fmt.Sprintf("%v", f.Value))
			}
		})
	}

	return []string{}, nil
}
