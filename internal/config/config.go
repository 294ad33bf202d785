package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds the runtime settings. Values come from flags, the
// environment (TABLEMAP_* prefix) and an optional yaml config file, in
// that precedence order.
type Config struct {
	DBPath   string `mapstructure:"db_path"`
	PKName   string `mapstructure:"pk_name"`
	MaxDepth int    `mapstructure:"max_depth"`
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration. cfgFile overrides the default search path
// ($HOME/.tablemap.yaml); a missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetDefault("db_path", defaultDBPath())
	v.SetDefault("pk_name", "id")
	v.SetDefault("max_depth", 3)
	v.SetDefault("log_level", "info")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".tablemap")
	}

	v.SetEnvPrefix("TABLEMAP")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tablemap.db"
	}
	return filepath.Join(home, ".local", "share", "tablemap", "tablemap.db")
}
