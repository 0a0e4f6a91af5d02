// Package config loads the typed Supervisor configuration with
// spf13/viper, registering the defaults named in §6.4 so the service
// boots with zero configuration present, overridden by environment
// variables and an optional config file.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the full set of options the Supervisor reads at startup.
type Config struct {
	ListenIP           string  `mapstructure:"listen_ip"`
	ListenPort         int     `mapstructure:"listen_port"`
	CacheHost          string  `mapstructure:"cache_host"`
	CachePort          int     `mapstructure:"cache_port"`
	CommandChannel     string  `mapstructure:"command_channel"`
	PositionTTLSeconds int     `mapstructure:"position_ttl_seconds"`
	DroneCount         int     `mapstructure:"drone_count"`
	Overlap            float64 `mapstructure:"overlap"`
	AltitudeMinM       float64 `mapstructure:"altitude_min_m"`
	AltitudeMaxM       float64 `mapstructure:"altitude_max_m"`
	FOVDegrees         float64 `mapstructure:"fov_degrees"`
	LogLevel           string  `mapstructure:"log_level"`
}

// Load builds a viper instance with every §6.4 default registered, reads an
// optional config.yaml from ./configs or ../../configs, lets environment
// variables override it, and unmarshals the result.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AutomaticEnv()

	v.SetDefault("listen_ip", "0.0.0.0")
	v.SetDefault("listen_port", 14500)
	v.SetDefault("cache_host", "redis")
	v.SetDefault("cache_port", 6379)
	v.SetDefault("command_channel", "drone_commands")
	v.SetDefault("position_ttl_seconds", 60)
	v.SetDefault("drone_count", 1)
	v.SetDefault("overlap", 0.5)
	v.SetDefault("altitude_min_m", 30)
	v.SetDefault("altitude_max_m", 99)
	v.SetDefault("fov_degrees", 82.6)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}
