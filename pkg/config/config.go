package config

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Configuration is the whole bridge configuration, loaded from config.yaml
// with WAPQQ_* environment overrides.
type Configuration struct {
	// Init must be flipped to true by the operator; the bridge refuses to
	// start with a template configuration.
	Init bool

	// Account is the bot's own QQ account id.
	Account int64
	// VerifyKey must match the verifyKey of the mirai-api-http adapter.
	VerifyKey string

	Platform struct {
		// WSHost is the host[:port] of the mirai-api-http websocket
		// adapter, without scheme.
		WSHost string
	}

	Web struct {
		ListenAddr    string
		SessionSecret string
		// PageSize is the number of messages per history page.
		PageSize int
	}

	Database struct {
		// Path of the SQLite archive file.
		Path string
	}
}

// Load reads the configuration file at path (or the default search path when
// empty) and validates it.
func Load(path string) (Configuration, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("WAPQQ")
	v.AutomaticEnv()

	v.SetDefault("web.listenaddr", ":8000")
	v.SetDefault("web.pagesize", 60)
	v.SetDefault("database.path", "data.db")

	var cfg Configuration
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	if !cfg.Init {
		return cfg, fmt.Errorf("configuration at %q is not initialised, set init: true once it is filled in", v.ConfigFileUsed())
	}
	if cfg.Account == 0 {
		return cfg, fmt.Errorf("account is required")
	}
	if cfg.VerifyKey == "" {
		return cfg, fmt.Errorf("verifykey is required")
	}
	if cfg.Platform.WSHost == "" {
		return cfg, fmt.Errorf("platform.wshost is required")
	}
	return cfg, nil
}
