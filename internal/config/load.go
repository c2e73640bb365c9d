package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and optionally a
// config file. Environment variables take precedence over values from
// config files, using the ARGUS_ prefix (e.g. ARGUS_SERVER_PORT).
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults keep the engine runnable with only secrets supplied.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("vision.model_name", "gemini-2.0-flash")
	v.SetDefault("vision.max_retries", 3)
	v.SetDefault("vision.retry_delay_seconds", 2)
	v.SetDefault("task.worker_count", 4)
	v.SetDefault("task.item_timeout_seconds", 30)
	v.SetDefault("task.report_retries", 3)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ARGUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so every
	// key without a default must be bound explicitly or its environment
	// variable is silently ignored during Unmarshal.
	for _, key := range []string{
		"server.port",
		"server.log_level",
		"database.url",
		"auth.jwt_secret",
		"vision.gemini_api_key",
		"vision.model_name",
		"vision.max_retries",
		"vision.retry_delay_seconds",
		"redis.addr",
		"object_store.endpoint",
		"object_store.access_key",
		"object_store.secret_key",
		"object_store.bucket",
		"object_store.use_ssl",
		"task.worker_count",
		"task.item_timeout_seconds",
		"task.report_retries",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; the environment is authoritative.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
