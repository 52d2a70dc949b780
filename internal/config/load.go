package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file: ./config.yaml or /etc/easel/config.yaml.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/easel")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; environment variables can carry everything.
	}

	// EASEL_SERVER_PORT, EASEL_DATABASE_PATH, EASEL_PROVIDER_GEMINI_API_KEY, ...
	v.SetEnvPrefix("EASEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults (secrets, endpoints) must be bound explicitly,
	// otherwise Unmarshal never sees their environment values.
	for _, key := range []string{
		"server.log_file",
		"auth.jwt_secret",
		"provider.render_base_url",
		"provider.render_api_key",
		"provider.gemini_api_key",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment key %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for everything that has a sensible one.
// Secrets and provider endpoints deliberately have no default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.path", "easel.db")
	v.SetDefault("database.backup_dir", "backups")

	v.SetDefault("provider.gemini_model", "gemini-2.0-flash")
	v.SetDefault("provider.poll_interval_seconds", 2)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_base_ms", 2000)
	v.SetDefault("retry.backoff_growth", "linear")
	v.SetDefault("retry.jitter", true)

	v.SetDefault("pipeline.temp_dir", "tmp")
	v.SetDefault("pipeline.output_dir", "output")

	v.SetDefault("features.modular_image_store", false)
	v.SetDefault("features.modular_config_store", false)
}
