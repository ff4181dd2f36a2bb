package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "RECAP"

// setDefaults registers every key so that viper resolves environment
// variables for it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.environment", "production")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime_minutes", 5)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.trigger_token", "")
	v.SetDefault("auth.trigger_token_hash", "")

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
	v.SetDefault("llm.temperature", 0.8)
	v.SetDefault("llm.max_output_tokens", 1000)

	v.SetDefault("image_gen.api_url", "")
	v.SetDefault("image_gen.api_key", "")
	v.SetDefault("image_gen.model", "stabilityai/stable-diffusion-3-5-large")
	v.SetDefault("image_gen.timeout_seconds", 120)
	v.SetDefault("image_gen.max_attempts", 3)

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "auto")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.bucket", "ai-img")
	v.SetDefault("storage.public_domain", "")
	v.SetDefault("storage.upload_attempts", 4)

	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("github.web_url", "https://github.com")
	v.SetDefault("github.token", "")

	v.SetDefault("credits.free_grant", 30)
	v.SetDefault("credits.dev_free_grant", 300)
	v.SetDefault("credits.coupon_credits", 10)
	v.SetDefault("credits.billing_required", true)
	v.SetDefault("credits.cache_ttl_seconds", 60)
	v.SetDefault("credits.cache_size", 4096)

	v.SetDefault("processor.batch_size", 2)
	v.SetDefault("processor.budget_seconds", 180)
	v.SetDefault("processor.min_task_time_seconds", 30)
	v.SetDefault("processor.stale_after_minutes", 5)
	v.SetDefault("processor.live_platforms", []string{"github"})

	v.SetDefault("avatar.batch_size", 3)
	v.SetDefault("avatar.cost", 10)
	v.SetDefault("avatar.download_timeout_seconds", 60)

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "recap-api")
}

// Load configuration from environment variables and optionally config files.
// A .env file in the working directory is loaded first if present; variables
// already set in the environment are never overridden by it.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
