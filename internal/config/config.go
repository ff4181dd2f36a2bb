package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm" validate:"required"`
	ImageGen  ImageGenConfig  `mapstructure:"image_gen"`
	Storage   StorageConfig   `mapstructure:"storage"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	Credits   CreditsConfig   `mapstructure:"credits" validate:"required"`
	Processor ProcessorConfig `mapstructure:"processor" validate:"required"`
	Avatar    AvatarConfig    `mapstructure:"avatar" validate:"required"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port        int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel    string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	Environment string `mapstructure:"environment" validate:"required,oneof=development production test"`
}

// IsDevelopment reports whether the server runs in development mode.
func (c ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL                    string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" validate:"gte=1"`
}

// AuthConfig contains user session and scheduler trigger settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	// TriggerToken is compared in constant time; TriggerTokenHash is a bcrypt hash
	// produced by cmd/hash-generator. One of the two must be set.
	TriggerToken     string `mapstructure:"trigger_token" validate:"required_without=TriggerTokenHash"`
	TriggerTokenHash string `mapstructure:"trigger_token_hash"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey      string  `mapstructure:"gemini_api_key" validate:"required"`
	ModelName         string  `mapstructure:"model_name" validate:"required"`
	MaxRetries        int     `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds" validate:"gte=1,lte=60"`
	Temperature       float32 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxOutputTokens   int32   `mapstructure:"max_output_tokens" validate:"gt=0"`
}

// ImageGenConfig configures the OpenAI-compatible image generation API used for avatars.
type ImageGenConfig struct {
	APIURL         string `mapstructure:"api_url" validate:"omitempty,url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=1"`
	MaxAttempts    int    `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
}

// Timeout returns the overall request budget for one generation call.
func (c ImageGenConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig configures the S3-compatible bucket that hosts rendered images.
type StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	PublicDomain    string `mapstructure:"public_domain"`
	UploadAttempts  int    `mapstructure:"upload_attempts" validate:"gte=1,lte=10"`
}

// GitHubConfig configures the GitHub platform adapter.
type GitHubConfig struct {
	APIURL string `mapstructure:"api_url" validate:"required,url"`
	WebURL string `mapstructure:"web_url" validate:"required,url"`
	Token  string `mapstructure:"token"`
}

// CreditsConfig configures the credit ledger.
type CreditsConfig struct {
	FreeGrant       int  `mapstructure:"free_grant" validate:"gte=0"`
	DevFreeGrant    int  `mapstructure:"dev_free_grant" validate:"gte=0"`
	CouponCredits   int  `mapstructure:"coupon_credits" validate:"gt=0"`
	BillingRequired bool `mapstructure:"billing_required"`
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds" validate:"gte=1"`
	CacheSize       int  `mapstructure:"cache_size" validate:"gte=1"`
}

// ProcessorConfig configures the summary task processor.
type ProcessorConfig struct {
	BatchSize          int      `mapstructure:"batch_size" validate:"gte=1,lte=50"`
	BudgetSeconds      int      `mapstructure:"budget_seconds" validate:"gte=1"`
	MinTaskTimeSeconds int      `mapstructure:"min_task_time_seconds" validate:"gte=1"`
	StaleAfterMinutes  int      `mapstructure:"stale_after_minutes" validate:"gte=1"`
	LivePlatforms      []string `mapstructure:"live_platforms" validate:"required,min=1"`
}

// AvatarConfig configures avatar admission and processing.
type AvatarConfig struct {
	BatchSize              int `mapstructure:"batch_size" validate:"gte=1,lte=50"`
	Cost                   int `mapstructure:"cost" validate:"gte=0"`
	DownloadTimeoutSeconds int `mapstructure:"download_timeout_seconds" validate:"gte=1"`
}

// TelemetryConfig toggles tracing export.
type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	ServiceName    string `mapstructure:"service_name"`
}
