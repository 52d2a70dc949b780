package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Provider ProviderConfig `mapstructure:"provider" validate:"required"`
	Retry    RetryConfig    `mapstructure:"retry"    validate:"required"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Features FeatureFlags   `mapstructure:"features"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// LogFile, when set, duplicates log output into a size-rotated file.
	LogFile string `mapstructure:"log_file"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	// Path is the sqlite database file. ":memory:" is accepted for tests.
	Path string `mapstructure:"path" validate:"required"`
	// BackupDir is where point-in-time snapshots are written.
	BackupDir string `mapstructure:"backup_dir" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// ProviderConfig groups settings for the external providers consumed by the
// pipeline: the rendering service (generation, background removal,
// enhancement) and Gemini (quality check, metadata).
type ProviderConfig struct {
	RenderBaseURL string `mapstructure:"render_base_url" validate:"required,url"`
	RenderAPIKey  string `mapstructure:"render_api_key"  validate:"required"`

	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	GeminiModel  string `mapstructure:"gemini_model"   validate:"required"`

	// PollInterval is how often a submitted render job is polled for
	// completion, in seconds.
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" validate:"gte=1"`
}

// RetryConfig controls the retry policy applied to provider calls.
// The growth function and classification table are deliberately
// configuration inputs rather than hard-coded constants.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gte=1,lte=10"`
	// BackoffBaseMS is the base delay between attempts, in milliseconds.
	BackoffBaseMS int `mapstructure:"backoff_base_ms" validate:"required,gte=1"`
	// BackoffGrowth selects how the delay grows with the attempt number.
	BackoffGrowth string `mapstructure:"backoff_growth" validate:"required,oneof=linear exponential"`
	// Jitter randomizes each delay between 50% and 100% of its computed
	// value.
	Jitter bool `mapstructure:"jitter"`
}

// PipelineConfig carries defaults for per-image post-processing.
type PipelineConfig struct {
	// TempDir is where fetched artifacts are staged before the final move.
	TempDir string `mapstructure:"temp_dir"`
	// OutputDir is where finished artifacts are placed.
	OutputDir string `mapstructure:"output_dir"`
}

// FeatureFlags gates the rollout of the modular (sqlx-based) store
// implementations. When a flag is off, only the baseline store is used.
type FeatureFlags struct {
	ModularImageStore  bool `mapstructure:"modular_image_store"`
	ModularConfigStore bool `mapstructure:"modular_config_store"`
}
