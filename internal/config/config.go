package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"       validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database"     validate:"required"`
	Auth        AuthConfig        `mapstructure:"auth"         validate:"required"`
	Vision      VisionConfig      `mapstructure:"vision"       validate:"required"`
	Redis       RedisConfig       `mapstructure:"redis"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
	Task        TaskConfig        `mapstructure:"task"         validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// VisionConfig contains the recognition collaborator settings.
type VisionConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key"      validate:"required"`
	ModelName         string `mapstructure:"model_name"          validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds"`
}

// RedisConfig contains the progress cache settings. An empty address
// disables the cache; the engine works without it, reads just always hit
// the database.
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

// ObjectStoreConfig contains the file storage collaborator settings.
type ObjectStoreConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// TaskConfig contains the batch engine settings.
type TaskConfig struct {
	// WorkerCount bounds how many recognition calls run concurrently
	// across all tasks.
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`

	// ItemTimeoutSeconds bounds each individual recognition call.
	ItemTimeoutSeconds int `mapstructure:"item_timeout_seconds" validate:"required,gt=0"`

	// ReportRetries bounds how often a failed progress write is retried
	// before the outcome is logged and dropped.
	ReportRetries int `mapstructure:"report_retries"`
}
