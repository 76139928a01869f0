package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Environment  string           `mapstructure:"environment"`
	Server       ServerConfig     `mapstructure:"server"`
	Database     DatabaseConfig   `mapstructure:"database"`
	Auth         AuthConfig       `mapstructure:"auth"`
	Upload       UploadConfig     `mapstructure:"upload"`
	Storage      StorageConfig    `mapstructure:"storage"`
	Processing   ProcessingConfig `mapstructure:"processing"`
	Queues       QueuesConfig     `mapstructure:"queues"`
	Events       EventsConfig     `mapstructure:"events"`
	RateLimiting RateLimitConfig  `mapstructure:"rate_limiting"`
	Security     SecurityConfig   `mapstructure:"security"`
	Logging      LoggingConfig    `mapstructure:"logging"`
	Monitoring   MonitoringConfig `mapstructure:"monitoring"`
	Cleanup      CleanupConfig    `mapstructure:"cleanup"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Driver                string        `mapstructure:"driver"` // sqlite or postgres
	Path                  string        `mapstructure:"path"`
	DSN                   string        `mapstructure:"dsn"`
	MaxConnections        int           `mapstructure:"max_connections"`
	MaxIdleConnections    int           `mapstructure:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `mapstructure:"connection_max_lifetime"`
	Verbose               bool          `mapstructure:"verbose"`
}

// AuthConfig contains bearer token settings
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	Issuer        string        `mapstructure:"issuer"`
	IdentityCache time.Duration `mapstructure:"identity_cache_ttl"`
}

// UploadConfig contains media upload limits
type UploadConfig struct {
	MaxSize         int64    `mapstructure:"max_size"`
	VideoExtensions []string `mapstructure:"video_extensions"`
	AudioExtensions []string `mapstructure:"audio_extensions"`
}

// StorageConfig contains object storage settings
type StorageConfig struct {
	Backend   string   `mapstructure:"backend"` // local or s3
	LocalPath string   `mapstructure:"local_path"`
	TempDir   string   `mapstructure:"temp_dir"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config contains S3 or MinIO connection settings
type S3Config struct {
	Bucket             string `mapstructure:"bucket"`
	Region             string `mapstructure:"region"`
	Endpoint           string `mapstructure:"endpoint"`
	AccessKey          string `mapstructure:"access_key"`
	SecretKey          string `mapstructure:"secret_key"`
	UsePathStyle       bool   `mapstructure:"use_path_style"`
	MultipartThreshold int64  `mapstructure:"multipart_threshold"`
}

// ProcessingConfig contains media analyzer and worker settings
type ProcessingConfig struct {
	FFmpegPath      string        `mapstructure:"ffmpeg_path"`
	FFprobePath     string        `mapstructure:"ffprobe_path"`
	FFmpegTimeout   time.Duration `mapstructure:"ffmpeg_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	FrameFPS        float64       `mapstructure:"frame_fps"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	EmbeddedWorkers bool          `mapstructure:"embedded_workers"`
}

// QueuesConfig contains the named job queues
type QueuesConfig struct {
	Media      QueueConfig `mapstructure:"media"`
	Annotation QueueConfig `mapstructure:"annotation"`
}

// QueueConfig contains settings for one named queue
type QueueConfig struct {
	Name      string        `mapstructure:"name"`
	Workers   int           `mapstructure:"workers"`
	SoftLimit time.Duration `mapstructure:"soft_limit"`
	HardLimit time.Duration `mapstructure:"hard_limit"`
}

// EventsConfig contains domain event publishing settings
type EventsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	Endpoints map[string]int `mapstructure:"endpoints"`
	Burst     int            `mapstructure:"burst"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	EnableCORS      bool     `mapstructure:"enable_cors"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
	CORSMethods     []string `mapstructure:"cors_methods"`
	CORSHeaders     []string `mapstructure:"cors_headers"`
	EnableRequestID bool     `mapstructure:"enable_request_id"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsPath    string `mapstructure:"metrics_path"`
}

// CleanupConfig contains retention and maintenance settings
type CleanupConfig struct {
	AnnotationRetentionDays int           `mapstructure:"annotation_retention_days"`
	JobRetentionDays        int           `mapstructure:"job_retention_days"`
	Interval                time.Duration `mapstructure:"interval"`
	TempMaxAge              time.Duration `mapstructure:"temp_max_age"`
	LockFile                string        `mapstructure:"lock_file"`
}
