package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	once    sync.Once
	initErr error
)

// Init initializes the configuration system
// This should be called once at application startup
func Init() error {
	once.Do(func() {
		setDefaults()

		viper.SetEnvPrefix("ANNOTATION")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		configPath := filepath.Clean("./config/settings.yaml")
		viper.SetConfigFile(configPath)

		if err := viper.ReadInConfig(); err != nil {
			// A missing config file is fine, defaults and env vars apply
			if !os.IsNotExist(err) {
				initErr = fmt.Errorf("error reading config file %s: %w", configPath, err)
				return
			}
		}

		if err := validate(); err != nil {
			initErr = fmt.Errorf("invalid configuration: %w", err)
		}
	})

	return initErr
}

// GetConfig returns the current configuration as a struct
// Init() must be called before using this
func GetConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// Get returns a config value by key using Viper directly
func Get(key string) any {
	return viper.Get(key)
}

// GetString returns a string config value
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a time.Duration config value
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// validate validates the configuration using Viper values
func validate() error {
	port := viper.GetInt("server.port")
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid server port: %d", port)
	}

	switch viper.GetString("database.driver") {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %q", viper.GetString("database.driver"))
	}

	switch viper.GetString("storage.backend") {
	case "local", "s3":
	default:
		return fmt.Errorf("unsupported storage backend: %q", viper.GetString("storage.backend"))
	}

	if viper.GetInt64("upload.max_size") <= 0 {
		return fmt.Errorf("upload.max_size must be positive")
	}

	for _, queue := range []string{"queues.media", "queues.annotation"} {
		soft := viper.GetDuration(queue + ".soft_limit")
		hard := viper.GetDuration(queue + ".hard_limit")
		if hard <= 0 || soft <= 0 || soft >= hard {
			return fmt.Errorf("%s: soft_limit %s must be positive and shorter than hard_limit %s", queue, soft, hard)
		}
		// Auto-correct invalid worker count
		if viper.GetInt(queue+".workers") <= 0 {
			viper.Set(queue+".workers", 1)
		}
	}

	return validateSecrets()
}

// validateSecrets rejects placeholder secrets in production
func validateSecrets() error {
	env := viper.GetString("environment")
	isProduction := env == "production" || env == "prod"

	placeholders := []string{
		"YOUR_SECRET_HERE",
		"changeme",
		"CHANGEME",
		"",
	}

	jwtSecret := viper.GetString("auth.jwt_secret")
	for _, placeholder := range placeholders {
		if jwtSecret == placeholder {
			if isProduction {
				return fmt.Errorf("invalid JWT secret: cannot use placeholder values in production")
			}
			fmt.Fprintln(os.Stderr, "Warning: JWT secret is using a placeholder value - this is insecure!")
			break
		}
	}

	return nil
}

// Validate validates a Config struct (for testing)
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload max size must be positive")
	}

	for _, q := range []*QueueConfig{&c.Queues.Media, &c.Queues.Annotation} {
		if q.Name == "" {
			return fmt.Errorf("queue name is required")
		}
		if q.SoftLimit <= 0 || q.SoftLimit >= q.HardLimit {
			return fmt.Errorf("queue %s: soft limit must be positive and shorter than hard limit", q.Name)
		}
		if q.Workers <= 0 {
			q.Workers = 1
		}
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("environment", "development")

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.max_header_bytes", 1048576)

	// Database defaults
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "./data/annotation.db")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_connections", 5)
	viper.SetDefault("database.connection_max_lifetime", time.Hour)
	viper.SetDefault("database.verbose", false)

	// Auth defaults
	viper.SetDefault("auth.jwt_secret", "changeme")
	viper.SetDefault("auth.token_ttl", 30*time.Minute)
	viper.SetDefault("auth.issuer", "annotation-api")
	viper.SetDefault("auth.identity_cache_ttl", time.Minute)

	// Upload defaults
	viper.SetDefault("upload.max_size", 100*1024*1024)
	viper.SetDefault("upload.video_extensions", []string{".mp4", ".avi", ".mov", ".mkv", ".wmv"})
	viper.SetDefault("upload.audio_extensions", []string{".mp3", ".wav", ".flac", ".aac", ".ogg"})

	// Storage defaults
	viper.SetDefault("storage.backend", "local")
	viper.SetDefault("storage.local_path", "./data/objects")
	viper.SetDefault("storage.temp_dir", "/tmp/annotation")
	viper.SetDefault("storage.s3.bucket", "annotation-media")
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.s3.endpoint", "")
	viper.SetDefault("storage.s3.use_path_style", true)
	viper.SetDefault("storage.s3.multipart_threshold", 100<<20)

	// Processing defaults
	viper.SetDefault("processing.ffmpeg_path", "ffmpeg")
	viper.SetDefault("processing.ffprobe_path", "ffprobe")
	viper.SetDefault("processing.ffmpeg_timeout", 20*time.Minute)
	viper.SetDefault("processing.poll_interval", 2*time.Second)
	viper.SetDefault("processing.frame_fps", 1.0)
	viper.SetDefault("processing.retry_attempts", 3)
	viper.SetDefault("processing.embedded_workers", true)

	// Queue defaults
	viper.SetDefault("queues.media.name", "media")
	viper.SetDefault("queues.media.workers", 2)
	viper.SetDefault("queues.media.soft_limit", 25*time.Minute)
	viper.SetDefault("queues.media.hard_limit", 30*time.Minute)
	viper.SetDefault("queues.annotation.name", "annotation")
	viper.SetDefault("queues.annotation.workers", 1)
	viper.SetDefault("queues.annotation.soft_limit", 25*time.Minute)
	viper.SetDefault("queues.annotation.hard_limit", 30*time.Minute)

	// Events defaults
	viper.SetDefault("events.enabled", false)
	viper.SetDefault("events.brokers", []string{"localhost:9092"})
	viper.SetDefault("events.topic", "annotation-events")

	// Rate limiting defaults
	viper.SetDefault("rate_limiting.enabled", true)
	viper.SetDefault("rate_limiting.burst", 20)
	viper.SetDefault("rate_limiting.endpoints", map[string]int{
		"auth":    5,
		"upload":  2,
		"default": 20,
	})

	// Security defaults
	viper.SetDefault("security.enable_cors", true)
	viper.SetDefault("security.cors_origins", []string{"http://localhost:3000", "http://localhost:8080"})
	viper.SetDefault("security.cors_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors_headers", []string{"Origin", "Content-Type", "Accept", "Authorization"})
	viper.SetDefault("security.enable_request_id", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")

	// Monitoring defaults
	viper.SetDefault("monitoring.metrics_enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Cleanup defaults
	viper.SetDefault("cleanup.annotation_retention_days", 30)
	viper.SetDefault("cleanup.job_retention_days", 14)
	viper.SetDefault("cleanup.interval", 24*time.Hour)
	viper.SetDefault("cleanup.temp_max_age", 6*time.Hour)
	viper.SetDefault("cleanup.lock_file", "./data/cleanup.lock")
}
