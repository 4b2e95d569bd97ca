package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIServerConfig holds settings for the HTTP API server.
type APIServerConfig struct {
	Host         string        `mapstructure:"HOST"`
	Port         string        `mapstructure:"PORT"`
	ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
	CORS         CORSConfig    `mapstructure:"CORS"`
}

// CORSConfig holds configuration for CORS.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"ALLOWED_ORIGINS"`
	AllowedMethods   []string `mapstructure:"ALLOWED_METHODS"`
	AllowedHeaders   []string `mapstructure:"ALLOWED_HEADERS"`
	ExposedHeaders   []string `mapstructure:"EXPOSED_HEADERS"`
	AllowCredentials bool     `mapstructure:"ALLOW_CREDENTIALS"`
	MaxAge           int      `mapstructure:"MAX_AGE"`
}

// RedisConfig holds configuration for Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"ADDR"`
	Password string `mapstructure:"PASSWORD"`
	DB       int    `mapstructure:"DB"`
}

// Config holds all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	AppName    string          `mapstructure:"APP_NAME"`
	AppVersion string          `mapstructure:"APP_VERSION"`
	LogLevel   string          `mapstructure:"LOG_LEVEL"`
	APIServer  APIServerConfig `mapstructure:"API_SERVER"`
	Storage    StorageConfig   `mapstructure:"STORAGE"`
	Database   DatabaseConfig  `mapstructure:"DATABASE"`
	Redis      RedisConfig     `mapstructure:"REDIS"`
	Kafka      KafkaConfig     `mapstructure:"KAFKA"`
	Auth       AuthConfig      `mapstructure:"AUTH"`
	Directory  DirectoryConfig `mapstructure:"DIRECTORY"`
	Avatars    AvatarConfig    `mapstructure:"AVATARS"`
	WebSocket  WebSocketConfig `mapstructure:"WEBSOCKET"`
}

// StorageConfig selects the key-value backend that holds per-user partitions.
type StorageConfig struct {
	Type      string `mapstructure:"TYPE"` // "memory", "redis", "postgres"
	KeyPrefix string `mapstructure:"KEY_PREFIX"`
}

// KafkaConfig holds configuration for the optional domain event transport.
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"ENABLED"`
	Brokers       []string `mapstructure:"BROKERS"`
	ClientID      string   `mapstructure:"CLIENT_ID"`
	EventsTopic   string   `mapstructure:"EVENTS_TOPIC"`
	ConsumerGroup string   `mapstructure:"CONSUMER_GROUP"`
	Protocol      string   `mapstructure:"PROTOCOL"`
}

// DatabaseConfig holds configuration for the database.
type DatabaseConfig struct {
	Type     string `mapstructure:"TYPE"`
	Host     string `mapstructure:"HOST"`
	Port     int    `mapstructure:"PORT"`
	User     string `mapstructure:"USER"`
	Password string `mapstructure:"PASSWORD"`
	DBName   string `mapstructure:"DB_NAME"`
	SSLMode  string `mapstructure:"SSL_MODE"`
	LogSQL   bool   `mapstructure:"LOG_SQL"`
}

// AuthConfig holds configuration for authentication (e.g., JWT).
type AuthConfig struct {
	JWTSecretKey string        `mapstructure:"JWT_SECRET_KEY"`
	JWTExpiry    time.Duration `mapstructure:"JWT_EXPIRY"`
}

// DirectoryConfig controls how the user directory is seeded.
type DirectoryConfig struct {
	SeedUsers       int    `mapstructure:"SEED_USERS"`
	SeedFile        string `mapstructure:"SEED_FILE"`
	DefaultPassword string `mapstructure:"DEFAULT_PASSWORD"`
}

// AvatarConfig holds configuration for avatar uploads.
type AvatarConfig struct {
	Type          string      `mapstructure:"TYPE"` // "local", "minio"
	LocalPath     string      `mapstructure:"LOCAL_PATH"`
	BaseURL       string      `mapstructure:"BASE_URL"`
	MaxFileSizeMB int64       `mapstructure:"MAX_FILE_SIZE_MB"`
	Minio         MinioConfig `mapstructure:"MINIO"`
}

// MinioConfig holds configuration for S3 compatible object storage.
type MinioConfig struct {
	Endpoint        string `mapstructure:"ENDPOINT"`
	BucketName      string `mapstructure:"BUCKET_NAME"`
	AccessKeyID     string `mapstructure:"ACCESS_KEY_ID"`
	SecretAccessKey string `mapstructure:"SECRET_ACCESS_KEY"`
	UseSSL          bool   `mapstructure:"USE_SSL"`
}

// WebSocketConfig holds configuration for WebSocket connections.
type WebSocketConfig struct {
	WriteWaitSeconds    int `mapstructure:"WRITE_WAIT_SECONDS"`
	PongWaitSeconds     int `mapstructure:"PONG_WAIT_SECONDS"`
	PingPeriodSeconds   int `mapstructure:"PING_PERIOD_SECONDS"`
	MaxMessageSizeBytes int `mapstructure:"MAX_MESSAGE_SIZE_BYTES"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()

	v.SetDefault("APP_NAME", "Schedle")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("API_SERVER.HOST", "0.0.0.0")
	v.SetDefault("API_SERVER.PORT", "8081")
	v.SetDefault("API_SERVER.READ_TIMEOUT", 30*time.Second)
	v.SetDefault("API_SERVER.WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("API_SERVER.CORS.ALLOWED_ORIGINS", []string{"http://localhost:5173"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"})
	v.SetDefault("API_SERVER.CORS.EXPOSED_HEADERS", []string{"Content-Length"})
	v.SetDefault("API_SERVER.CORS.ALLOW_CREDENTIALS", true)
	v.SetDefault("API_SERVER.CORS.MAX_AGE", 300)

	v.SetDefault("STORAGE.TYPE", "memory")
	v.SetDefault("STORAGE.KEY_PREFIX", "")

	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "password")
	v.SetDefault("DATABASE.DB_NAME", "schedle")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("DATABASE.LOG_SQL", false)

	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)

	// Kafka is off by default; events are dispatched in-process.
	v.SetDefault("KAFKA.ENABLED", false)
	v.SetDefault("KAFKA.BROKERS", []string{"localhost:9092"})
	v.SetDefault("KAFKA.CLIENT_ID", "schedle")
	v.SetDefault("KAFKA.EVENTS_TOPIC", "schedle-domain-events")
	v.SetDefault("KAFKA.CONSUMER_GROUP", "schedle-notifications")
	v.SetDefault("KAFKA.PROTOCOL", "plaintext")

	v.SetDefault("AUTH.JWT_SECRET_KEY", "a_very_secret_key_that_should_be_changed")
	v.SetDefault("AUTH.JWT_EXPIRY", 24*time.Hour)

	v.SetDefault("DIRECTORY.SEED_USERS", 10)
	v.SetDefault("DIRECTORY.SEED_FILE", "")
	v.SetDefault("DIRECTORY.DEFAULT_PASSWORD", "password123")

	v.SetDefault("AVATARS.TYPE", "local")
	v.SetDefault("AVATARS.LOCAL_PATH", "./uploads/avatars")
	v.SetDefault("AVATARS.BASE_URL", "/uploads/avatars")
	v.SetDefault("AVATARS.MAX_FILE_SIZE_MB", 5)
	v.SetDefault("AVATARS.MINIO.ENDPOINT", "localhost:9000")
	v.SetDefault("AVATARS.MINIO.BUCKET_NAME", "schedle-avatars")
	v.SetDefault("AVATARS.MINIO.USE_SSL", false)

	v.SetDefault("WEBSOCKET.WRITE_WAIT_SECONDS", 10)
	v.SetDefault("WEBSOCKET.PONG_WAIT_SECONDS", 60)
	v.SetDefault("WEBSOCKET.PING_PERIOD_SECONDS", 54) // (60 * 9) / 10
	v.SetDefault("WEBSOCKET.MAX_MESSAGE_SIZE_BYTES", 512)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// SERVER_PORT style variables override nested keys.
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		// Defaults are enough to run locally.
	}

	err = v.Unmarshal(&config)
	return
}
