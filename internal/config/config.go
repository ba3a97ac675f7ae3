package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers understood by the service.
const (
	DriverMySQL  = "mysql"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	Server ServerConfig `json:"server"`

	// Storage selects the ledger backend
	Storage StorageConfig `json:"storage"`

	// Database Configuration (MySQL)
	Database DatabaseConfig `json:"database"`

	MongoDB MongoDBConfig `json:"mongodb"`

	// Redis backs the change feed used for conditional polling
	Redis RedisConfig `json:"redis"`

	Auth AuthConfig `json:"auth"`

	Chat ChatConfig `json:"chat"`

	// Logging Configuration
	Logging LoggingConfig `json:"logging"`

	Metrics MetricsConfig `json:"metrics"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host            string `json:"host"`
	HTTPPort        string `json:"http_port"`
	ChatServicePort string `json:"chat_service_port"` // gRPC
	ReadTimeout     int    `json:"read_timeout"`      // seconds
	WriteTimeout    int    `json:"write_timeout"`     // seconds
	ShutdownTimeout int    `json:"shutdown_timeout"`  // seconds
	Environment     string `json:"environment"`       // development, staging, production
}

type StorageConfig struct {
	Driver string `json:"driver"` // mysql, mongo, memory
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DatabaseName string `json:"database_name"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
	LogSQL       bool   `json:"log_sql"`
}

type MongoDBConfig struct {
	URI          string `json:"uri"` // overrides the parts below when set
	Host         string `json:"host"`
	Port         string `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Database     string `json:"database"`
	Transactions bool   `json:"transactions"` // requires a replica set
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type AuthConfig struct {
	JWTSecret   string        `json:"-"`
	Issuer      string        `json:"issuer"`
	TokenTTL    time.Duration `json:"token_ttl"`
	TrustHeader bool          `json:"trust_header"` // accept X-User-ID from a gateway
}

// ChatConfig holds the limits of the messaging core
type ChatConfig struct {
	DefaultPageSize  int           `json:"default_page_size"`
	MaxPageSize      int           `json:"max_page_size"`
	MaxContentLength int           `json:"max_content_length"` // runes
	SendRateLimit    int           `json:"send_rate_limit"`    // sends per window, 0 disables
	SendRateWindow   time.Duration `json:"send_rate_window"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // json, text
	OutputPath string `json:"output_path"` // stdout, stderr, or file path
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			HTTPPort:        getEnv("HTTP_PORT", "8080"),
			ChatServicePort: getEnv("CHAT_SERVICE_PORT", "7003"),
			ReadTimeout:     getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:    getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			ShutdownTimeout: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT", 30),
			Environment:     getEnv("APP_ENV", "development"),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getEnv("STORAGE_DRIVER", DriverMySQL)),
		},
		Database: DatabaseConfig{
			Host:         getEnv("MYSQL_HOST", "localhost"),
			Port:         getEnv("MYSQL_PORT", "3306"),
			Username:     getEnv("MYSQL_USERNAME", "gosocial"),
			Password:     getEnv("MYSQL_PASSWORD", "gosocial123"),
			DatabaseName: getEnv("MYSQL_DATABASE", "gosocial"),
			MaxOpenConns: getEnvAsInt("MYSQL_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("MYSQL_MAX_IDLE_CONNS", 5),
			LogSQL:       getEnvAsBool("MYSQL_LOG_SQL", false),
		},
		MongoDB: MongoDBConfig{
			URI:          getEnv("MONGO_URI", ""),
			Host:         getEnv("MONGO_HOST", "localhost"),
			Port:         getEnv("MONGO_PORT", "27017"),
			Username:     getEnv("MONGO_USERNAME", "admin"),
			Password:     getEnv("MONGO_PASSWORD", "admin123"),
			Database:     getEnv("MONGO_DATABASE", "gosocial"),
			Transactions: getEnvAsBool("MONGO_TRANSACTIONS", false),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", ""),
			Issuer:      getEnv("JWT_ISSUER", "gosocial"),
			TokenTTL:    getEnvAsDuration("JWT_TTL", 24*time.Hour),
			TrustHeader: getEnvAsBool("AUTH_TRUST_HEADER", false),
		},
		Chat: ChatConfig{
			DefaultPageSize:  getEnvAsInt("CHAT_PAGE_SIZE", 50),
			MaxPageSize:      getEnvAsInt("CHAT_MAX_PAGE_SIZE", 200),
			MaxContentLength: getEnvAsInt("CHAT_MAX_CONTENT_LENGTH", 4000),
			SendRateLimit:    getEnvAsInt("SEND_RATE_LIMIT", 30),
			SendRateWindow:   getEnvAsDuration("SEND_RATE_WINDOW", time.Minute),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "text"),
			OutputPath: getEnv("LOG_OUTPUT", "stdout"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}
}

// Validate rejects configurations the service can't start with.
func (cfg *Config) Validate() error {
	switch cfg.Storage.Driver {
	case DriverMySQL, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want mysql, mongo or memory)", cfg.Storage.Driver)
	}
	if cfg.Auth.JWTSecret == "" && !cfg.Auth.TrustHeader {
		return fmt.Errorf("JWT_SECRET is required unless AUTH_TRUST_HEADER is enabled")
	}
	if cfg.Chat.DefaultPageSize <= 0 || cfg.Chat.MaxPageSize < cfg.Chat.DefaultPageSize {
		return fmt.Errorf("invalid page sizes: default=%d max=%d", cfg.Chat.DefaultPageSize, cfg.Chat.MaxPageSize)
	}
	if cfg.Chat.MaxContentLength <= 0 {
		return fmt.Errorf("CHAT_MAX_CONTENT_LENGTH must be positive")
	}
	if cfg.Chat.SendRateLimit > 0 && cfg.Chat.SendRateWindow <= 0 {
		return fmt.Errorf("SEND_RATE_WINDOW must be positive when SEND_RATE_LIMIT is set")
	}
	return nil
}

func (cfg *Config) DSN() string {
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "3306"
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}

func (cfg *Config) GetMongoURI() string {
	if cfg.MongoDB.URI != "" {
		return cfg.MongoDB.URI
	}
	if cfg.MongoDB.Username == "" {
		return fmt.Sprintf("mongodb://%s:%s/%s", cfg.MongoDB.Host, cfg.MongoDB.Port, cfg.MongoDB.Database)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%s/%s?authSource=admin",
		cfg.MongoDB.Username,
		cfg.MongoDB.Password,
		cfg.MongoDB.Host,
		cfg.MongoDB.Port,
		cfg.MongoDB.Database,
	)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}
