package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	devJWTSecret = "dev_secret_change_me_dev_secret_change_me_dev_secret_change_me_0"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Auth     AuthConfig
	CORS     CORSConfig
	Log      LogConfig
	News     NewsConfig
	Audit    AuditConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host             string
	Port             int
	Password         string
	DB               int
	KeyPrefix        string
	OperationTimeout time.Duration
}

// JWTConfig carries the signing key material and token lifetimes. Lifetimes are
// configured in seconds.
type JWTConfig struct {
	Secret     string
	Issuer     string
	Algorithm  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AuthConfig toggles refresh rotation semantics.
type AuthConfig struct {
	StrictRotation bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// NewsConfig tunes the public news endpoints.
type NewsConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
	LatestLimit  int
}

// AuditConfig sizes the asynchronous audit writer.
type AuditConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:             v.GetString("REDIS_HOST"),
		Port:             v.GetInt("REDIS_PORT"),
		Password:         v.GetString("REDIS_PASSWORD"),
		DB:               v.GetInt("REDIS_DB"),
		KeyPrefix:        v.GetString("REDIS_KEY_PREFIX"),
		OperationTimeout: parseDuration(v.GetString("REDIS_OPERATION_TIMEOUT"), 500*time.Millisecond),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Algorithm:  strings.ToUpper(v.GetString("JWT_ALGORITHM")),
		AccessTTL:  time.Duration(v.GetInt64("JWT_ACCESS_TOKEN_EXPIRE_SECONDS")) * time.Second,
		RefreshTTL: time.Duration(v.GetInt64("JWT_REFRESH_TOKEN_EXPIRE_SECONDS")) * time.Second,
	}

	cfg.Auth = AuthConfig{StrictRotation: v.GetBool("AUTH_STRICT_ROTATION")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.News = NewsConfig{
		CacheEnabled: v.GetBool("ENABLE_NEWS_CACHE"),
		CacheTTL:     parseDuration(v.GetString("NEWS_CACHE_TTL"), 2*time.Minute),
		LatestLimit:  v.GetInt("NEWS_LATEST_LIMIT"),
	}

	cfg.Audit = AuditConfig{
		Workers:    v.GetInt("AUDIT_WORKERS"),
		BufferSize: v.GetInt("AUDIT_BUFFER"),
		MaxRetries: v.GetInt("AUDIT_MAX_RETRIES"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the token subsystem cannot run with.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Env == EnvProduction && c.JWT.Secret == devJWTSecret {
		return errors.New("JWT_SECRET must be overridden in production")
	}
	minLen, ok := minSecretLength[c.JWT.Algorithm]
	if !ok {
		return fmt.Errorf("unsupported JWT_ALGORITHM %q", c.JWT.Algorithm)
	}
	if len(c.JWT.Secret) < minLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes for %s", minLen, c.JWT.Algorithm)
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT token lifetimes must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("JWT access token lifetime must be shorter than the refresh token lifetime")
	}
	if c.Redis.OperationTimeout <= 0 {
		return errors.New("REDIS_OPERATION_TIMEOUT must be positive")
	}
	return nil
}

var minSecretLength = map[string]int{
	"HS256": 32,
	"HS384": 48,
	"HS512": 64,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "voice_news")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "")
	v.SetDefault("REDIS_OPERATION_TIMEOUT", "500ms")

	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("JWT_ISSUER", "voice-news")
	v.SetDefault("JWT_ALGORITHM", "HS512")
	v.SetDefault("JWT_ACCESS_TOKEN_EXPIRE_SECONDS", 900)
	v.SetDefault("JWT_REFRESH_TOKEN_EXPIRE_SECONDS", 604800)
	v.SetDefault("AUTH_STRICT_ROTATION", false)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_NEWS_CACHE", true)
	v.SetDefault("NEWS_CACHE_TTL", "2m")
	v.SetDefault("NEWS_LATEST_LIMIT", 10)

	v.SetDefault("AUDIT_WORKERS", 2)
	v.SetDefault("AUDIT_BUFFER", 256)
	v.SetDefault("AUDIT_MAX_RETRIES", 3)
}

// isMissingFile reports whether viper failed only because .env is absent. With
// SetConfigFile viper returns the raw fs error instead of ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
