package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DefaultTimeZone = "America/Mexico_City"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database       DatabaseConfig
	Redis          RedisConfig
	JWT            JWTConfig
	CORS           CORSConfig
	Log            LogConfig
	Cache          CacheConfig
	Enrollment     EnrollmentConfig
	DBA            DBAConfig
	SubmissionLogs SubmissionLogConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	CookieName        string
	CookieSecure      bool
	// SingleSession revokes earlier refresh tokens on every login.
	SingleSession     bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig governs read-through caching of catalog endpoints.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// EnrollmentConfig holds the institutional rules for pre-enrollment.
type EnrollmentConfig struct {
	MaxSubjects    int
	MaxSemester    int
	TimeZone       string
	IdempotencyTTL time.Duration
}

// DBAConfig configures the break-glass maintenance endpoints.
type DBAConfig struct {
	Token string
}

// SubmissionLogConfig sizes the background writer for admin submission logs.
type SubmissionLogConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// ClientConfig configures the student command line client.
type ClientConfig struct {
	Env             string
	APIURL          string
	Timeout         time.Duration
	ReadRetries     int
	RetryDelay      time.Duration
	TimeZone        string
	StatusStaleTime time.Duration
	Log             LogConfig
}

func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
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
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		CookieName:        v.GetString("AUTH_COOKIE_NAME"),
		CookieSecure:      v.GetBool("AUTH_COOKIE_SECURE"),
		SingleSession:     v.GetBool("AUTH_SINGLE_SESSION"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
	}

	cfg.Enrollment = EnrollmentConfig{
		MaxSubjects:    v.GetInt("ENROLLMENT_MAX_SUBJECTS"),
		MaxSemester:    v.GetInt("ENROLLMENT_MAX_SEMESTER"),
		TimeZone:       v.GetString("TIMEZONE"),
		IdempotencyTTL: parseDuration(v.GetString("IDEMPOTENCY_TTL"), 24*time.Hour),
	}

	cfg.DBA = DBAConfig{Token: v.GetString("DBA_TOKEN")}

	cfg.SubmissionLogs = SubmissionLogConfig{
		Workers:    v.GetInt("SUBMISSION_LOG_WORKERS"),
		BufferSize: v.GetInt("SUBMISSION_LOG_BUFFER"),
		MaxRetries: v.GetInt("SUBMISSION_LOG_RETRIES"),
		RetryDelay: parseDuration(v.GetString("SUBMISSION_LOG_RETRY_DELAY"), time.Second),
	}

	return cfg, nil
}

// LoadClient reads the configuration used by the command line client.
func LoadClient() (*ClientConfig, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	return &ClientConfig{
		Env:             v.GetString("ENV"),
		APIURL:          strings.TrimRight(v.GetString("PREENROLL_API_URL"), "/"),
		Timeout:         parseDuration(v.GetString("PREENROLL_TIMEOUT"), 15*time.Second),
		ReadRetries:     v.GetInt("PREENROLL_READ_RETRIES"),
		RetryDelay:      parseDuration(v.GetString("PREENROLL_RETRY_DELAY"), 500*time.Millisecond),
		TimeZone:        v.GetString("TIMEZONE"),
		StatusStaleTime: parseDuration(v.GetString("PREENROLL_STATUS_STALE_TIME"), 5*time.Minute),
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}, nil
}

func newViper() (*viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "preinscripciones")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "preenroll-api")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("AUTH_COOKIE_NAME", "access_token")
	v.SetDefault("AUTH_COOKIE_SECURE", false)
	v.SetDefault("AUTH_SINGLE_SESSION", false)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", true)
	v.SetDefault("CACHE_TTL", "5m")

	v.SetDefault("ENROLLMENT_MAX_SUBJECTS", 8)
	v.SetDefault("ENROLLMENT_MAX_SEMESTER", 9)
	v.SetDefault("TIMEZONE", DefaultTimeZone)
	v.SetDefault("IDEMPOTENCY_TTL", "24h")

	v.SetDefault("DBA_TOKEN", "")

	v.SetDefault("SUBMISSION_LOG_WORKERS", 2)
	v.SetDefault("SUBMISSION_LOG_BUFFER", 64)
	v.SetDefault("SUBMISSION_LOG_RETRIES", 3)
	v.SetDefault("SUBMISSION_LOG_RETRY_DELAY", "1s")

	v.SetDefault("PREENROLL_API_URL", "http://localhost:8080/api/v1")
	v.SetDefault("PREENROLL_TIMEOUT", "15s")
	v.SetDefault("PREENROLL_READ_RETRIES", 1)
	v.SetDefault("PREENROLL_RETRY_DELAY", "500ms")
	v.SetDefault("PREENROLL_STATUS_STALE_TIME", "5m")
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
