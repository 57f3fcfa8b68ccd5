// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/virtuallibrarycard/vlc/utils"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database    DatabaseConfig    `json:"database"`
	Server      ServerConfig      `json:"server"`
	JWT         JWTConfig         `json:"jwt"`
	Email       EmailConfig       `json:"email"`
	Logging     LoggingConfig     `json:"logging"`
	Cache       CacheConfig       `json:"cache"`
	CardNumbers CardNumbersConfig `json:"card_numbers"`
	BulkUpload  BulkUploadConfig  `json:"bulk_upload"`
	Captcha     CaptchaConfig     `json:"captcha"`
	Scheduler   SchedulerConfig   `json:"scheduler"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

// DSN renders the postgres connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// PublicBaseURL is the externally reachable URL used in e-mailed links
	PublicBaseURL  string   `json:"public_base_url"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type JWTConfig struct {
	SecretKey            string        `json:"secret_key"`
	AccessTokenTTL       time.Duration `json:"access_token_ttl"`
	VerificationTokenTTL time.Duration `json:"verification_token_ttl"`
	Issuer               string        `json:"issuer"`
}

type EmailConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Output string `json:"output"` // stdout, file, both

	// File rotation (lumberjack)
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type CacheConfig struct {
	Enabled       bool          `json:"enabled"`
	RedisHost     string        `json:"redis_host"`
	RedisPort     int           `json:"redis_port"`
	RedisPassword string        `json:"redis_password"`
	RedisDB       int           `json:"redis_db"`
	RedisPrefix   string        `json:"redis_prefix"`
	LibraryTTL    time.Duration `json:"library_ttl"`
}

type CardNumbersConfig struct {
	AlertThreshold   int64 `json:"alert_threshold"`
	Retries          int   `json:"retries"`
	RandomDigitsOnly bool  `json:"random_digits_only"`
	BurnOnCollision  bool  `json:"burn_on_collision"`
}

type BulkUploadConfig struct {
	MaxRows int `json:"max_rows"`
}

type SchedulerConfig struct {
	ExpiryRemindersEnabled bool          `json:"expiry_reminders_enabled"`
	Interval               time.Duration `json:"interval"`
	ReminderDays           int           `json:"reminder_days"`
	StaleJobAge            time.Duration `json:"stale_job_age"`
}

type CaptchaConfig struct {
	Enabled     bool          `json:"enabled"`
	AnglePad    int           `json:"angle_pad"` // tolerance in degrees
	ImageSizePx int           `json:"image_size_px"`
	TTL         time.Duration `json:"ttl"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "virtual_library_card"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			PublicBaseURL:   getEnvString("SERVER_PUBLIC_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:  getEnvStringSlice("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		JWT: JWTConfig{
			SecretKey:            getEnvString("JWT_SECRET_KEY", ""),
			AccessTokenTTL:       getEnvDuration("JWT_ACCESS_TOKEN_TTL", utils.AccessTokenTTL),
			VerificationTokenTTL: getEnvDuration("JWT_VERIFICATION_TOKEN_TTL", utils.VerificationTokenTTL),
			Issuer:               getEnvString("JWT_ISSUER", "virtual-library-card"),
		},
		Email: EmailConfig{
			Host:      getEnvString("EMAIL_HOST", "localhost"),
			Port:      getEnvInt("EMAIL_PORT", 587),
			Username:  getEnvString("EMAIL_USERNAME", ""),
			Password:  getEnvString("EMAIL_PASSWORD", ""),
			FromEmail: getEnvString("EMAIL_FROM", "no-reply@virtuallibrarycard.org"),
			FromName:  getEnvString("EMAIL_FROM_NAME", "Virtual Library Card"),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Output:     getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:   getEnvString("LOG_FILE_PATH", "/var/log/vlc/app.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Cache: CacheConfig{
			Enabled:       getEnvBool("CACHE_ENABLED", true),
			RedisHost:     getEnvString("CACHE_REDIS_HOST", "localhost"),
			RedisPort:     getEnvInt("CACHE_REDIS_PORT", 6379),
			RedisPassword: getEnvString("CACHE_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix:   getEnvString("CACHE_REDIS_PREFIX", "vlc:"),
			LibraryTTL:    getEnvDuration("CACHE_LIBRARY_TTL", 10*time.Minute),
		},
		CardNumbers: CardNumbersConfig{
			AlertThreshold:   int64(getEnvInt("CARD_NUMBERS_LIMIT_ALERT", utils.CardNumbersAlertThreshold)),
			Retries:          getEnvInt("CARD_NUMBERS_RETRIES", utils.NumberGenerationRetries),
			RandomDigitsOnly: getEnvBool("CARD_NUMBERS_RANDOM_DIGITS_ONLY", false),
			BurnOnCollision:  getEnvBool("CARD_NUMBERS_BURN_ON_COLLISION", true),
		},
		BulkUpload: BulkUploadConfig{
			MaxRows: getEnvInt("BULK_UPLOAD_MAX_ROWS", utils.BulkUploadMaxRows),
		},
		Scheduler: SchedulerConfig{
			ExpiryRemindersEnabled: getEnvBool("SCHEDULER_EXPIRY_REMINDERS_ENABLED", true),
			Interval:               getEnvDuration("SCHEDULER_INTERVAL", 24*time.Hour),
			ReminderDays:           getEnvInt("SCHEDULER_REMINDER_DAYS", 30),
			StaleJobAge:            getEnvDuration("SCHEDULER_STALE_JOB_AGE", 6*time.Hour),
		},
		Captcha: CaptchaConfig{
			Enabled:     getEnvBool("CAPTCHA_ENABLED", true),
			AnglePad:    getEnvInt("CAPTCHA_ANGLE_PAD", 10),
			ImageSizePx: getEnvInt("CAPTCHA_IMAGE_SIZE", 220),
			TTL:         getEnvDuration("CAPTCHA_TTL", utils.CaptchaTTL),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

// ValidateProductionConfig checks the configuration for missing or
// inconsistent values
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}

	if cfg.JWT.SecretKey == "" {
		errors = append(errors, "JWT_SECRET_KEY is required")
	}
	if len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errors = append(errors, "JWT_ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.JWT.VerificationTokenTTL <= 0 {
		errors = append(errors, "JWT_VERIFICATION_TOKEN_TTL must be positive")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.PublicBaseURL == "" {
		errors = append(errors, "SERVER_PUBLIC_BASE_URL is required")
	}

	if cfg.CardNumbers.Retries <= 0 {
		errors = append(errors, "CARD_NUMBERS_RETRIES must be positive")
	}
	if cfg.CardNumbers.AlertThreshold <= 0 {
		errors = append(errors, "CARD_NUMBERS_LIMIT_ALERT must be positive")
	}
	if cfg.BulkUpload.MaxRows <= 0 {
		errors = append(errors, "BULK_UPLOAD_MAX_ROWS must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}
