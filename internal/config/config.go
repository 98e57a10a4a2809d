package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	PublicBaseURL      string
	FrontendURL        string
	DatabaseURL        string
	CORSAllowedOrigins []string
	DefaultTimezone    string
	RateLimitRPS       float64
	RateLimitBurst     int

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	JWTSecret string
	JWTTTL    time.Duration

	// eSewa ePay v2
	EsewaSecretKey   string
	EsewaProductCode string
	EsewaMerchantID  string
	EsewaBaseURL     string
	EsewaStatusURL   string

	PlatformFeePercent  int
	OrderVelocityLimit  int
	OrderVelocityWindow time.Duration

	// ZEGOCLOUD call credentials
	ZegoAppID        uint32
	ZegoServerSecret string
	ZegoTokenTTL     time.Duration

	// Email
	EmailProvider    string
	SendGridAPIKey   string
	EmailFromAddress string
	EmailFromName    string

	// AWS (S3 profile images, SES email)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	ProfileImageBucket  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		FrontendURL:        strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		DefaultTimezone:    getEnv("DEFAULT_TIMEZONE", "Asia/Kathmandu"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 30),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    getEnvAsDuration("JWT_TTL", 7*24*time.Hour),

		EsewaSecretKey:   getEnv("ESEWA_SECRET_KEY", ""),
		EsewaProductCode: getEnv("ESEWA_PRODUCT_CODE", "EPAYTEST"),
		EsewaMerchantID:  getEnv("ESEWA_MERCHANT_ID", "EPAYTEST"),
		EsewaBaseURL:     strings.TrimRight(getEnv("ESEWA_BASE_URL", "https://rc-epay.esewa.com.np"), "/"),
		EsewaStatusURL:   getEnv("ESEWA_STATUS_URL", ""),

		PlatformFeePercent:  getEnvAsInt("PLATFORM_FEE_PERCENT", 10),
		OrderVelocityLimit:  getEnvAsInt("ORDER_VELOCITY_LIMIT", 5),
		OrderVelocityWindow: getEnvAsDuration("ORDER_VELOCITY_WINDOW", time.Hour),

		ZegoAppID:        uint32(getEnvAsInt("ZEGO_APP_ID", 0)),
		ZegoServerSecret: getEnv("ZEGO_SERVER_SECRET", ""),
		ZegoTokenTTL:     getEnvAsDuration("ZEGO_TOKEN_TTL", 2*time.Hour),

		EmailProvider:    strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "DocSathi"),

		AWSRegion:           getEnv("AWS_REGION", "ap-south-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ProfileImageBucket:  getEnv("PROFILE_IMAGE_BUCKET", ""),
	}
}

// Validate reports configuration that the API server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err))
	}
	if c.PlatformFeePercent < 0 || c.PlatformFeePercent > 100 {
		errs = append(errs, fmt.Errorf("PLATFORM_FEE_PERCENT must be within 0..100, got %d", c.PlatformFeePercent))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether ENV selects production behaviour.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
