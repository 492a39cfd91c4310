package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port    int
	Host    string
	SiteURL string

	// Database (definer-privilege connection; request roles are set per transaction)
	DatabaseURL string

	// Session JWT
	JWTSecret string
	JWTExpiry int // seconds

	// Callers presenting this key run as service_role
	ServiceKey string

	// Object storage (S3-compatible)
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string

	// Buckets for uploaded documents
	TORBucket         string
	CertificateBucket string

	// Upload limits
	UploadMaxSizeMB int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnvInt("PORT", 5000),
		Host:              getEnv("HOST", "0.0.0.0"),
		SiteURL:           getEnv("SITE_URL", "http://localhost:5000"),
		DatabaseURL:       mustGetEnv("DATABASE_URL"),
		JWTSecret:         mustGetEnv("JWT_SECRET"),
		JWTExpiry:         getEnvInt("JWT_EXPIRY", 86400),
		ServiceKey:        getEnv("SERVICE_ROLE_KEY", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3AccessKey:       getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:       getEnv("S3_SECRET_KEY", ""),
		TORBucket:         getEnv("TOR_BUCKET", "tor"),
		CertificateBucket: getEnv("CERT_BUCKET", "certificates"),
		UploadMaxSizeMB:   getEnvInt("UPLOAD_MAX_SIZE_MB", 25),
	}

	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.ServiceKey != "" && len(cfg.ServiceKey) < 32 {
		return nil, fmt.Errorf("SERVICE_ROLE_KEY must be at least 32 characters")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustGetEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
