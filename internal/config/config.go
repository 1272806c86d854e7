package config

import (
	"os"
	"strconv"
	"strings"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// GCSConfig holds Google Cloud Storage settings.
type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
	EmulatorHost    string
}

// Storage drivers accepted in STORAGE_DRIVER.
const (
	DriverMinIO  = "minio"
	DriverGCS    = "gcs"
	DriverMemory = "memory"
)

// StorageConfig selects and configures the object storage backend.
type StorageConfig struct {
	Driver           string
	Namespace        string
	FetchConcurrency int
	PresignExpirySec int
	HealthTimeoutSec int
	MinIO            MinIOConfig
	GCS              GCSConfig
}

// Configured reports whether enough settings are present to build the
// selected driver. A false result puts listing into degraded mode instead of
// failing startup.
func (s StorageConfig) Configured() bool {
	switch s.Driver {
	case DriverMinIO:
		return s.MinIO.Endpoint != "" && s.MinIO.AccessKey != "" && s.MinIO.SecretKey != "" && s.MinIO.Bucket != ""
	case DriverGCS:
		return s.GCS.Bucket != ""
	case DriverMemory:
		return true
	default:
		return false
	}
}

// AuthConfig holds the single admin credential and the token signing key.
type AuthConfig struct {
	Username       string
	Password       string
	JWTSecret      string
	TokenTTLMinute int
}

// Project backends accepted in PROJECT_BACKEND.
const (
	BackendBlob     = "blob"
	BackendPostgres = "postgres"
)

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost          string
	Port             string
	Env              string
	ProjectBackend   string
	CORSAllowOrigins string
	Database         DatabaseConfig
	Storage          StorageConfig
	Auth             AuthConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:          getEnv("APP_HOST", "localhost:8080"),
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("APP_ENV", "production"),
		ProjectBackend:   strings.ToLower(getEnv("PROJECT_BACKEND", BackendBlob)),
		CORSAllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Storage: StorageConfig{
			Driver:           strings.ToLower(getEnv("STORAGE_DRIVER", DriverMinIO)),
			Namespace:        getEnv("STORAGE_NAMESPACE", "ar-projects-data"),
			FetchConcurrency: getEnvInt("FETCH_CONCURRENCY", 8),
			PresignExpirySec: getEnvInt("PRESIGN_EXPIRY_SEC", 900),
			HealthTimeoutSec: getEnvInt("HEALTH_TIMEOUT_SEC", 5),
			MinIO: MinIOConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", ""),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				Bucket:          getEnv("GCS_BUCKET", ""),
				ProjectID:       getEnv("GCS_PROJECT_ID", ""),
				CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
				EmulatorHost:    getEnv("STORAGE_EMULATOR_HOST", ""),
			},
		},
		Auth: AuthConfig{
			Username:       getEnv("AUTH_USERNAME", "admin"),
			Password:       getEnv("AUTH_PASSWORD", ""),
			JWTSecret:      getEnv("JWT_SECRET", ""),
			TokenTTLMinute: getEnvInt("TOKEN_TTL_MINUTES", 24*60),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
