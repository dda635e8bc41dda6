package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Config holds all configuration values from environment.
type Config struct {
	AppPort        string
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioSSL       bool

	// Upload settings
	MaxUploadSize int64         // Ceiling for a declared archive size in bytes (default: 100 GiB)
	TempDir       string        // Root directory for upload sessions and extraction
	SessionTTL    time.Duration // Abandoned upload sessions are evicted after this

	// Batch upload settings
	UploadWorkers    int           // Worker pool size for object uploads (default: 15)
	UploadMaxRetries int           // Retry rounds for failed uploads (default: 3)
	UploadRetryDelay time.Duration // Delay between retry rounds (default: 1s)

	// StorageOwner is the leading segment of object keys:
	// {owner}/{dataset_id}/images/{split}/{filename}
	StorageOwner string
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is honored if present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	minioSSL := false
	if sslEnv := os.Getenv("MINIO_SSL"); sslEnv != "" {
		val, err := strconv.ParseBool(sslEnv)
		if err != nil {
			return nil, fmt.Errorf("invalid MINIO_SSL value: %v", err)
		}
		minioSSL = val
	}

	maxUploadSize := int64(100 << 30)
	if sizeEnv := os.Getenv("MAX_UPLOAD_SIZE"); sizeEnv != "" {
		val, err := strconv.ParseInt(sizeEnv, 10, 64)
		if err == nil && val > 0 {
			maxUploadSize = val
		}
	}

	tempDir := os.Getenv("UPLOAD_TEMP_DIR")
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	sessionTTL := 24 * time.Hour
	if ttlEnv := os.Getenv("SESSION_TTL"); ttlEnv != "" {
		if val, err := time.ParseDuration(ttlEnv); err == nil {
			sessionTTL = val
		}
	}

	uploadWorkers := 15
	if wEnv := os.Getenv("UPLOAD_WORKERS"); wEnv != "" {
		if val, err := strconv.Atoi(wEnv); err == nil && val > 0 {
			uploadWorkers = val
		}
	}
	uploadMaxRetries := 3
	if rEnv := os.Getenv("UPLOAD_MAX_RETRIES"); rEnv != "" {
		if val, err := strconv.Atoi(rEnv); err == nil && val >= 0 {
			uploadMaxRetries = val
		}
	}
	uploadRetryDelay := time.Second
	if dEnv := os.Getenv("UPLOAD_RETRY_DELAY"); dEnv != "" {
		if val, err := time.ParseDuration(dEnv); err == nil {
			uploadRetryDelay = val
		}
	}

	storageOwner := os.Getenv("STORAGE_OWNER")
	if storageOwner == "" {
		storageOwner = "admin"
	}

	cfg := &Config{
		AppPort:        os.Getenv("DATASET_PORT"),
		DBHost:         os.Getenv("DB_HOST"),
		DBPort:         os.Getenv("DB_PORT"),
		DBUser:         os.Getenv("DB_USER"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBName:         os.Getenv("DB_NAME"),
		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    os.Getenv("MINIO_BUCKET"),
		MinioSSL:       minioSSL,

		MaxUploadSize: maxUploadSize,
		TempDir:       tempDir,
		SessionTTL:    sessionTTL,

		UploadWorkers:    uploadWorkers,
		UploadMaxRetries: uploadMaxRetries,
		UploadRetryDelay: uploadRetryDelay,

		StorageOwner: storageOwner,
	}
	// Basic validation for required fields
	if cfg.DBHost == "" || cfg.DBUser == "" || cfg.DBName == "" {
		return nil, fmt.Errorf("database configuration is incomplete")
	}
	if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
		return nil, fmt.Errorf("minio configuration is incomplete")
	}
	return cfg, nil
}

// ConnectDatabase initializes a GORM database connection to PostgreSQL.
func ConnectDatabase(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	return db, nil
}
