package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tesseract-Nexus/go-shared/secrets"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dataload-service/internal/models"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisURL      string
	RedisPassword string

	// Server
	Port        string
	Environment string

	// Services
	NATSURL         string
	StaffServiceURL string

	// Auth
	JWTSecret           string // bearer-token auth when not behind Istio
	UploadRatePerMinute int
	UploadRateBurst     int

	// Storage
	StorageBackend        string // s3 or local
	StorageBucket         string
	StorageLocalDir       string
	S3Endpoint            string
	DeleteAfterProcessing bool
	MaxUploadSizeMB       int64
	EnforceUploadSequence bool // reject a load whose prerequisite types never completed

	// Dispatcher
	DispatcherWorkers   int
	DispatchPollTimeout time.Duration
	RowTimeout          time.Duration
	ProgressEvery       int
	SweepInterval       time.Duration
	SweepPendingAfter   time.Duration
	SweepAbandonedAfter time.Duration
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	deleteAfter, _ := strconv.ParseBool(getEnv("DELETE_AFTER_PROCESSING", "false"))
	enforceSequence, _ := strconv.ParseBool(getEnv("ENFORCE_UPLOAD_SEQUENCE", "true"))
	maxUpload, _ := strconv.ParseInt(getEnv("MAX_UPLOAD_SIZE_MB", "20"), 10, 64)
	workers, _ := strconv.Atoi(getEnv("DISPATCHER_WORKERS", "4"))
	progressEvery, _ := strconv.Atoi(getEnv("PROGRESS_EVERY", "50"))
	ratePerMinute, _ := strconv.Atoi(getEnv("UPLOAD_RATE_PER_MINUTE", "30"))
	rateBurst, _ := strconv.Atoi(getEnv("UPLOAD_RATE_BURST", "5"))

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: secrets.GetDBPassword(),
		DBName:     getEnv("DB_NAME", "dataload_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisURL:      getEnv("REDIS_URL", "redis://redis.redis-marketplace.svc.cluster.local:6379/0"),
		RedisPassword: secrets.GetRedisPassword(),

		Port:        getEnv("PORT", "8096"),
		Environment: getEnv("ENVIRONMENT", "development"),

		NATSURL:         getEnv("NATS_URL", ""),
		StaffServiceURL: getEnv("STAFF_SERVICE_URL", "http://staff-service:8080/api/v1"),

		JWTSecret:           getEnv("JWT_SECRET", ""),
		UploadRatePerMinute: ratePerMinute,
		UploadRateBurst:     rateBurst,

		StorageBackend:        strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		StorageBucket:         getEnv("STORAGE_BUCKET", "dataload-uploads"),
		StorageLocalDir:       getEnv("STORAGE_LOCAL_DIR", "/tmp/dataload"),
		S3Endpoint:            getEnv("AWS_S3_ENDPOINT", ""),
		DeleteAfterProcessing: deleteAfter,
		MaxUploadSizeMB:       maxUpload,
		EnforceUploadSequence: enforceSequence,

		DispatcherWorkers:   workers,
		DispatchPollTimeout: getDuration("DISPATCH_POLL_TIMEOUT", 5*time.Second),
		RowTimeout:          getDuration("ROW_TIMEOUT", 30*time.Second),
		ProgressEvery:       progressEvery,
		SweepInterval:       getDuration("SWEEP_INTERVAL", time.Minute),
		SweepPendingAfter:   getDuration("SWEEP_PENDING_AFTER", 5*time.Minute),
		SweepAbandonedAfter: getDuration("SWEEP_ABANDONED_AFTER", 30*time.Minute),
	}
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	var logLevel logger.LogLevel
	if cfg.IsProduction() {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Running auto-migrations...")
	if err := db.AutoMigrate(
		&models.UploadSession{},
		&models.Category{},
		&models.Brand{},
		&models.Attribute{},
		&models.AttributeValue{},
		&models.ReturnPolicy{},
		&models.ShoppingCategory{},
		&models.Product{},
		&models.ProductSpecification{},
		&models.ProductImage{},
		&models.SKU{},
		&models.SKUVariant{},
		&models.Price{},
	); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "does not exist") && strings.Contains(errStr, "constraint") {
			log.Printf("Note: Migration constraint warning (safe to ignore): %v", err)
		} else {
			return nil, fmt.Errorf("failed to run auto-migrations: %w", err)
		}
	}
	log.Println("Auto-migrations completed successfully")

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration accepts Go durations ("30s") or plain seconds ("30").
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Invalid duration for %s=%q, using %s", key, value, defaultValue)
	return defaultValue
}
