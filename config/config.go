package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Unterstützte Upload-Backends.
const (
	UploadBackendLocal = "local"
	UploadBackendS3    = "s3"
	UploadBackendMinio = "minio"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	HTTPPort string `envconfig:"HTTP_PORT" default:"4000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// DATABASE_URL hat Vorrang vor den einzelnen DB_*-Werten.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBHost      string `envconfig:"DB_HOST" default:"localhost"`
	DBPort      int    `envconfig:"DB_PORT" default:"5432"`
	DBUser      string `envconfig:"DB_USER" default:"postgres"`
	DBPassword  string `envconfig:"DB_PASSWORD"`
	DBName      string `envconfig:"DB_NAME" default:"desserts"`
	DBSSLMode   string `envconfig:"DB_SSLMODE" default:"disable"`

	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`

	UploadBackend   string `envconfig:"UPLOAD_BACKEND" default:"local"`
	UploadDir       string `envconfig:"UPLOAD_DIR" default:"uploads"`
	UploadURLPrefix string `envconfig:"UPLOAD_URL_PREFIX" default:"/uploads"`
	UploadMaxBytes  int64  `envconfig:"UPLOAD_MAX_BYTES" default:"10485760"`

	// Gilt für die Backends s3 und minio.
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
	// Uploads liegen im Bucket unter diesem Präfix, nur dort räumt der Sweep auf.
	UploadKeyPrefix string `envconfig:"UPLOAD_KEY_PREFIX" default:"desserts/"`

	UploadSweepSchedule string        `envconfig:"UPLOAD_SWEEP_SCHEDULE" default:"@hourly"`
	UploadSweepGrace    time.Duration `envconfig:"UPLOAD_SWEEP_GRACE" default:"1h"`

	CORSAllowOrigins string `envconfig:"CORS_ALLOW_ORIGINS" default:"*"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	dsn := fmt.Sprintf("host=%s user=%s dbname=%s port=%d sslmode=%s",
		c.DBHost, c.DBUser, c.DBName, c.DBPort, c.DBSSLMode)
	if c.DBPassword != "" {
		dsn += " password=" + c.DBPassword
	}
	return dsn
}

// AllowedOrigins zerlegt CORS_ALLOW_ORIGINS in eine Liste.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Validate prüft Kombinationen, die envconfig allein nicht abbilden kann.
func (c *Config) Validate() error {
	switch c.UploadBackend {
	case UploadBackendLocal:
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR must not be empty for the local upload backend")
		}
	case UploadBackendS3, UploadBackendMinio:
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			return fmt.Errorf("S3_ENDPOINT and S3_BUCKET are required for the %s upload backend", c.UploadBackend)
		}
		if strings.Trim(c.UploadKeyPrefix, "/ ") == "" && c.UploadSweepSchedule != "" {
			return fmt.Errorf("UPLOAD_KEY_PREFIX must not be empty while UPLOAD_SWEEP_SCHEDULE is set for the %s upload backend", c.UploadBackend)
		}
	default:
		return fmt.Errorf("unknown UPLOAD_BACKEND %q", c.UploadBackend)
	}
	if !strings.HasPrefix(c.UploadURLPrefix, "/") {
		return fmt.Errorf("UPLOAD_URL_PREFIX must start with '/'")
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	return nil
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
