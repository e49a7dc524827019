package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"dessert-api/storage"
)

const backupPrefix = "backup-"

// BackupConfig nutzt dieselben DB_*-Variablen wie der API-Server.
type BackupConfig struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBHost      string `envconfig:"DB_HOST" default:"localhost"`
	DBPort      int    `envconfig:"DB_PORT" default:"5432"`
	DBUser      string `envconfig:"DB_USER" default:"postgres"`
	DBPassword  string `envconfig:"DB_PASSWORD"`
	DBName      string `envconfig:"DB_NAME" default:"desserts"`

	BackupBucket    string `envconfig:"BACKUP_S3_BUCKET" required:"true"`
	BackupEndpoint  string `envconfig:"BACKUP_S3_ENDPOINT" required:"true"`
	BackupAccessKey string `envconfig:"BACKUP_S3_ACCESS_KEY" required:"true"`
	BackupSecretKey string `envconfig:"BACKUP_S3_SECRET_KEY" required:"true"`
	BackupRegion    string `envconfig:"BACKUP_S3_REGION" default:"us-east-1"`
	KeepBackups     int    `envconfig:"KEEP_BACKUPS" default:"4"`
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	logging.Info("Starting backup")

	_ = godotenv.Load()
	var cfg BackupConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	dumpData, err := createDump(ctx, cfg)
	if err != nil {
		logging.Fatal("Database dump failed", zap.Error(err))
	}

	client, err := storage.NewS3Client(ctx, storage.S3Options{
		Endpoint:  cfg.BackupEndpoint,
		Region:    cfg.BackupRegion,
		AccessKey: cfg.BackupAccessKey,
		SecretKey: cfg.BackupSecretKey,
	})
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	store := storage.NewS3Store(client, cfg.BackupBucket)

	key := backupKey(time.Now())
	if err := store.Put(ctx, key, bytes.NewReader(dumpData), int64(len(dumpData)), "application/gzip"); err != nil {
		logging.Fatal("Backup upload failed", zap.Error(err))
	}
	logging.Info("Backup uploaded",
		zap.String("bucket", cfg.BackupBucket),
		zap.String("key", key),
		zap.Int("bytes", len(dumpData)),
	)

	if err := rotateBackups(ctx, store, cfg.KeepBackups, logging); err != nil {
		logging.Fatal("Backup rotation failed", zap.Error(err))
	}

	logging.Info("Backup finished")
}

func backupKey(now time.Time) string {
	return fmt.Sprintf("%s%s.sql.gz", backupPrefix, now.UTC().Format("2006-01-02T15-04-05Z"))
}

func dumpArgs(cfg BackupConfig) []string {
	if cfg.DatabaseURL != "" {
		return []string{"--no-password", "--dbname", cfg.DatabaseURL}
	}
	return []string{
		"--no-password",
		"-h", cfg.DBHost,
		"-p", strconv.Itoa(cfg.DBPort),
		"-U", cfg.DBUser,
		"-d", cfg.DBName,
	}
}

func createDump(ctx context.Context, cfg BackupConfig) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "pg_dump", dumpArgs(cfg)...)
	cmd.Env = os.Environ()
	if cfg.DBPassword != "" {
		cmd.Env = append(cmd.Env, "PGPASSWORD="+cfg.DBPassword)
	}

	var buf bytes.Buffer
	if err := runCompressed(cmd, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// runCompressed startet cmd und schreibt seine Ausgabe gzip-komprimiert nach w.
// Der Prozess wird in jedem Fall abgewartet.
func runCompressed(cmd *exec.Cmd, w io.Writer) error {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	gzipWriter := gzip.NewWriter(w)
	_, copyErr := io.Copy(gzipWriter, stdout)
	if copyErr == nil {
		copyErr = gzipWriter.Close()
	}
	if copyErr != nil {
		// Sonst blockiert der Prozess beim Schreiben in die volle Pipe.
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()

	if copyErr != nil {
		return fmt.Errorf("compress %s output: %w", cmd.Path, copyErr)
	}
	if waitErr != nil {
		return fmt.Errorf("%s: %w: %s", cmd.Path, waitErr, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// expiredBackups liefert alle Backups außer den keep neuesten.
func expiredBackups(objects []storage.ObjectInfo, keep int) []storage.ObjectInfo {
	var backups []storage.ObjectInfo
	for _, obj := range objects {
		if strings.HasPrefix(obj.Key, backupPrefix) {
			backups = append(backups, obj)
		}
	}
	if keep < 0 {
		keep = 0
	}
	if len(backups) <= keep {
		return nil
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].LastModified.After(backups[j].LastModified)
	})
	return backups[keep:]
}

func rotateBackups(ctx context.Context, store storage.ObjectStore, keep int, logging *zap.Logger) error {
	objects, err := store.List(ctx, backupPrefix)
	if err != nil {
		return err
	}

	expired := expiredBackups(objects, keep)
	if len(expired) == 0 {
		logging.Info("No rotation needed", zap.Int("backups", len(objects)), zap.Int("keep", keep))
		return nil
	}

	for _, obj := range expired {
		logging.Info("Deleting old backup", zap.String("key", obj.Key))
		if err := store.Delete(ctx, obj.Key); err != nil {
			logging.Error("Failed to delete old backup", zap.String("key", obj.Key), zap.Error(err))
		}
	}
	return nil
}
