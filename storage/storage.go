// Package storage verwaltet hochgeladene Dessert-Bilder. Die Ablage erfolgt
// wahlweise im lokalen Dateisystem, in S3 oder in MinIO.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"dessert-api/config"
)

// ErrObjectNotFound wird zurückgegeben, wenn unter dem Schlüssel kein Objekt liegt.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo beschreibt ein gespeichertes Objekt.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore ist die gemeinsame Schnittstelle aller Upload-Backends.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// New erstellt das in UPLOAD_BACKEND konfigurierte Backend.
func New(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	switch cfg.UploadBackend {
	case config.UploadBackendLocal:
		local, err := NewLocalStore(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		return local, nil
	case config.UploadBackendS3:
		client, err := NewS3Client(ctx, S3Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		return WithKeyPrefix(NewS3Store(client, cfg.S3Bucket), cfg.UploadKeyPrefix), nil
	case config.UploadBackendMinio:
		store, err := NewMinioStore(ctx, MinioOptions{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
		})
		if err != nil {
			return nil, err
		}
		return WithKeyPrefix(store, cfg.UploadKeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown upload backend %q", cfg.UploadBackend)
	}
}

var whitespaceRun = regexp.MustCompile(`[\s\p{Zs}]+`)

// GenerateFilename baut den Ablagenamen für einen Upload:
// <unix-millis>-<basename ohne Endung, Leerraum durch "-" ersetzt><endung>.
func GenerateFilename(original string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(original, `\`, "/"))
	if base == "." || base == "/" {
		base = ""
	}
	ext := path.Ext(base)
	if ext == base {
		// Dotfiles wie ".jpg" haben keine Endung, der ganze Name ist der Stamm.
		ext = ""
	}
	stem := whitespaceRun.ReplaceAllString(strings.TrimSuffix(base, ext), "-")
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), stem, ext)
}

// validKey lehnt Schlüssel ab, die aus dem Upload-Verzeichnis herausführen könnten.
func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}
