package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dessert-api/storage"
)

// ImageIndex liefert die Bilddateinamen, die noch von Desserts referenziert werden.
type ImageIndex interface {
	ImageNames(ctx context.Context) (map[string]struct{}, error)
}

// UploadReconciler entfernt hochgeladene Bilder, auf die kein Dessert mehr verweist.
// Solche Waisen entstehen durch ersetzte Bilder, gelöschte Desserts und
// Uploads, deren Insert fehlgeschlagen ist.
type UploadReconciler struct {
	Store  storage.ObjectStore
	Index  ImageIndex
	Grace  time.Duration
	Logger *zap.Logger

	now func() time.Time
}

// NewUploadReconciler erstellt einen Reconciler. Objekte, die jünger als grace
// sind, bleiben unangetastet, damit laufende Anlagen nicht gestört werden.
func NewUploadReconciler(store storage.ObjectStore, index ImageIndex, grace time.Duration, logger *zap.Logger) *UploadReconciler {
	return &UploadReconciler{
		Store:  store,
		Index:  index,
		Grace:  grace,
		Logger: logger,
		now:    time.Now,
	}
}

// Sweep führt einen Abgleich durch und gibt die Anzahl gelöschter Objekte zurück.
func (r *UploadReconciler) Sweep(ctx context.Context) (int, error) {
	// Objekte vor den Referenzen laden: ein Bild, das dazwischen angelegt
	// und referenziert wird, ist dann entweder unbekannt oder referenziert.
	objects, err := r.Store.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list uploads: %w", err)
	}
	referenced, err := r.Index.ImageNames(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := r.now().Add(-r.Grace)
	removed := 0
	for _, obj := range objects {
		if _, ok := referenced[obj.Key]; ok {
			continue
		}
		if obj.LastModified.After(cutoff) {
			continue
		}
		if err := r.Store.Delete(ctx, obj.Key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			r.Logger.Warn("Failed to remove orphaned upload", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		r.Logger.Info("Removed orphaned upload", zap.String("key", obj.Key), zap.Time("last_modified", obj.LastModified))
		removed++
	}
	return removed, nil
}
