package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dessert-api/models"
)

// ErrDessertNotFound wird zurückgegeben, wenn keine Zeile zur ID passt.
var ErrDessertNotFound = errors.New("dessert not found")

// DessertService kapselt alle Datenbankzugriffe auf die Tabelle desserts.
type DessertService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewDessertService erstellt eine neue Instanz des DessertService.
func NewDessertService(db *gorm.DB, logger *zap.Logger) *DessertService {
	return &DessertService{DB: db, Logger: logger}
}

// List liefert alle Desserts in der Reihenfolge der Datenbank.
func (s *DessertService) List(ctx context.Context) ([]models.Dessert, error) {
	desserts := []models.Dessert{}
	if err := s.DB.WithContext(ctx).Find(&desserts).Error; err != nil {
		return nil, fmt.Errorf("list desserts: %w", err)
	}
	return desserts, nil
}

// Get liefert das Dessert mit der angegebenen ID.
func (s *DessertService) Get(ctx context.Context, id uint) (*models.Dessert, error) {
	var d models.Dessert
	if err := s.DB.WithContext(ctx).First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDessertNotFound
		}
		return nil, fmt.Errorf("get dessert %d: %w", id, err)
	}
	return &d, nil
}

// Create legt ein neues Dessert an, die ID vergibt die Datenbank.
func (s *DessertService) Create(ctx context.Context, d *models.Dessert) error {
	d.ID = 0
	if err := s.DB.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("create dessert: %w", err)
	}
	s.Logger.Debug("Dessert created", zap.Uint("id", d.ID), zap.String("name", d.Name))
	return nil
}

// Update liest die aktuelle Zeile, übernimmt die gesetzten Felder des Patches
// und schreibt die zusammengeführte Zeile zurück. Zwischen Lesen und Schreiben
// gibt es keine Sperre, gleichzeitige Updates können sich überschreiben.
func (s *DessertService) Update(ctx context.Context, id uint, patch models.DessertPatch) (*models.Dessert, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(current)

	res := s.DB.WithContext(ctx).
		Model(&models.Dessert{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"name":        current.Name,
			"price":       current.Price,
			"description": current.Description,
			"image_url":   current.ImageURL,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("update dessert %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		// Zwischen Lesen und Schreiben gelöscht.
		return nil, ErrDessertNotFound
	}
	return current, nil
}

// Delete entfernt das Dessert endgültig.
func (s *DessertService) Delete(ctx context.Context, id uint) error {
	res := s.DB.WithContext(ctx).Delete(&models.Dessert{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete dessert %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDessertNotFound
	}
	s.Logger.Info("Dessert deleted", zap.Uint("id", id))
	return nil
}

// ImageNames liefert alle Bilddateinamen, auf die noch ein Dessert verweist.
func (s *DessertService) ImageNames(ctx context.Context) (map[string]struct{}, error) {
	var names []string
	err := s.DB.WithContext(ctx).
		Model(&models.Dessert{}).
		Where("image_url IS NOT NULL").
		Pluck("image_url", &names).Error
	if err != nil {
		return nil, fmt.Errorf("list image names: %w", err)
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out, nil
}
