package models

import "github.com/shopspring/decimal"

func init() {
	// Preise als JSON-Zahl (3.5) statt als String ("3.5") ausgeben.
	decimal.MarshalJSONWithoutQuotes = true
}

// Dessert repräsentiert einen Eintrag der Dessert-Karte.
type Dessert struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	Name        string          `json:"name" gorm:"type:text;not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(10,2);not null"`
	Description string          `json:"description" gorm:"type:text;not null"`
	// Dateiname des hochgeladenen Bildes, nil wenn keins hochgeladen wurde.
	ImageURL *string `json:"image_url" gorm:"column:image_url;type:text"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Dessert) TableName() string {
	return "desserts"
}

// DessertPatch beschreibt eine Teil-Aktualisierung. Nil-Felder behalten den gespeicherten Wert.
type DessertPatch struct {
	Name        *string
	Price       *decimal.Decimal
	Description *string
	ImageURL    *string
}

// Apply übernimmt alle gesetzten Felder des Patches in d.
func (p DessertPatch) Apply(d *Dessert) {
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.Price != nil {
		d.Price = *p.Price
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.ImageURL != nil {
		img := *p.ImageURL
		d.ImageURL = &img
	}
}
