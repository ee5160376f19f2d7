package domain

import (
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Slug           string    `gorm:"uniqueIndex;size:140"`
	Title          string    `gorm:"size:255"`
	Description    string    `gorm:"type:text"`
	BasePrice      float64   `gorm:"type:decimal(12,2)"`
	CompareAtPrice float64   `gorm:"type:decimal(12,2);default:0"`
	CostPerItem    float64   `gorm:"type:decimal(12,2);default:0"`
	Inventory      int       `gorm:"type:int;default:0"`
	AllowBackorder bool      `gorm:"default:false"`
	Category       string    `gorm:"size:100"`
	Active         bool      `gorm:"default:true;index"`
	Images         []Image
	Variants       []Variant
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Variant es una combinación concreta de ejes (talle/color/material).
// ID es identidad subrogada estable entre ediciones; Key es la clave
// canónica de la tupla y define unicidad dentro del producto.
type Variant struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"type:uuid;index"`
	Size      string    `gorm:"size:60"`
	Color     string    `gorm:"size:60"`
	Material  string    `gorm:"size:60"`
	Key       string    `gorm:"size:200;index"`
	Stock     int       `gorm:"type:int;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Image struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"type:uuid;index"`
	URL       string    `gorm:"size:255"`
	Alt       string    `gorm:"size:140"`
	CreatedAt time.Time
}

type ProductFilter struct {
	Category string
	Query    string
	Active   *bool
	Sort     string
	Page     int
	PageSize int
}
