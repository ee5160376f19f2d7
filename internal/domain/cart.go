package domain

import (
	"time"

	"github.com/google/uuid"
)

// Cart pertenece a exactamente una identidad: token de sesión anónima o
// cliente autenticado, nunca ambos. Los índices únicos garantizan un solo
// carrito vivo por identidad.
type Cart struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	SessionToken *string    `gorm:"size:80;uniqueIndex"`
	CustomerID   *uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Items        []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CartItem es una línea (producto, variante-o-nula) con cantidad >= 1.
// La unicidad de (cart_id, product_id, variant_id) se crea por índice
// crudo en MigrateAndSeed porque variant_id admite NULL.
type CartItem struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CartID    uuid.UUID  `gorm:"type:uuid;index"`
	ProductID uuid.UUID  `gorm:"type:uuid;index"`
	VariantID *uuid.UUID `gorm:"type:uuid;index"`
	Qty       int        `gorm:"not null"`
	UnitPrice float64    `gorm:"type:decimal(12,2)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartMerge marca un merge completado para un token de sesión. Se inserta
// dentro de la misma transacción que el merge: un trigger duplicado
// encuentra la fila y es no-op.
type CartMerge struct {
	SessionToken string    `gorm:"primaryKey;size:80"`
	CustomerID   uuid.UUID `gorm:"type:uuid;index"`
	MergedAt     time.Time
}

// CartLine es la proyección que consume el cliente; el estado local del
// shopper es caché y se reconcilia siempre contra esto.
type CartLine struct {
	ItemID    uuid.UUID  `json:"item_id"`
	ProductID uuid.UUID  `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Title     string     `json:"title"`
	Size      string     `json:"size,omitempty"`
	Color     string     `json:"color,omitempty"`
	Material  string     `json:"material,omitempty"`
	Qty       int        `json:"qty"`
	UnitPrice float64    `json:"unit_price"`
	Subtotal  float64    `json:"subtotal"`
}
