package domain

import (
	"context"

	"github.com/google/uuid"
)

// Identity identifica al dueño de un carrito: token de sesión anónima u
// id de cliente autenticado. Si ambos están presentes gana el cliente.
type Identity struct {
	SessionToken string
	CustomerID   *uuid.UUID
}

func (id Identity) Empty() bool {
	return id.SessionToken == "" && id.CustomerID == nil
}

type ProductRepo interface {
	Save(ctx context.Context, p *Product) error
	FindBySlug(ctx context.Context, slug string) (*Product, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)
	List(ctx context.Context, f ProductFilter) ([]Product, int64, error)
	ListVariants(ctx context.Context, productID uuid.UUID) ([]Variant, error)
	FindVariant(ctx context.Context, variantID uuid.UUID) (*Variant, error)

	// SaveWithVariants persiste el producto y aplica su reconciliación de
	// variantes en una sola transacción. Las eliminaciones se verifican
	// contra cart_items al momento del guardado; con referencias vivas la
	// transacción entera falla con VariantConflictError (el producto
	// tampoco se toca) salvo que force pida el cascadeo explícito.
	// Devuelve la cantidad de líneas de carrito eliminadas por el cascadeo.
	SaveWithVariants(ctx context.Context, p *Product, rec Reconciliation, force bool) (int64, error)

	DeleteBySlug(ctx context.Context, slug string) error
}

type CartRepo interface {
	// Resolve devuelve el carrito de la identidad, creándolo si falta.
	// Idempotente: llamadas repetidas devuelven el mismo carrito.
	Resolve(ctx context.Context, id Identity) (*Cart, error)

	AddItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID, qty int, unitPrice float64) (*CartItem, error)

	// AdjustQuantity lee y escribe bajo la misma transacción con lock de
	// fila. Devuelve la cantidad resultante autoritativa.
	AdjustQuantity(ctx context.Context, itemID uuid.UUID, delta int) (int, error)

	// RemoveItem es idempotente: borrar un item ausente es éxito.
	RemoveItem(ctx context.Context, itemID uuid.UUID) error

	// Merge pliega el carrito anónimo en el del cliente exactamente una
	// vez por token. Devuelve false si ya estaba completado.
	Merge(ctx context.Context, sessionToken string, customerID uuid.UUID) (bool, error)

	Items(ctx context.Context, cartID uuid.UUID) ([]CartItem, error)
}

type CustomerRepo interface {
	FindByEmail(ctx context.Context, email string) (*Customer, error)
	Save(ctx context.Context, c *Customer) error
}
