package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/facuvega/vitrina/internal/domain"
)

// CartUC es el único camino de escritura sobre carritos e items; nada más
// los toca directo para que las invariantes del modelo no se salteen.
type CartUC struct {
	Carts    domain.CartRepo
	Products domain.ProductRepo
}

func (uc *CartUC) Resolve(ctx context.Context, id domain.Identity) (*domain.Cart, error) {
	if id.Empty() {
		return nil, domain.ErrIdentityRequired
	}
	return uc.Carts.Resolve(ctx, id)
}

// Get arma la proyección de líneas que el cliente usa como caché local.
func (uc *CartUC) Get(ctx context.Context, id domain.Identity) ([]domain.CartLine, error) {
	cart, err := uc.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := uc.Carts.Items(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	lines := make([]domain.CartLine, 0, len(items))
	for _, it := range items {
		line := domain.CartLine{
			ItemID:    it.ID,
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Qty:       it.Qty,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.UnitPrice * float64(it.Qty),
		}
		if p, err := uc.Products.FindByID(ctx, it.ProductID); err == nil && p != nil {
			line.Title = p.Title
		}
		if it.VariantID != nil {
			if v, err := uc.Products.FindVariant(ctx, *it.VariantID); err == nil && v != nil {
				line.Size = v.Size
				line.Color = v.Color
				line.Material = v.Material
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// AddItem agrega (o incrementa) la línea (producto, variante-o-nula).
func (uc *CartUC) AddItem(ctx context.Context, id domain.Identity, productID uuid.UUID, variantID *uuid.UUID, qty int) (*domain.CartItem, error) {
	if qty == 0 {
		qty = 1
	}
	if qty < 1 || productID == uuid.Nil {
		return nil, domain.ErrInvalidInput
	}
	p, err := uc.Products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if variantID != nil {
		v, err := uc.Products.FindVariant(ctx, *variantID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.ErrInvalidVariant
			}
			return nil, err
		}
		if v.ProductID != productID {
			return nil, domain.ErrInvalidVariant
		}
	}
	cart, err := uc.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	item, err := uc.Carts.AddItem(ctx, cart.ID, productID, variantID, qty, p.BasePrice)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// AdjustQuantity aplica el delta bajo la misma transacción que la lectura
// y devuelve la cantidad autoritativa. Nunca acepta un absoluto del
// cliente: ese es exactamente el canal de lost updates.
func (uc *CartUC) AdjustQuantity(ctx context.Context, itemID uuid.UUID, delta int) (int, error) {
	if itemID == uuid.Nil || delta == 0 {
		return 0, domain.ErrInvalidInput
	}
	return uc.Carts.AdjustQuantity(ctx, itemID, delta)
}

func (uc *CartUC) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	if itemID == uuid.Nil {
		return domain.ErrInvalidInput
	}
	return uc.Carts.RemoveItem(ctx, itemID)
}

// Merge pliega el carrito anónimo en el del cliente. Idempotente por
// token: el marcador persistido se chequea y setea en la misma unidad
// atómica que el merge.
func (uc *CartUC) Merge(ctx context.Context, sessionToken string, customerID uuid.UUID) (bool, error) {
	if sessionToken == "" || customerID == uuid.Nil {
		return false, domain.ErrIdentityRequired
	}
	merged, err := uc.Carts.Merge(ctx, sessionToken, customerID)
	if err != nil {
		log.Error().Err(err).Str("customer", customerID.String()).Msg("merge de carrito falló")
		return false, err
	}
	return merged, nil
}
