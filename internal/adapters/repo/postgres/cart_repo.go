package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/facuvega/vitrina/internal/domain"
)

type CartRepo struct{ db *gorm.DB }

func NewCartRepo(db *gorm.DB) *CartRepo { return &CartRepo{db: db} }

func (r *CartRepo) ownerQuery(q *gorm.DB, id domain.Identity) *gorm.DB {
	if id.CustomerID != nil {
		return q.Where("customer_id = ?", *id.CustomerID)
	}
	return q.Where("session_token = ?", id.SessionToken)
}

// Resolve devuelve el carrito vivo de la identidad o lo crea. El insert va
// con OnConflict DoNothing contra los índices únicos de dueño: dos
// requests simultáneos del mismo dueño convergen al mismo carrito.
func (r *CartRepo) Resolve(ctx context.Context, id domain.Identity) (*domain.Cart, error) {
	if id.Empty() {
		return nil, domain.ErrIdentityRequired
	}
	var c domain.Cart
	err := r.ownerQuery(r.db.WithContext(ctx), id).First(&c).Error
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	c = domain.Cart{ID: uuid.New()}
	if id.CustomerID != nil {
		cid := *id.CustomerID
		c.CustomerID = &cid
	} else {
		tok := id.SessionToken
		c.SessionToken = &tok
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&c)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// perdimos la carrera de creación; el carrito ya existe
		if err := r.ownerQuery(r.db.WithContext(ctx), id).First(&c).Error; err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// AddItem incrementa la línea existente para (producto, variante) o la
// crea. Lectura y escritura van bajo la misma tx con lock de fila.
func (r *CartRepo) AddItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID, qty int, unitPrice float64) (*domain.CartItem, error) {
	var out domain.CartItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// un builder de gorm no se reutiliza después de ejecutar; cada
		// lectura arma el suyo
		lockedLine := func() *gorm.DB {
			q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("cart_id = ? AND product_id = ?", cartID, productID)
			if variantID == nil {
				return q.Where("variant_id IS NULL")
			}
			return q.Where("variant_id = ?", *variantID)
		}
		var it domain.CartItem
		err := lockedLine().First(&it).Error
		if err == nil {
			it.Qty += qty
			if err := tx.Save(&it).Error; err != nil {
				return err
			}
			out = it
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		it = domain.CartItem{
			ID:        uuid.New(),
			CartID:    cartID,
			ProductID: productID,
			VariantID: variantID,
			Qty:       qty,
			UnitPrice: unitPrice,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&it)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// carrera con otro add de la misma línea: el índice único la
			// frenó, releer con lock e incrementar
			var cur domain.CartItem
			if err := lockedLine().First(&cur).Error; err != nil {
				return err
			}
			cur.Qty += qty
			if err := tx.Save(&cur).Error; err != nil {
				return err
			}
			out = cur
			return nil
		}
		out = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AdjustQuantity aplica new = cur + delta con la lectura bajo FOR UPDATE.
// Si new < 1 no muta y devuelve ErrWouldRemove junto con la cantidad
// vigente para que el caller confirme la baja con el shopper.
func (r *CartRepo) AdjustQuantity(ctx context.Context, itemID uuid.UUID, delta int) (int, error) {
	var result int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var it domain.CartItem
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&it, "id = ?", itemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		n := it.Qty + delta
		if n < 1 {
			result = it.Qty
			return domain.ErrWouldRemove
		}
		it.Qty = n
		if err := tx.Save(&it).Error; err != nil {
			return err
		}
		result = n
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrWouldRemove) {
		return 0, err
	}
	return result, err
}

// RemoveItem es idempotente: cero filas afectadas también es éxito.
func (r *CartRepo) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.CartItem{}, "id = ?", itemID).Error
}

// Merge pliega el carrito anónimo en el del cliente. El marcador se
// inserta primero dentro de la tx con OnConflict DoNothing: si la fila ya
// existe el merge anterior completó y esto es no-op; si la inserción gana,
// cualquier trigger concurrente del mismo token queda serializado detrás
// hasta el commit.
func (r *CartRepo) Merge(ctx context.Context, sessionToken string, customerID uuid.UUID) (bool, error) {
	merged := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		marker := domain.CartMerge{SessionToken: sessionToken, CustomerID: customerID, MergedAt: time.Now()}
		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&marker)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			return nil
		}

		var anon domain.Cart
		anonErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&anon, "session_token = ?", sessionToken).Error
		if anonErr != nil && !errors.Is(anonErr, gorm.ErrRecordNotFound) {
			return anonErr
		}

		var user domain.Cart
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&user, "customer_id = ?", customerID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cid := customerID
			user = domain.Cart{ID: uuid.New(), CustomerID: &cid}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if anonErr == nil {
			var anonItems, userItems []domain.CartItem
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("cart_id = ?", anon.ID).Order("created_at asc").Find(&anonItems).Error; err != nil {
				return err
			}
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("cart_id = ?", user.ID).Find(&userItems).Error; err != nil {
				return err
			}
			lineKey := func(it domain.CartItem) string {
				k := it.ProductID.String() + "|"
				if it.VariantID != nil {
					k += it.VariantID.String()
				}
				return k
			}
			byLine := make(map[string]*domain.CartItem, len(userItems))
			for i := range userItems {
				byLine[lineKey(userItems[i])] = &userItems[i]
			}
			for i := range anonItems {
				it := anonItems[i]
				if match, ok := byLine[lineKey(it)]; ok {
					match.Qty += it.Qty
					if err := tx.Save(match).Error; err != nil {
						return err
					}
					continue
				}
				it.CartID = user.ID
				if err := tx.Save(&it).Error; err != nil {
					return err
				}
			}
			// el carrito anónimo y lo que quedara en él desaparecen
			if err := tx.Where("cart_id = ?", anon.ID).Delete(&domain.CartItem{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&domain.Cart{}, "id = ?", anon.ID).Error; err != nil {
				return err
			}
		}
		merged = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return merged, nil
}

func (r *CartRepo) Items(ctx context.Context, cartID uuid.UUID) ([]domain.CartItem, error) {
	var list []domain.CartItem
	if err := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Order("created_at asc").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
