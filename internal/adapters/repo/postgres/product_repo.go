package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/facuvega/vitrina/internal/domain"
)

type ProductRepo struct{ db *gorm.DB }

func NewProductRepo(db *gorm.DB) *ProductRepo { return &ProductRepo{db: db} }

func (r *ProductRepo) Save(ctx context.Context, p *domain.Product) error {
	return r.db.WithContext(ctx).Omit("Variants").Save(p).Error
}

func (r *ProductRepo) FindBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	var p domain.Product
	if err := r.db.WithContext(ctx).Preload("Images").Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).First(&p, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var p domain.Product
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, int64, error) {
	var list []domain.Product
	q := r.db.WithContext(ctx).Model(&domain.Product{})
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Active != nil {
		q = q.Where("active = ?", *f.Active)
	}
	if f.Query != "" {
		like := "%" + strings.TrimSpace(f.Query) + "%"
		q = q.Where("LOWER(title) LIKE LOWER(?) OR LOWER(category) LIKE LOWER(?)", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	switch f.Sort {
	case "price_desc":
		q = q.Order("base_price desc")
	case "price_asc":
		q = q.Order("base_price asc")
	case "newest":
		q = q.Order("created_at desc")
	default:
		q = q.Order("title asc")
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	offset := (f.Page - 1) * f.PageSize
	if err := q.Offset(offset).Limit(f.PageSize).Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *ProductRepo) ListVariants(ctx context.Context, productID uuid.UUID) ([]domain.Variant, error) {
	var list []domain.Variant
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).Order("created_at asc").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *ProductRepo) FindVariant(ctx context.Context, variantID uuid.UUID) (*domain.Variant, error) {
	var v domain.Variant
	if err := r.db.WithContext(ctx).First(&v, "id = ?", variantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// SaveWithVariants persiste producto y reconciliación bajo una sola
// transacción. El guard de eliminación lee cart_items dentro de la misma
// tx (estado al momento del guardado, no una lectura vieja): con líneas
// vivas y sin force, el guardado entero falla con VariantConflictError y
// el rollback deja también los campos base del producto intactos.
func (r *ProductRepo) SaveWithVariants(ctx context.Context, p *domain.Product, rec domain.Reconciliation, force bool) (int64, error) {
	var removedLines int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Variants").Save(p).Error; err != nil {
			return err
		}
		if len(rec.Removed) > 0 {
			ids := make([]uuid.UUID, 0, len(rec.Removed))
			keyByID := make(map[uuid.UUID]string, len(rec.Removed))
			for _, v := range rec.Removed {
				ids = append(ids, v.ID)
				keyByID[v.ID] = domain.VariantKey(v.Size, v.Color, v.Material)
			}

			var refs []domain.CartItem
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("variant_id IN ?", ids).Find(&refs).Error; err != nil {
				return err
			}
			if len(refs) > 0 {
				if !force {
					seen := map[string]struct{}{}
					keys := []string{}
					for _, it := range refs {
						k := keyByID[*it.VariantID]
						if _, ok := seen[k]; !ok {
							seen[k] = struct{}{}
							keys = append(keys, k)
						}
					}
					return &domain.VariantConflictError{Keys: keys, Lines: len(refs)}
				}
				res := tx.Where("variant_id IN ?", ids).Delete(&domain.CartItem{})
				if res.Error != nil {
					return res.Error
				}
				removedLines = res.RowsAffected
			}
			if err := tx.Where("id IN ?", ids).Delete(&domain.Variant{}).Error; err != nil {
				return err
			}
		}
		if len(rec.Variants) > 0 {
			vs := rec.Variants
			if err := tx.Save(&vs).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removedLines, nil
}

// DeleteBySlug cascadea explícito: variantes, imágenes y líneas de carrito
// que referencien el producto caen con él dentro de la misma tx.
func (r *ProductRepo) DeleteBySlug(ctx context.Context, slug string) error {
	var p domain.Product
	if err := r.db.WithContext(ctx).First(&p, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", p.ID).Delete(&domain.CartItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", p.ID).Delete(&domain.Image{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", p.ID).Delete(&domain.Variant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Product{}, "id = ?", p.ID).Error
	})
}
