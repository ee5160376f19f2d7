package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/facuvega/vitrina/internal/domain"
)

type ProductUC struct {
	Products domain.ProductRepo
}

func (uc *ProductUC) List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, int64, error) {
	if f.PageSize == 0 {
		f.PageSize = 20
	}
	return uc.Products.List(ctx, f)
}

func (uc *ProductUC) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	if slug == "" {
		return nil, errors.New("slug vacío")
	}
	return uc.Products.FindBySlug(ctx, slug)
}

func (uc *ProductUC) DeleteBySlug(ctx context.Context, slug string) error {
	if slug == "" {
		return errors.New("slug vacío")
	}
	return uc.Products.DeleteBySlug(ctx, slug)
}

// MatrixView es lo que consume el form del comerciante: ejes extraídos de
// las variantes existentes más el stock actual por clave canónica.
type MatrixView struct {
	Axes   domain.AxisValues `json:"axes"`
	Stocks map[string]int    `json:"stocks"`
	Keys   []string          `json:"keys"`
}

func (uc *ProductUC) Matrix(ctx context.Context, slug string) (*MatrixView, error) {
	p, err := uc.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	m := domain.NewMatrix(p.Variants)
	return &MatrixView{
		Axes:   domain.ExtractAxes(p.Variants),
		Stocks: m.Stocks(),
		Keys:   m.Keys(),
	}, nil
}

// SaveResult reporta el resultado del guardado; RemovedCartLines solo es
// distinto de cero cuando el comerciante forzó el cascadeo.
type SaveResult struct {
	Product          *domain.Product `json:"product"`
	RemovedVariants  int             `json:"removed_variants"`
	RemovedCartLines int64           `json:"removed_cart_lines"`
}

// SaveWithMatrix guarda el producto y reconcilia su matriz de variantes en
// una sola transacción: un guardado bloqueado no persiste ni los campos
// base. Stocks viene del form como clave canónica → inventario; una clave
// fuera de la matriz generada o un stock negativo rechazan el guardado
// completo.
func (uc *ProductUC) SaveWithMatrix(ctx context.Context, p *domain.Product, sel domain.AxisSelection, stocks map[string]int, force bool) (*SaveResult, error) {
	if p == nil || strings.TrimSpace(p.Title) == "" {
		return nil, domain.ErrInvalidInput
	}
	if p.BasePrice < 0 || p.Inventory < 0 {
		return nil, domain.ErrInvalidInput
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Slug == "" {
		p.Slug = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(p.Title), " ", "-"))
	}

	existing, err := uc.Products.ListVariants(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	rec := domain.ReconcileVariants(p.ID, domain.GenerateMatrix(sel), existing)

	ledger := domain.NewMatrix(rec.Variants)
	for k, n := range stocks {
		if err := ledger.SetStock(k, n); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.ErrInvalidInput
			}
			return nil, err
		}
	}
	for i := range rec.Variants {
		if n, err := ledger.Stock(rec.Variants[i].Key); err == nil {
			rec.Variants[i].Stock = n
		}
	}

	removedLines, err := uc.Products.SaveWithVariants(ctx, p, rec, force)
	if err != nil {
		return nil, err
	}
	if removedLines > 0 {
		log.Warn().Str("product", p.Slug).Int64("cart_lines", removedLines).Msg("cascadeo forzado de líneas de carrito")
	}
	return &SaveResult{Product: p, RemovedVariants: len(rec.Removed), RemovedCartLines: removedLines}, nil
}
