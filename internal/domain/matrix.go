package domain

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Los tres ejes de variación de un producto, en orden canónico fijo.
// El orden de los ejes nunca depende del orden de carga del comerciante.

type AxisOption struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

type AxisValues struct {
	Sizes     []AxisOption `json:"sizes"`
	Colors    []AxisOption `json:"colors"`
	Materials []AxisOption `json:"materials"`
}

// ExtractAxes deriva los valores distintos presentes en las variantes
// existentes, ordenados por primera aparición. Sólo precarga el form del
// comerciante; la selección editada es la fuente de verdad después.
func ExtractAxes(variants []Variant) AxisValues {
	var out AxisValues
	seenS := map[string]struct{}{}
	seenC := map[string]struct{}{}
	seenM := map[string]struct{}{}
	for _, v := range variants {
		if s := strings.TrimSpace(v.Size); s != "" {
			if _, ok := seenS[s]; !ok {
				seenS[s] = struct{}{}
				out.Sizes = append(out.Sizes, AxisOption{ID: s, Value: s})
			}
		}
		if c := strings.TrimSpace(v.Color); c != "" {
			if _, ok := seenC[c]; !ok {
				seenC[c] = struct{}{}
				out.Colors = append(out.Colors, AxisOption{ID: c, Value: c})
			}
		}
		if m := strings.TrimSpace(v.Material); m != "" {
			if _, ok := seenM[m]; !ok {
				seenM[m] = struct{}{}
				out.Materials = append(out.Materials, AxisOption{ID: m, Value: m})
			}
		}
	}
	return out
}

type AxisSelection struct {
	Sizes     []string `json:"sizes"`
	Colors    []string `json:"colors"`
	Materials []string `json:"materials"`
}

type VariantTuple struct {
	Size     string
	Color    string
	Material string
}

func (t VariantTuple) Key() string { return VariantKey(t.Size, t.Color, t.Material) }

// VariantKey arma la clave canónica de la tupla en orden fijo
// talle|color|material, con ranura vacía para eje ausente.
func VariantKey(size, color, material string) string {
	return strings.TrimSpace(size) + "|" + strings.TrimSpace(color) + "|" + strings.TrimSpace(material)
}

func dedupe(vals []string) []string {
	out := make([]string, 0, len(vals))
	seen := map[string]struct{}{}
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// GenerateMatrix computa el producto cartesiano sobre los ejes no vacíos.
// Un eje vacío no varía: aporta multiplicidad 1 con valor vacío. Los tres
// ejes vacíos devuelven matriz vacía y manda el producto base.
func GenerateMatrix(sel AxisSelection) []VariantTuple {
	sizes := dedupe(sel.Sizes)
	colors := dedupe(sel.Colors)
	materials := dedupe(sel.Materials)
	if len(sizes) == 0 && len(colors) == 0 && len(materials) == 0 {
		return nil
	}
	if len(sizes) == 0 {
		sizes = []string{""}
	}
	if len(colors) == 0 {
		colors = []string{""}
	}
	if len(materials) == 0 {
		materials = []string{""}
	}
	out := make([]VariantTuple, 0, len(sizes)*len(colors)*len(materials))
	for _, s := range sizes {
		for _, c := range colors {
			for _, m := range materials {
				out = append(out, VariantTuple{Size: s, Color: c, Material: m})
			}
		}
	}
	return out
}

// Reconciliation es el resultado de cruzar la matriz generada contra las
// variantes persistidas del producto.
type Reconciliation struct {
	// Variants es el set final en orden de generación: las tuplas ya
	// persistidas conservan identidad y stock intactos, las nuevas nacen
	// con stock 0.
	Variants []Variant
	// Removed son las persistidas cuya tupla ya no se genera. La
	// eliminación es diferida al guardado y nunca silenciosa si hay
	// líneas de carrito que las referencian.
	Removed []Variant
}

// ReconcileVariants es regeneración-estable: con selección sin cambios las
// identidades y stocks se preservan bit a bit.
func ReconcileVariants(productID uuid.UUID, tuples []VariantTuple, existing []Variant) Reconciliation {
	byKey := make(map[string]Variant, len(existing))
	for _, v := range existing {
		byKey[VariantKey(v.Size, v.Color, v.Material)] = v
	}
	seen := map[string]struct{}{}
	rec := Reconciliation{}
	for _, t := range tuples {
		k := t.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if old, ok := byKey[k]; ok {
			old.Key = k
			rec.Variants = append(rec.Variants, old)
			continue
		}
		rec.Variants = append(rec.Variants, Variant{
			ID:        uuid.New(),
			ProductID: productID,
			Size:      t.Size,
			Color:     t.Color,
			Material:  t.Material,
			Key:       k,
			Stock:     0,
		})
	}
	for _, v := range existing {
		if _, ok := seen[VariantKey(v.Size, v.Color, v.Material)]; !ok {
			rec.Removed = append(rec.Removed, v)
		}
	}
	return rec
}

// Matrix es el libro de stock por clave canónica de tupla. Está indexado
// por tupla y no por identidad subrogada para que las ediciones
// sobrevivan a la regeneración mientras la tupla no cambie.
type Matrix struct {
	order []string
	stock map[string]int
}

func NewMatrix(variants []Variant) *Matrix {
	m := &Matrix{stock: make(map[string]int, len(variants))}
	for _, v := range variants {
		k := v.Key
		if k == "" {
			k = VariantKey(v.Size, v.Color, v.Material)
		}
		if _, ok := m.stock[k]; ok {
			continue
		}
		m.order = append(m.order, k)
		m.stock[k] = v.Stock
	}
	return m
}

func (m *Matrix) Keys() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *Matrix) SetStock(key string, n int) error {
	if n < 0 {
		return ErrInvalidInventory
	}
	if _, ok := m.stock[key]; !ok {
		return ErrNotFound
	}
	m.stock[key] = n
	return nil
}

func (m *Matrix) Stock(key string) (int, error) {
	n, ok := m.stock[key]
	if !ok {
		return 0, ErrNotFound
	}
	return n, nil
}

// Stocks devuelve una copia del libro, con claves en orden estable (útil
// para export y respuestas deterministas).
func (m *Matrix) Stocks() map[string]int {
	out := make(map[string]int, len(m.stock))
	for k, v := range m.stock {
		out[k] = v
	}
	return out
}

// SortedKeys ordena lexicográficamente; el export XLSX lo usa para que dos
// exports del mismo producto salgan idénticos.
func (m *Matrix) SortedKeys() []string {
	out := m.Keys()
	sort.Strings(out)
	return out
}
