package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/facuvega/vitrina/internal/domain"
)

// handleExportVariants arma un XLSX con la matriz de variantes y stock de
// todo el catálogo. Las filas salen en orden estable por producto y clave
// canónica para que dos exports consecutivos sean comparables.
func (s *Server) handleExportVariants(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method", 405)
		return
	}

	list, _, err := s.products.List(r.Context(), domain.ProductFilter{PageSize: 1000})
	if err != nil {
		writeErr(w, err)
		return
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := "Variantes"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		writeErr(w, err)
		return
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headers := []string{"Producto", "Slug", "Talle", "Color", "Material", "Clave", "Stock"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, p := range list {
		full, err := s.products.GetBySlug(r.Context(), p.Slug)
		if err != nil {
			log.Warn().Err(err).Str("slug", p.Slug).Msg("export: producto salteado")
			continue
		}
		m := domain.NewMatrix(full.Variants)
		byKey := make(map[string]domain.Variant, len(full.Variants))
		for _, v := range full.Variants {
			byKey[v.Key] = v
		}
		for _, k := range m.SortedKeys() {
			v := byKey[k]
			stock, _ := m.Stock(k)
			vals := []any{full.Title, full.Slug, v.Size, v.Color, v.Material, k, stock}
			for i, val := range vals {
				cell, _ := excelize.CoordinatesToCellName(i+1, row)
				_ = f.SetCellValue(sheet, cell, val)
			}
			row++
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=variantes-%s.xlsx", time.Now().Format("2006-01-02")))
	if err := f.Write(w); err != nil {
		log.Error().Err(err).Msg("export xlsx")
	}
}
