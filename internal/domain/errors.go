package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidVariant   = errors.New("variant does not belong to product")
	ErrInvalidInventory = errors.New("invalid inventory")
	ErrConflict         = errors.New("conflict")
	ErrIdentityRequired = errors.New("identity required")

	// ErrWouldRemove: la cantidad caería debajo de 1. La mutación no se
	// aplica; el caller debe confirmar y llamar RemoveItem.
	ErrWouldRemove = errors.New("quantity would drop below 1")
)

// VariantConflictError se devuelve cuando un guardado intenta eliminar
// variantes que todavía referencian líneas de carrito vivas.
type VariantConflictError struct {
	Keys  []string
	Lines int
}

func (e *VariantConflictError) Error() string {
	return fmt.Sprintf("variants still referenced by %d cart lines: %v", e.Lines, e.Keys)
}

func (e *VariantConflictError) Unwrap() error { return ErrConflict }
