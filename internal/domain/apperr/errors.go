// Package apperr holds the error taxonomy shared by the ledger and the order workflow.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidOrderStatus = errors.New("invalid order status")
	ErrConflict           = errors.New("conflict")
)

// NotFoundError reports a missing entity by kind and identifier.
type NotFoundError struct {
	Entity string
	ID     string
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type ValidationError struct {
	Field   string
	Message string
}

func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InsufficientStockError carries the stock seen under lock and the quantity that was asked for.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Current     int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Stock insuficiente para %s. Stock actual: %d, cantidad requerida: %d",
		e.ProductName, e.Current, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InvalidStatusError is returned when an order transition is not allowed from its current status.
type InvalidStatusError struct {
	Current string
	Action  string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("No se puede %s una orden en estado %s", e.Action, e.Current)
}

func (e *InvalidStatusError) Is(target error) bool { return target == ErrInvalidOrderStatus }

// ConflictError reports a uniqueness or concurrent-write collision that the caller may retry.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Key)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
