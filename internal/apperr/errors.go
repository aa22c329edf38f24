// Package apperr holds the error taxonomy shared by the engine, the stores and
// the HTTP adapter. Domain failures are sentinels compared with errors.Is;
// storage faults are wrapped in *StorageError so callers can retry them.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrUnitNotFound       = errors.New("unit not found for product")
	ErrNoBaseUnit         = errors.New("product has no base unit")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrLotNotFound        = errors.New("lot not found")
	ErrInvalidPayment     = errors.New("invalid payment amount")
	ErrAlreadyPaid        = errors.New("order already paid")
	ErrNoRelocationTarget = errors.New("no relocation target for reservation")
	ErrOrderNotFound      = errors.New("order not found")
	ErrNotAPreorder       = errors.New("order is not a preorder")
	ErrCartNotFound       = errors.New("cart not found")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidAllocation  = errors.New("invalid lot allocation")
	ErrIllegalTransition  = errors.New("illegal status transition")
	ErrLotDepleted        = errors.New("lot has no stock left to write off")
	ErrLotNotActive       = errors.New("lot is not active")
	ErrLotIneligible      = errors.New("lot is too close to expiry for a new reservation")
	ErrConflict           = errors.New("concurrent modification")
	ErrCounterUnderflow   = errors.New("lot counter underflow")
)

// InsufficientStockError names the short lot (empty when the whole product is
// short) and how many base units were missing.
type InsufficientStockError struct {
	ProductID string
	LotID     string
	Shortfall int64
}

func (e *InsufficientStockError) Error() string {
	if e.LotID != "" {
		return fmt.Sprintf("insufficient stock: lot %s short by %d", e.LotID, e.Shortfall)
	}
	return fmt.Sprintf("insufficient stock: product %s short by %d", e.ProductID, e.Shortfall)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// StorageError marks a system fault (database, cache, broker unavailable).
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a storage fault unless it already carries a domain
// meaning (sentinels pass through untouched).
func Storage(op string, err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// Retryable reports whether a caller may safely repeat the operation.
func Retryable(err error) bool {
	return IsStorage(err) || errors.Is(err, ErrConflict)
}

// Kind groups errors for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalid
	KindPrecondition
	KindConflict
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindInvalid:
		return "INVALID_ARGUMENT"
	case KindPrecondition:
		return "FAILED_PRECONDITION"
	case KindConflict:
		return "CONFLICT"
	case KindUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrProductNotFound, KindNotFound},
	{ErrLotNotFound, KindNotFound},
	{ErrOrderNotFound, KindNotFound},
	{ErrCartNotFound, KindNotFound},
	{ErrUnitNotFound, KindInvalid},
	{ErrNoBaseUnit, KindInvalid},
	{ErrInvalidPayment, KindInvalid},
	{ErrInvalidQuantity, KindInvalid},
	{ErrInvalidAllocation, KindInvalid},
	{ErrNotAPreorder, KindInvalid},
	{ErrInsufficientStock, KindPrecondition},
	{ErrAlreadyPaid, KindPrecondition},
	{ErrNoRelocationTarget, KindPrecondition},
	{ErrIllegalTransition, KindPrecondition},
	{ErrLotDepleted, KindPrecondition},
	{ErrLotNotActive, KindPrecondition},
	{ErrLotIneligible, KindPrecondition},
	{ErrConflict, KindConflict},
}

func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	if IsStorage(err) {
		return KindUnavailable
	}
	return KindInternal
}

// IsDomain reports whether err is one of the validation/business sentinels.
func IsDomain(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return true
		}
	}
	return errors.Is(err, ErrCounterUnderflow)
}
