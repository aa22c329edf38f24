package orders

import (
	"fmt"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Transition moves o to the next status or reports why it may not.
func (o *Order) Transition(to Status) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("order %s %s -> %s: %w", o.ID, o.Status, to, apperr.ErrIllegalTransition)
	}
	o.Status = to
	return nil
}

// Editable reports whether lines may still be replaced.
func (o *Order) Editable() error {
	if o.Type != TypePreorder {
		return apperr.ErrNotAPreorder
	}
	if o.Status != StatusPending {
		return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, apperr.ErrIllegalTransition)
	}
	return nil
}

// Payable checks the preconditions for completing a preorder payment.
func (o *Order) Payable() error {
	if o.Type != TypePreorder {
		return apperr.ErrNotAPreorder
	}
	if o.PaymentStatus == PaymentPaid {
		return apperr.ErrAlreadyPaid
	}
	if !CanTransition(o.Status, StatusCompleted) {
		return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, apperr.ErrIllegalTransition)
	}
	return nil
}
