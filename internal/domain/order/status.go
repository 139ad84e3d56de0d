package order

import (
	"fmt"

	"github.com/xenking/shop-orders/internal/domain/apperr"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending        Status = "pending"
	StatusAccepted       Status = "accepted"
	StatusProcessing     Status = "processing"
	StatusPacked         Status = "packed"
	StatusShipped        Status = "shipped"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusRejected       Status = "rejected"
	StatusReturned       Status = "returned"
	StatusRefunded       Status = "refunded"
)

// Error codes of the status state machine.
const (
	CodeInvalidStatus     = "invalid_status"
	CodeNoStatusChange    = "no_status_change"
	CodeInvalidTransition = "invalid_transition"
)

// Statuses lists every status in lifecycle order, side branches last.
var Statuses = []Status{
	StatusPending,
	StatusAccepted,
	StatusProcessing,
	StatusPacked,
	StatusShipped,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
	StatusRejected,
	StatusReturned,
	StatusRefunded,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// transitions maps a status to the statuses it may move to. The current
// policy lets any status move to any other; tighten by editing this table.
var transitions = func() map[Status]map[Status]struct{} {
	m := make(map[Status]map[Status]struct{}, len(Statuses))
	for _, from := range Statuses {
		next := make(map[Status]struct{}, len(Statuses)-1)
		for _, to := range Statuses {
			if to != from {
				next[to] = struct{}{}
			}
		}
		m[from] = next
	}
	return m
}()

// CheckTransition validates moving an order from one status to another.
func CheckTransition(from, to Status) error {
	if !to.Valid() {
		return apperr.Validation(CodeInvalidStatus, fmt.Sprintf("unknown order status %q", to), string(to))
	}
	if from == to {
		return apperr.Validation(CodeNoStatusChange, fmt.Sprintf("order is already %s", to))
	}
	if _, ok := transitions[from][to]; !ok {
		return apperr.Validation(CodeInvalidTransition, fmt.Sprintf("cannot move order from %s to %s", from, to))
	}
	return nil
}
