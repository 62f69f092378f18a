// Package orderpolicy is the single source of truth for what a shopper or an
// admin may do with an order in a given status. Both the backend order
// service and the storefront engine consult it.
package orderpolicy

import (
	"fmt"

	"github.com/angelmondragon/storefront/pkg/enums"
)

var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled, enums.OrderStatusRefunded},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered:  {enums.OrderStatusCompleted},
}

// CanCancel reports whether the shopper may cancel immediately.
func CanCancel(status enums.OrderStatus) bool {
	return status == enums.OrderStatusPending
}

// CanRequestCancellation reports whether the shopper may ask an admin to
// cancel or refund. An order carries at most one request, so hasRequest
// blocks any second submission, pending or already decided.
func CanRequestCancellation(status enums.OrderStatus, hasRequest bool) bool {
	return status == enums.OrderStatusProcessing && !hasRequest
}

// CanReturn reports whether a return flow may be offered.
func CanReturn(status enums.OrderStatus) bool {
	return status == enums.OrderStatusDelivered
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status enums.OrderStatus) bool {
	return len(transitions[status]) == 0
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the legal targets from status.
func NextStatuses(status enums.OrderStatus) []enums.OrderStatus {
	next := transitions[status]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

// ApprovalOutcome is the status an approved cancellation lands on: prepaid
// orders whose payment is still held are refunded through the processor,
// everything else is cancelled.
func ApprovalOutcome(method enums.PaymentMethod, settlement enums.PaymentStatus) enums.OrderStatus {
	if method.Prepaid() && settlement.Collected() {
		return enums.OrderStatusRefunded
	}
	return enums.OrderStatusCancelled
}

// Capabilities is the flattened view a client renders actions from.
type Capabilities struct {
	Cancel              bool `json:"can_cancel"`
	RequestCancellation bool `json:"can_request_cancellation"`
	Return              bool `json:"can_return"`
}

// For computes every capability at once.
func For(status enums.OrderStatus, hasRequest bool) Capabilities {
	return Capabilities{
		Cancel:              CanCancel(status),
		RequestCancellation: CanRequestCancellation(status, hasRequest),
		Return:              CanReturn(status),
	}
}

// ValidateTransition returns a descriptive error for illegal moves.
func ValidateTransition(from, to enums.OrderStatus) error {
	if !from.IsValid() || !to.IsValid() {
		return fmt.Errorf("unknown order status %q -> %q", from, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("order cannot move from %s to %s", from, to)
	}
	return nil
}
