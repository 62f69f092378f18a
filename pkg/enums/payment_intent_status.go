package enums

import "slices"

// PaymentIntentStatus mirrors the processor-side state of an intent plus the
// backend confirmation that turns it into an order.
type PaymentIntentStatus string

const (
	PaymentIntentStatusCreated   PaymentIntentStatus = "created"
	PaymentIntentStatusSucceeded PaymentIntentStatus = "succeeded"
	PaymentIntentStatusConfirmed PaymentIntentStatus = "confirmed"
	PaymentIntentStatusFailed    PaymentIntentStatus = "failed"
	PaymentIntentStatusCanceled  PaymentIntentStatus = "canceled"
)

var validPaymentIntentStatuses = []PaymentIntentStatus{
	PaymentIntentStatusCreated,
	PaymentIntentStatusSucceeded,
	PaymentIntentStatusConfirmed,
	PaymentIntentStatusFailed,
	PaymentIntentStatusCanceled,
}

func (p PaymentIntentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentIntentStatus.
func (p PaymentIntentStatus) IsValid() bool {
	return slices.Contains(validPaymentIntentStatuses, p)
}

// ParsePaymentIntentStatus converts raw input into a PaymentIntentStatus.
func ParsePaymentIntentStatus(value string) (PaymentIntentStatus, error) {
	return parseMember("payment intent status", value, validPaymentIntentStatuses)
}
