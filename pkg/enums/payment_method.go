package enums

import "fmt"

// PaymentMethod is how a shopper settles an order. Card is captured through
// a payment intent before the order exists; the others settle later.
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
)

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool {
	switch p {
	case PaymentMethodCard, PaymentMethodCashOnDelivery, PaymentMethodBankTransfer:
		return true
	}
	return false
}

// Prepaid reports whether money is captured before the order is placed.
func (p PaymentMethod) Prepaid() bool {
	return p == PaymentMethodCard
}

// InitialSettlement is the payment status a fresh order starts in.
func (p PaymentMethod) InitialSettlement() PaymentStatus {
	if p.Prepaid() {
		return PaymentStatusPaid
	}
	return PaymentStatusUnpaid
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	if m := PaymentMethod(value); m.IsValid() {
		return m, nil
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
