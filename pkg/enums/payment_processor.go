package enums

import "slices"

type PaymentProcessor string

const (
	PaymentProcessorStripe PaymentProcessor = "stripe"
	PaymentProcessorSquare PaymentProcessor = "square"
)

var validPaymentProcessors = []PaymentProcessor{
	PaymentProcessorStripe,
	PaymentProcessorSquare,
}

func (p PaymentProcessor) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentProcessor.
func (p PaymentProcessor) IsValid() bool {
	return slices.Contains(validPaymentProcessors, p)
}

// ParsePaymentProcessor converts raw input into a PaymentProcessor.
func ParsePaymentProcessor(value string) (PaymentProcessor, error) {
	return parseMember("payment processor", value, validPaymentProcessors)
}
