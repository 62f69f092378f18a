package enums

import "slices"

// CartMode selects where the cart is persisted.
type CartMode string

const (
	CartModeGuest         CartMode = "guest"
	CartModeAuthenticated CartMode = "authenticated"
)

var validCartModes = []CartMode{
	CartModeGuest,
	CartModeAuthenticated,
}

func (c CartMode) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CartMode.
func (c CartMode) IsValid() bool {
	return slices.Contains(validCartModes, c)
}

// ParseCartMode converts raw input into a CartMode.
func ParseCartMode(value string) (CartMode, error) {
	return parseMember("cart mode", value, validCartModes)
}
