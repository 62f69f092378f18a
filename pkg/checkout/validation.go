// Package checkout holds the address rules shared by the storefront's
// checkout step and the backend endpoints that accept a shipping address.
package checkout

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/types"
)

// MinPaymentStreetLength is the street length the payment step insists on.
// The checkout step only requires the street to be present.
const MinPaymentStreetLength = 8

// postalPatterns lists the countries whose postal codes are format-checked.
var postalPatterns = map[string]*regexp.Regexp{
	"US": regexp.MustCompile(`^\d{5}(-\d{4})?$`),
}

// AddressViolation names one offending field.
type AddressViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidatePostalCode checks code against the country's format. Countries
// without a known format accept any value, including none.
func ValidatePostalCode(country, code string) error {
	pattern, ok := postalPatterns[strings.ToUpper(strings.TrimSpace(country))]
	if !ok {
		return nil
	}
	if !pattern.MatchString(strings.TrimSpace(code)) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("postal code %q is not valid for %s", code, strings.ToUpper(country)))
	}
	return nil
}

// ValidateAddress enforces presence of street, city, state and country plus
// the country's postal format.
func ValidateAddress(addr types.Address) error {
	addr = addr.Normalize()
	var violations []AddressViolation
	require := func(field, value string) {
		if value == "" {
			violations = append(violations, AddressViolation{Field: field, Message: "is required"})
		}
	}
	require("street", addr.Street)
	require("city", addr.City)
	require("state", addr.State)
	require("country", addr.Country)
	if addr.Country != "" {
		if err := ValidatePostalCode(addr.Country, addr.PostalCode); err != nil {
			violations = append(violations, AddressViolation{Field: "postal_code", Message: "has an invalid format"})
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "shipping address is incomplete").WithDetails(map[string]any{
		"violations": violations,
	})
}

// ValidatePaymentStreet applies the stricter street rule of the payment step.
func ValidatePaymentStreet(street string) error {
	if utf8.RuneCountInString(strings.TrimSpace(street)) < MinPaymentStreetLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("street address must be at least %d characters", MinPaymentStreetLength)).WithDetails(map[string]any{
			"violations": []AddressViolation{{Field: "street", Message: fmt.Sprintf("must be at least %d characters", MinPaymentStreetLength)}},
		})
	}
	return nil
}
