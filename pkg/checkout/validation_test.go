package checkout

import (
	"testing"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/types"
)

func TestValidatePostalCodeOnlyEnforcedForUS(t *testing.T) {
	cases := []struct {
		country string
		code    string
		ok      bool
	}{
		{"US", "78701", true},
		{"us", "78701-1234", true},
		{"US", "7870", false},
		{"US", "ABCDE", false},
		{"US", "", false},
		{"GB", "SW1A 1AA", true},
		{"CA", "", true},
	}
	for _, tc := range cases {
		err := ValidatePostalCode(tc.country, tc.code)
		if tc.ok && err != nil {
			t.Fatalf("%s %q: unexpected error %v", tc.country, tc.code, err)
		}
		if !tc.ok && !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s %q: expected validation error, got %v", tc.country, tc.code, err)
		}
	}
}

func TestValidateAddressListsEveryMissingField(t *testing.T) {
	err := ValidateAddress(types.Address{Street: " ", Country: "US", PostalCode: "1"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	violations, ok := details["violations"].([]AddressViolation)
	if !ok {
		t.Fatalf("expected violations, got %T", details["violations"])
	}
	fields := map[string]bool{}
	for _, v := range violations {
		fields[v.Field] = true
	}
	for _, want := range []string{"street", "city", "state", "postal_code"} {
		if !fields[want] {
			t.Fatalf("expected violation for %s, got %+v", want, violations)
		}
	}
}

func TestValidateAddressAcceptsCompleteAddress(t *testing.T) {
	addr := types.Address{Street: "1 Main", City: "Austin", State: "TX", PostalCode: "78701", Country: "us"}
	if err := ValidateAddress(addr); err != nil {
		t.Fatalf("expected valid address, got %v", err)
	}
}

func TestValidatePaymentStreetIsStricterThanCheckout(t *testing.T) {
	short := types.Address{Street: "1 Main", City: "Austin", State: "TX", PostalCode: "78701", Country: "US"}
	if err := ValidateAddress(short); err != nil {
		t.Fatalf("checkout step should accept a short street: %v", err)
	}
	if err := ValidatePaymentStreet(short.Street); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("payment step should reject a street under %d characters, got %v", MinPaymentStreetLength, err)
	}
	if err := ValidatePaymentStreet("12 Analytical Way"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
