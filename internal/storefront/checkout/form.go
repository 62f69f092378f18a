// Package checkout validates the shopper's contact and shipping input and
// hands a transient CheckoutIntent to the payment step.
package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/storefront/pkg/checkout"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/types"
)

// Form is what the checkout step collects.
type Form struct {
	Contact         types.Contact       `json:"contact"`
	ShippingAddress types.Address       `json:"shipping_address"`
	BillingAddress  *types.Address      `json:"billing_address,omitempty"`
	ShippingMethod  string              `json:"shipping_method" validate:"max=64"`
	Notes           string              `json:"notes" validate:"max=1000"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method" validate:"required,oneof=card cash_on_delivery bank_transfer"`
}

// Intent is the validated checkout, kept only in navigation memory.
type Intent struct {
	Contact         types.Contact
	ShippingAddress types.Address
	BillingAddress  *types.Address
	ShippingMethod  string
	Notes           string
	PaymentMethod   enums.PaymentMethod
	Items           types.LineItems
	TotalSnapshot   types.Totals
	CreatedAt       time.Time
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// Validate checks the form locally; failures never reach the network.
func Validate(v *validator.Validate, form Form) error {
	form.ShippingAddress = form.ShippingAddress.Normalize()
	form.Contact = trimContact(form.Contact)
	if form.BillingAddress != nil {
		billing := form.BillingAddress.Normalize()
		form.BillingAddress = &billing
	}

	details := map[string]string{}
	if err := v.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "checkout form is invalid")
		}
		for _, fe := range fieldErrs {
			details[fieldPath(fe)] = message(fe)
		}
	}
	if form.ShippingAddress.Country != "" {
		if err := checkout.ValidatePostalCode(form.ShippingAddress.Country, form.ShippingAddress.PostalCode); err != nil {
			details["shipping_address.postal_code"] = "has an invalid format"
		}
	}
	if form.BillingAddress != nil {
		if billing := form.BillingAddress; billing.Country != "" {
			if err := checkout.ValidatePostalCode(billing.Country, billing.PostalCode); err != nil {
				details["billing_address.postal_code"] = "has an invalid format"
			}
		}
	}
	if len(details) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "please correct the highlighted fields").WithDetails(details)
}

// fieldPath drops the root struct name: "Form.contact.email" -> "contact.email".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	}
	return "is invalid"
}

func trimContact(c types.Contact) types.Contact {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	return c
}
