package types

import "strings"

// Address is a postal address captured at checkout and snapshotted onto orders.
type Address struct {
	Street     string  `json:"street" validate:"required"`
	Apartment  *string `json:"apartment,omitempty"`
	City       string  `json:"city" validate:"required"`
	State      string  `json:"state" validate:"required"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country" validate:"required"`
}

// Normalize trims whitespace and upper-cases the country code.
func (a Address) Normalize() Address {
	a.Street = strings.TrimSpace(a.Street)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	if a.Apartment != nil {
		apt := strings.TrimSpace(*a.Apartment)
		if apt == "" {
			a.Apartment = nil
		} else {
			a.Apartment = &apt
		}
	}
	return a
}

// Contact identifies the shopper placing an order.
type Contact struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required"`
}
