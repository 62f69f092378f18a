package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/carts"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/pkg/checkout"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/types"
)

type cartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1,max=99"`
	Size      *string   `json:"size,omitempty"`
	Color     *string   `json:"color,omitempty"`
	Edition   *string   `json:"edition,omitempty"`
	ImageRef  string    `json:"image_ref,omitempty"`
}

func (r cartItemRequest) variant() catalog.Variant {
	return catalog.Variant{Size: r.Size, Color: r.Color, Edition: r.Edition}
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity" validate:"min=1,max=99"`
}

type cartCheckoutRequest struct {
	PaymentMethod   enums.PaymentMethod `json:"payment_method" validate:"required,oneof=cash_on_delivery bank_transfer"`
	Contact         types.Contact       `json:"contact"`
	ShippingAddress types.Address       `json:"shipping_address"`
	BillingAddress  *types.Address      `json:"billing_address,omitempty"`
	ShippingMethod  string              `json:"shipping_method,omitempty" validate:"max=64"`
	Notes           string              `json:"notes,omitempty" validate:"max=1000"`
	Currency        string              `json:"currency,omitempty" validate:"omitempty,len=3"`
}

func writeCart(w http.ResponseWriter, status int, cart *carts.CartView) {
	if cart != nil {
		w.Header().Set("ETag", validators.ETag(cart.Version))
	}
	responses.WriteSuccessStatus(w, status, cart)
}

// CartFetch returns the caller's cart, creating an empty one on first use.
func CartFetch(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, http.StatusOK, cart)
	}
}

// CartAddItem adds a product line or merges it into an identical variant.
func CartAddItem(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		expected, err := validators.IfMatchVersion(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body cartItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.AddItem(r.Context(), userID, carts.AddItemInput{
			ProductID:       body.ProductID,
			Quantity:        body.Quantity,
			Variant:         body.variant(),
			ImageRef:        strings.TrimSpace(body.ImageRef),
			ExpectedVersion: expected,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, http.StatusOK, cart)
	}
}

func CartUpdateItem(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.PathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		expected, err := validators.IfMatchVersion(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body cartQuantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.UpdateItem(r.Context(), userID, itemID, carts.UpdateItemInput{
			Quantity:        body.Quantity,
			ExpectedVersion: expected,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, http.StatusOK, cart)
	}
}

func CartRemoveItem(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.PathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		expected, err := validators.IfMatchVersion(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.RemoveItem(r.Context(), userID, itemID, expected)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, http.StatusOK, cart)
	}
}

func CartClear(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		expected, err := validators.IfMatchVersion(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.Clear(r.Context(), userID, expected)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, http.StatusOK, cart)
	}
}

// CartCheckout places a non-card order from the cart and empties it.
func CartCheckout(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		expected, err := validators.IfMatchVersion(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body cartCheckoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := checkout.ValidateAddress(body.ShippingAddress); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Checkout(r.Context(), userID, carts.CheckoutInput{
			PaymentMethod:   body.PaymentMethod,
			Contact:         body.Contact,
			ShippingAddress: body.ShippingAddress,
			BillingAddress:  body.BillingAddress,
			ShippingMethod:  validators.CleanText(body.ShippingMethod, 64),
			Notes:           validators.CleanText(body.Notes, 1000),
			Currency:        body.Currency,
			ExpectedVersion: expected,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}
