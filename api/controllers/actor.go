package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

func errNoCaller() error {
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to continue")
}

func currentUserID(r *http.Request) (uuid.UUID, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return uuid.Nil, errNoCaller()
	}
	return actor.UserID, nil
}

// currentActor is the caller as the order lifecycle sees it; the role
// decides which transitions are open.
func currentActor(r *http.Request) (orders.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return orders.Actor{}, errNoCaller()
	}
	return orders.Actor{UserID: actor.UserID, Role: actor.Role}, nil
}
