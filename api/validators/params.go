package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/types"
)

// PathUUID parses a chi URL parameter as a UUID.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name).WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

// IfMatchVersion reads the cart version a client last observed. A missing
// header yields nil; quotes and a weak prefix are tolerated so ETag values
// can be echoed back verbatim.
func IfMatchVersion(r *http.Request) (*int64, error) {
	raw := strings.TrimSpace(r.Header.Get(types.HeaderIfMatch))
	if raw == "" || raw == "*" {
		return nil, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "If-Match must be a cart version").WithDetails(map[string]any{"header": "If-Match"})
	}
	return &version, nil
}

// ETag formats a cart version for the ETag response header.
func ETag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}
