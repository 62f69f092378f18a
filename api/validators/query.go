package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/pagination"
)

// ParsePage reads ?limit= and ?cursor= from a list request. A malformed
// cursor is rejected here rather than surfacing as a storage error.
func ParsePage(r *http.Request) (pagination.Params, error) {
	query := r.URL.Query()
	params := pagination.Params{Limit: pagination.DefaultLimit}

	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > pagination.MaxLimit {
			return pagination.Params{}, pkgerrors.New(pkgerrors.CodeValidation, "limit is out of range").
				WithDetails(map[string]string{"limit": "must be between 1 and " + strconv.Itoa(pagination.MaxLimit)})
		}
		params.Limit = limit
	}

	params.Cursor = strings.TrimSpace(query.Get("cursor"))
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Params{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cursor is not valid").
			WithDetails(map[string]string{"cursor": "is invalid"})
	}
	return params, nil
}
