package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/pagination"
)

type sampleBody struct {
	Email    string `json:"email" validate:"required,email"`
	Quantity int    `json:"quantity" validate:"min=1,max=99"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope","quantity":0}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", typed.Details())
	}
	if details["email"] != "must be a valid email" || details["quantity"] != "must be at least 1" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.co","quantity":1,"extra":true}`))
	var body sampleBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeOptionalJSONBodyAcceptsEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	var body struct {
		Reason string `json:"reason"`
	}
	if err := DecodeOptionalJSONBody(req, &body); err != nil {
		t.Fatalf("expected empty body to pass, got %v", err)
	}
}

func TestIfMatchVersion(t *testing.T) {
	cases := map[string]struct {
		header string
		want   *int64
		bad    bool
	}{
		"missing":  {header: ""},
		"wildcard": {header: "*"},
		"plain":    {header: "4", want: ptr(4)},
		"quoted":   {header: `"7"`, want: ptr(7)},
		"weak":     {header: `W/"2"`, want: ptr(2)},
		"garbage":  {header: "abc", bad: true},
		"negative": {header: "-1", bad: true},
	}
	for name, tc := range cases {
		req := httptest.NewRequest(http.MethodPatch, "/", nil)
		if tc.header != "" {
			req.Header.Set("If-Match", tc.header)
		}
		got, err := IfMatchVersion(req)
		if tc.bad {
			if err == nil {
				t.Fatalf("%s: expected error", name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
		if (got == nil) != (tc.want == nil) || (got != nil && *got != *tc.want) {
			t.Fatalf("%s: expected %v got %v", name, tc.want, got)
		}
	}
}

func TestPathUUID(t *testing.T) {
	id := uuid.New()
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", id.String())
	rc.URLParams.Add("itemId", "not-a-uuid")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := PathUUID(req, "orderId")
	if err != nil || got != id {
		t.Fatalf("expected %s got %s (%v)", id, got, err)
	}
	if _, err := PathUUID(req, "itemId"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func ptr(v int64) *int64 { return &v }

func TestParsePage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	params, err := ParsePage(req)
	if err != nil || params.Limit != pagination.DefaultLimit || params.Cursor != "" {
		t.Fatalf("unexpected defaults %+v err=%v", params, err)
	}

	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: time.Now(), ID: uuid.New()})
	req = httptest.NewRequest(http.MethodGet, "/orders?limit=5&cursor="+cursor, nil)
	params, err = ParsePage(req)
	if err != nil || params.Limit != 5 || params.Cursor != cursor {
		t.Fatalf("unexpected params %+v err=%v", params, err)
	}

	for _, query := range []string{"limit=0", "limit=abc", "limit=1000", "cursor=%25%25"} {
		req = httptest.NewRequest(http.MethodGet, "/orders?"+query, nil)
		if _, err := ParsePage(req); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", query, err)
		}
	}
}

func TestCleanText(t *testing.T) {
	if got := CleanText("  hello\tworld \n", 0); got != "helloworld" {
		t.Fatalf("unexpected cleaned text %q", got)
	}
	if got := CleanText("line one\nline two", 0); got != "line one\nline two" {
		t.Fatalf("newline should survive, got %q", got)
	}
	if got := CleanText("héllo wörld", 4); got != "héll" {
		t.Fatalf("expected rune-safe cut, got %q", got)
	}
}
