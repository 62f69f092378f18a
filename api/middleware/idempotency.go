package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront/api/responses"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront/pkg/redis"
	"github.com/angelmondragon/storefront/pkg/types"
)

// Replay windows. Money-moving routes keep their outcome for a week so a
// client retrying a payment days later still gets the original answer.
const (
	IdempotencyTTL         = 24 * time.Hour
	CriticalIdempotencyTTL = 7 * 24 * time.Hour
)

const replayedHeader = "Idempotent-Replayed"

// maxIdempotentBody bounds the request body hashed for key reuse checks.
const maxIdempotentBody = 1 << 20

type storedOutcome struct {
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
	RequestHash string `json:"request_hash"`
	Pending     bool   `json:"pending,omitempty"`
}

// Idempotency requires an Idempotency-Key on the wrapped routes and answers
// repeats from the stored outcome for ttl. The key is reserved before the
// handler runs, so a concurrent duplicate gets 409. A 5xx outcome drops the
// reservation and the client may retry with the same key.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger, ttl time.Duration) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = IdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(types.HeaderIdempotencyKey))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, types.HeaderIdempotencyKey+" header required"))
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			g := &guard{
				store: store,
				logg:  logg,
				ttl:   ttl,
				key:   store.IdempotencyKey(scopeOf(r), clientKey),
				hash:  fingerprint(r.Method, body),
			}
			if g.answered(ctx, w) {
				return
			}
			reserved, err := g.reserve(ctx)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				if !g.answered(ctx, w) {
					responses.WriteError(ctx, logg, w, inProgress())
				}
				return
			}

			capture := &responseCapture{statusRecorder: statusRecorder{ResponseWriter: w}}
			next.ServeHTTP(capture, r)
			g.settle(context.WithoutCancel(ctx), capture)
		})
	}
}

// guard is one request's view of its idempotency record.
type guard struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
	ttl   time.Duration
	key   string
	hash  string
}

// answered replies from an existing record and reports whether it did.
func (g *guard) answered(ctx context.Context, w http.ResponseWriter) bool {
	stored, err := g.store.Get(ctx, g.key)
	switch {
	case errors.Is(err, redis.Nil), err == nil && stored == "":
		return false
	case err != nil:
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency key"))
		return true
	}

	var outcome storedOutcome
	if err := json.Unmarshal([]byte(stored), &outcome); err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return true
	}
	switch {
	case outcome.RequestHash != g.hash:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request"))
	case outcome.Pending:
		responses.WriteError(ctx, g.logg, w, inProgress())
	default:
		replay(w, outcome)
	}
	return true
}

func (g *guard) reserve(ctx context.Context) (bool, error) {
	placeholder, err := json.Marshal(storedOutcome{RequestHash: g.hash, Pending: true})
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, g.key, string(placeholder), g.ttl)
}

// settle stores the handler's outcome, or drops the reservation when the
// handler failed on the server side.
func (g *guard) settle(ctx context.Context, capture *responseCapture) {
	status := defaultStatus(capture.status)
	if status >= http.StatusInternalServerError {
		if err := g.store.Del(ctx, g.key); err != nil {
			g.logError(ctx, "release idempotency key", err)
		}
		return
	}
	payload, err := json.Marshal(storedOutcome{
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
		RequestHash: g.hash,
	})
	if err != nil {
		g.logError(ctx, "encode idempotency record", err)
		return
	}
	if err := g.store.Set(ctx, g.key, string(payload), g.ttl); err != nil {
		g.logError(ctx, "persist idempotency record", err)
	}
}

func (g *guard) logError(ctx context.Context, msg string, err error) {
	if g.logg != nil {
		g.logg.Error(g.logg.WithField(ctx, "idempotency_key", g.key), msg, err)
	}
}

func replay(w http.ResponseWriter, outcome storedOutcome) {
	if outcome.ContentType != "" {
		w.Header().Set("Content-Type", outcome.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(defaultStatus(outcome.Status))
	_, _ = w.Write(outcome.Body)
}

func inProgress() error {
	return pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is in progress")
}

// scopeOf keys a record by caller and concrete path, so one key cannot
// replay another shopper's or another order's outcome.
func scopeOf(r *http.Request) string {
	return strings.Join([]string{callerKey(r.Context()), r.Method, r.URL.Path}, "|")
}

func fingerprint(method string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

// routePattern is the chi pattern of r, or its raw path before routing.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type responseCapture struct {
	statusRecorder
	body bytes.Buffer
}

func (c *responseCapture) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.statusRecorder.Write(b)
}
