// Package session assembles the storefront engine for one shopper: the
// cart store, the guest-to-account reconciler, checkout, payment and the
// order views, all sharing one backend client and one local store.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/internal/storefront/cart"
	"github.com/angelmondragon/storefront/internal/storefront/cartsync"
	"github.com/angelmondragon/storefront/internal/storefront/checkout"
	"github.com/angelmondragon/storefront/internal/storefront/localstore"
	"github.com/angelmondragon/storefront/internal/storefront/orderflow"
	"github.com/angelmondragon/storefront/internal/storefront/payment"
	"github.com/angelmondragon/storefront/pkg/apiclient"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/stripe"
)

type Params struct {
	Config *config.ClientConfig
	Logger *logger.Logger
	Local  *localstore.Store
	API    *apiclient.Client
	// Confirmer overrides the processor confirmer derived from Config.
	Confirmer payment.ProcessorConfirmer
}

type Session struct {
	ID string

	logg       *logger.Logger
	api        *apiclient.Client
	guest      *cart.GuestStorage
	reconciler *cartsync.Reconciler

	Cart        *cart.Store
	Checkout    *checkout.Orchestrator
	Payment     *payment.Orchestrator
	Compensator *payment.Compensator
	Orders      *orderflow.Flow
}

// Open builds a session and loads the cart from whichever backend matches
// the client's current credentials.
func Open(ctx context.Context, params Params) (*Session, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Local == nil {
		return nil, fmt.Errorf("local store required")
	}
	if params.API == nil {
		return nil, fmt.Errorf("api client required")
	}
	cfg := params.Config
	logg := params.Logger

	confirmer := params.Confirmer
	if confirmer == nil {
		built, err := NewConfirmer(cfg, params.API)
		if err != nil {
			return nil, err
		}
		confirmer = built
	}

	guest := cart.NewGuestStorage(params.Local)
	var backend cart.Backend = cart.NewGuestBackend(guest)
	if params.API.Authenticated() {
		backend = cart.NewRemoteBackend(params.API)
	}
	store, err := cart.NewStore(cart.StoreParams{Backend: backend, Logger: logg, Timeout: cfg.RequestTimeout})
	if err != nil {
		return nil, err
	}

	s := &Session{ID: uuid.NewString(), logg: logg, api: params.API, guest: guest, Cart: store}
	params.API.SetSessionID(s.ID)
	fail := func(err error) (*Session, error) {
		store.Close()
		return nil, err
	}

	if s.reconciler, err = cartsync.New(cartsync.Params{Guest: guest, Server: params.API, Cart: store, Logger: logg}); err != nil {
		return fail(err)
	}
	if s.Checkout, err = checkout.New(checkout.Params{Cart: store, Logger: logg}); err != nil {
		return fail(err)
	}
	if s.Payment, err = payment.New(payment.Params{
		API:       params.API,
		Confirmer: confirmer,
		Cart:      store,
		Jobs:      params.Local,
		Logger:    logg,
		Currency:  cfg.Currency,
	}); err != nil {
		return fail(err)
	}
	if s.Compensator, err = payment.NewCompensator(payment.CompensatorParams{
		Jobs:      params.Local,
		API:       params.API,
		Cart:      store,
		Logger:    logg,
		BaseDelay: cfg.CompensationBaseDelay,
		MaxDelay:  cfg.CompensationMaxDelay,
		MaxTries:  cfg.CompensationMaxTries,
	}); err != nil {
		return fail(err)
	}
	if s.Orders, err = orderflow.New(params.API, logg); err != nil {
		return fail(err)
	}

	if err := store.Load(s.logCtx(ctx)); err != nil {
		s.logg.Warn(s.logCtx(ctx), "initial cart load failed: "+err.Error())
	}
	return s, nil
}

// NewConfirmer picks the processor confirmer for cfg.Processor. Stripe
// confirms shopper-side with a publishable key; Square confirms through the
// backend.
func NewConfirmer(cfg *config.ClientConfig, api *apiclient.Client) (payment.ProcessorConfirmer, error) {
	switch enums.PaymentProcessor(strings.ToLower(strings.TrimSpace(cfg.Processor))) {
	case enums.PaymentProcessorStripe:
		confirmer, err := stripe.NewConfirmer(cfg.StripeEnv, cfg.StripeKey)
		if err != nil {
			return nil, fmt.Errorf("stripe confirmer: %w", err)
		}
		return payment.NewClientConfirmer(confirmer), nil
	case enums.PaymentProcessorSquare:
		return payment.NewBackendConfirmer(api), nil
	}
	return nil, fmt.Errorf("unsupported payments processor %q", cfg.Processor)
}

func (s *Session) Close() {
	s.Cart.Close()
}

func (s *Session) Authenticated() bool { return s.api.Authenticated() }

// Login switches the cart to the account and migrates the guest cart into
// it once.
func (s *Session) Login(ctx context.Context, token string) (cartsync.Report, error) {
	ctx = s.logCtx(ctx)
	if strings.TrimSpace(token) == "" {
		return cartsync.Report{}, pkgerrors.New(pkgerrors.CodeValidation, "access token required")
	}
	s.api.SetToken(token)
	if err := s.Cart.SwitchMode(ctx, cart.NewRemoteBackend(s.api)); err != nil {
		s.logg.Warn(ctx, "loading account cart failed: "+err.Error())
	}
	report, err := s.reconciler.Run(ctx)
	if err != nil {
		return report, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"synced": report.Synced,
		"failed": report.Failed,
	}), "shopper logged in")
	return report, nil
}

// Logout drops the credentials and returns to the (now empty) guest cart.
func (s *Session) Logout(ctx context.Context) error {
	ctx = s.logCtx(ctx)
	s.api.SetToken("")
	s.reconciler.Rearm()
	s.Orders.Forget()
	s.Checkout.Navigator().Discard()
	s.Payment.Reset()
	if err := s.Cart.SwitchMode(ctx, cart.NewGuestBackend(s.guest)); err != nil {
		return err
	}
	s.logg.Info(ctx, "shopper logged out")
	return nil
}

// Pay settles the pending checkout. Card payments need sourceID, the
// tokenized payment method. Without a pending checkout the shopper is sent
// back to it. A finished or failed attempt is replaced by a fresh one.
func (s *Session) Pay(ctx context.Context, sourceID string) (*payment.Result, checkout.Route, error) {
	ctx = s.logCtx(ctx)
	intent, route := s.Checkout.EnterPayment()
	if route != checkout.RoutePayment {
		return nil, route, nil
	}

	if s.Payment.Busy() {
		return nil, route, pkgerrors.New(pkgerrors.CodeConflict, "a payment step is already in progress")
	}
	switch s.Payment.State() {
	case payment.StateIdle, payment.StateIntentCreated:
	default:
		s.Payment.Reset()
	}

	var (
		result *payment.Result
		err    error
	)
	if intent.PaymentMethod.Prepaid() {
		if _, err = s.Payment.CreateIntent(ctx, intent); err != nil {
			return nil, route, err
		}
		result, err = s.Payment.Confirm(ctx, sourceID)
	} else {
		result, err = s.Payment.PlaceOrder(ctx, intent)
	}
	if err != nil {
		return nil, route, err
	}
	if result.State == payment.StateBackendConfirmed || result.Pending {
		s.Checkout.Navigator().Discard()
	}
	return result, route, nil
}

func (s *Session) logCtx(ctx context.Context) context.Context {
	return s.logg.WithSessionID(ctx, s.ID)
}
