package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront/internal/storefront/cart"
	"github.com/angelmondragon/storefront/internal/storefront/checkout"
	"github.com/angelmondragon/storefront/internal/storefront/localstore"
	"github.com/angelmondragon/storefront/internal/storefront/session"
	"github.com/angelmondragon/storefront/pkg/apiclient"
	"github.com/angelmondragon/storefront/pkg/auth"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type options struct {
	token     string
	productID string
	itemID    string
	qty       int
	size      string
	color     string
	edition   string
	orderID   string
	reason    string
	info      string
	limit     int
	cursor    string
	method    string
	source    string
	userID    string
	role      string
	email     string
	form      checkout.Form
	apartment string
}

func main() {
	_ = godotenv.Load()

	var opts options
	cmd := flag.String("cmd", "cart", "command: token|cart|add|set|inc|dec|remove|clear|checkout|orders|order|cancel|request-cancel|compensate")
	flag.StringVar(&opts.token, "token", "", "access token; defaults to STOREFRONT_CLIENT_ACCESS_TOKEN")
	flag.StringVar(&opts.productID, "product", "", "product id (add)")
	flag.StringVar(&opts.itemID, "item", "", "cart item id (set|inc|dec|remove)")
	flag.IntVar(&opts.qty, "qty", 1, "quantity (add|set)")
	flag.StringVar(&opts.size, "size", "", "variant size (add)")
	flag.StringVar(&opts.color, "color", "", "variant color (add)")
	flag.StringVar(&opts.edition, "edition", "", "variant edition (add)")
	flag.StringVar(&opts.orderID, "order", "", "order id (order|cancel|request-cancel)")
	flag.StringVar(&opts.reason, "reason", "", "cancellation reason")
	flag.StringVar(&opts.info, "info", "", "additional cancellation details")
	flag.IntVar(&opts.limit, "limit", 20, "page size (orders)")
	flag.StringVar(&opts.cursor, "cursor", "", "page cursor (orders)")
	flag.StringVar(&opts.method, "method", string(enums.PaymentMethodCard), "payment method: card|cash_on_delivery|bank_transfer")
	flag.StringVar(&opts.source, "source", "", "tokenized card source (card checkout)")
	flag.StringVar(&opts.userID, "user", "", "user id to mint a token for (token)")
	flag.StringVar(&opts.role, "role", string(enums.UserRoleCustomer), "role to mint a token for (token)")
	flag.StringVar(&opts.email, "email", "", "email claim (token)")
	flag.StringVar(&opts.form.Contact.FirstName, "first-name", "", "contact first name")
	flag.StringVar(&opts.form.Contact.LastName, "last-name", "", "contact last name")
	flag.StringVar(&opts.form.Contact.Email, "contact-email", "", "contact email")
	flag.StringVar(&opts.form.Contact.Phone, "phone", "", "contact phone")
	flag.StringVar(&opts.form.ShippingAddress.Street, "street", "", "shipping street")
	flag.StringVar(&opts.apartment, "apartment", "", "shipping apartment")
	flag.StringVar(&opts.form.ShippingAddress.City, "city", "", "shipping city")
	flag.StringVar(&opts.form.ShippingAddress.State, "state", "", "shipping state")
	flag.StringVar(&opts.form.ShippingAddress.PostalCode, "postal-code", "", "shipping postal code")
	flag.StringVar(&opts.form.ShippingAddress.Country, "country", "US", "shipping country")
	flag.StringVar(&opts.form.ShippingMethod, "shipping-method", "", "shipping method")
	flag.StringVar(&opts.form.Notes, "notes", "", "order notes")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *cmd == "token" {
		if err := mintToken(opts); err != nil {
			fmt.Fprintf(os.Stderr, "mint token: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logg := logger.New(logger.Options{ServiceName: "storefront"})
	cfg, err := config.LoadClient()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
		Output:      os.Stderr,
	})
	ctx = logg.WithField(ctx, "cmd", *cmd)

	local, err := localstore.Open(cfg.LocalStorePath)
	requireResource(ctx, logg, "local store", err)
	defer local.Close()

	api, err := apiclient.NewClient(cfg.APIBaseURL, apiclient.WithTimeout(cfg.RequestTimeout))
	requireResource(ctx, logg, "api client", err)

	sess, err := session.Open(ctx, session.Params{Config: cfg, Logger: logg, Local: local, API: api})
	requireResource(ctx, logg, "session", err)
	defer sess.Close()

	if token := firstNonEmpty(opts.token, cfg.AccessToken); token != "" {
		report, err := sess.Login(ctx, token)
		if err != nil {
			exitWith(err)
		}
		if report.Failed > 0 {
			fmt.Fprintf(os.Stderr, "%d guest cart line(s) could not be moved to your account\n", report.Failed)
		}
	}

	out, err := run(ctx, sess, api, *cmd, opts)
	if err != nil {
		exitWith(err)
	}
	printJSON(out)
}

func run(ctx context.Context, sess *session.Session, api *apiclient.Client, cmd string, opts options) (any, error) {
	switch cmd {
	case "cart":
		return sess.Cart.Snapshot(), nil
	case "add":
		productID, err := parseID("product", opts.productID)
		if err != nil {
			return nil, err
		}
		product, err := api.GetProduct(ctx, productID)
		if err != nil {
			return nil, err
		}
		variant := cart.Variant{Size: optional(opts.size), Color: optional(opts.color), Edition: optional(opts.edition)}
		item := cart.Product{ID: product.ID, Name: product.Name, UnitPrice: product.UnitPrice, ImageRef: product.ImageRef}
		if err := sess.Cart.AddItem(ctx, item, variant, opts.qty); err != nil {
			return nil, err
		}
		return sess.Cart.Snapshot(), nil
	case "set", "inc", "dec", "remove":
		itemID, err := parseID("item", opts.itemID)
		if err != nil {
			return nil, err
		}
		switch cmd {
		case "set":
			err = sess.Cart.SetQuantity(ctx, itemID, opts.qty)
		case "inc":
			err = sess.Cart.Increment(ctx, itemID)
		case "dec":
			err = sess.Cart.Decrement(ctx, itemID)
		default:
			err = sess.Cart.RemoveItem(ctx, itemID)
		}
		if err != nil {
			return nil, err
		}
		return sess.Cart.Snapshot(), nil
	case "clear":
		if err := sess.Cart.Clear(ctx); err != nil {
			return nil, err
		}
		return sess.Cart.Snapshot(), nil
	case "checkout":
		return runCheckout(ctx, sess, opts)
	case "orders":
		return sess.Orders.List(ctx, opts.limit, opts.cursor)
	case "order", "cancel", "request-cancel":
		orderID, err := parseID("order", opts.orderID)
		if err != nil {
			return nil, err
		}
		switch cmd {
		case "cancel":
			return sess.Orders.Cancel(ctx, orderID, opts.reason)
		case "request-cancel":
			return sess.Orders.RequestCancellation(ctx, orderID, opts.reason, optional(opts.info))
		}
		return sess.Orders.Get(ctx, orderID)
	case "compensate":
		return sess.Compensator.RunOnce(ctx)
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown command %q", cmd))
}

func runCheckout(ctx context.Context, sess *session.Session, opts options) (any, error) {
	if !sess.Authenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "log in to check out")
	}
	form := opts.form
	form.PaymentMethod = enums.PaymentMethod(opts.method)
	form.ShippingAddress.Apartment = optional(opts.apartment)
	if _, err := sess.Checkout.Proceed(ctx, form); err != nil {
		return nil, err
	}
	result, route, err := sess.Pay(ctx, opts.source)
	if err != nil {
		return nil, err
	}
	if route == checkout.RouteCheckout {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "checkout details are missing")
	}
	notice, _ := sess.Payment.Notice()
	return map[string]any{"result": result, "notice": notice}, nil
}

func mintToken(opts options) error {
	jwtCfg, err := config.LoadJWT()
	if err != nil {
		return err
	}
	role, err := enums.ParseUserRole(opts.role)
	if err != nil {
		return err
	}
	userID := uuid.New()
	if opts.userID != "" {
		if userID, err = uuid.Parse(opts.userID); err != nil {
			return fmt.Errorf("invalid -user: %w", err)
		}
	}
	token, err := auth.MintAccessToken(*jwtCfg, time.Now(), auth.AccessTokenPayload{UserID: userID, Email: opts.email, Role: role})
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func parseID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("-%s must be a valid id", name))
	}
	return id, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		os.Exit(1)
	}
}

// exitWith prints err the way a shopper should see it, grouped by kind.
func exitWith(err error) {
	kind := pkgerrors.KindOf(err)
	msg := err.Error()
	if coded := pkgerrors.As(err); coded != nil {
		msg = coded.Message()
		if details := coded.Details(); details != nil {
			if raw, marshalErr := json.Marshal(details); marshalErr == nil {
				msg += " " + string(raw)
			}
		}
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", kind, msg)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
