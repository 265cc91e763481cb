// Package checkout turns the cart into an order and drives it through either
// the online payment gateway or the manual (pay later) flow.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/FulloMyself/tasselgroupreact/internal/domain"
	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
	"github.com/FulloMyself/tasselgroupreact/internal/metrics"
	"github.com/FulloMyself/tasselgroupreact/pkg/logger"
)

// Method selects the checkout path.
type Method string

const (
	MethodOnline Method = "online"
	MethodManual Method = "manual"
)

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodOnline, MethodManual:
		return m, nil
	}
	return "", apierrors.Validationf("Unknown payment method %q. Use online or manual.", s)
}

// DefaultGatewayURL is used when a descriptor carries form fields but no URL.
const DefaultGatewayURL = "https://sandbox.payfast.co.za/eng/process"

// ErrEmptyCart is wrapped by the validation error returned for an empty cart.
var ErrEmptyCart = errors.New("cart is empty")

// Gateway is the backend side of checkout.
type Gateway interface {
	InitiatePayment(ctx context.Context, draft *domain.OrderDraft) (json.RawMessage, error)
	CreateManualOrder(ctx context.Context, draft *domain.OrderDraft) (*domain.ManualOrderResult, error)
}

// Cart is the cart as seen by checkout.
type Cart interface {
	Snapshot() ([]domain.LineItem, domain.Money)
	Clear()
}

// Identity supplies the signed-in user, or nil.
type Identity interface {
	User() *domain.User
}

// Redirector performs the browser hand-off to the payment gateway.
type Redirector interface {
	Redirect(ctx context.Context, r *domain.PaymentRedirect) error
}

// Config configures an Orchestrator.
type Config struct {
	Gateway    Gateway
	Cart       Cart
	Identity   Identity
	Redirector Redirector

	// Origin is the storefront origin used for return and cancel URLs.
	Origin string
	// NotifyURL receives the gateway's server-to-server notification.
	NotifyURL string
	// GatewayURL replaces DefaultGatewayURL.
	GatewayURL string
	// ManualRequiresIdentity makes manual orders require a signed-in user.
	ManualRequiresIdentity bool

	Logger *logger.Logger
	Now    func() time.Time
}

// Orchestrator runs checkouts. It keeps no state between attempts.
type Orchestrator struct {
	gateway    Gateway
	cart       Cart
	identity   Identity
	redirector Redirector

	origin        string
	notifyURL     string
	gatewayURL    string
	manualNeedsID bool
	log           *logger.Logger
	now           func() time.Time
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Gateway == nil || cfg.Cart == nil {
		return nil, fmt.Errorf("checkout requires a gateway and a cart")
	}
	if cfg.Redirector == nil {
		return nil, fmt.Errorf("checkout requires a redirector")
	}
	origin := strings.TrimRight(cfg.Origin, "/")
	if origin == "" {
		return nil, fmt.Errorf("checkout requires the storefront origin")
	}
	gw := cfg.GatewayURL
	if gw == "" {
		gw = DefaultGatewayURL
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("checkout")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		gateway:       cfg.Gateway,
		cart:          cfg.Cart,
		identity:      cfg.Identity,
		redirector:    cfg.Redirector,
		origin:        origin,
		notifyURL:     cfg.NotifyURL,
		gatewayURL:    gw,
		manualNeedsID: cfg.ManualRequiresIdentity,
		log:           log,
		now:           now,
	}, nil
}

// Options are per-checkout choices.
type Options struct {
	// StaffID credits a staff member with the sale.
	StaffID string
}

// Outcome describes a completed checkout step.
type Outcome struct {
	Method    Method
	Reference string
	// Redirect is set for online checkouts. The cart is not cleared.
	Redirect *domain.PaymentRedirect
	// Manual is set for manual checkouts. The cart has been cleared.
	Manual *domain.ManualOrderResult
}

// Checkout places the cart contents using method. An empty cart fails with a
// validation error before any network call. Failures leave the cart as it
// was.
func (o *Orchestrator) Checkout(ctx context.Context, method Method, opts Options) (out *Outcome, err error) {
	defer func() {
		metrics.RecordCheckout(string(method), err == nil)
	}()

	items, total := o.cart.Snapshot()
	if len(items) == 0 {
		return nil, &apierrors.Error{
			Kind:    apierrors.KindValidation,
			Message: "Your cart is empty.",
			Detail:  ErrEmptyCart.Error(),
			Err:     ErrEmptyCart,
		}
	}
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}

	var user *domain.User
	if o.identity != nil {
		user = o.identity.User()
	}
	if user == nil && (method == MethodOnline || o.manualNeedsID) {
		return nil, &apierrors.Error{
			Kind:    apierrors.KindAuthentication,
			Message: "Please log in to complete your order.",
			Detail:  "checkout requires a signed-in user",
		}
	}

	draft := o.draft(items, total, user, opts)
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	entry := o.log.WithContext(ctx).WithFields(map[string]interface{}{
		"method":    string(method),
		"reference": draft.MerchantReference,
		"total":     draft.TotalAmount.String(),
		"items":     len(draft.Items),
	})
	entry.Info("checkout started")

	switch method {
	case MethodOnline:
		out, err = o.online(ctx, draft)
	default:
		out, err = o.manual(ctx, draft)
	}
	if err != nil {
		entry.WithError(err).Warn("checkout failed")
		return nil, err
	}
	entry.Info("checkout completed")
	return out, nil
}

func (o *Orchestrator) online(ctx context.Context, draft *domain.OrderDraft) (*Outcome, error) {
	raw, err := o.gateway.InitiatePayment(ctx, draft)
	if err != nil {
		return nil, err
	}
	redirect, err := o.recognise(raw)
	if err != nil {
		return nil, err
	}
	if redirect.Reference == "" {
		redirect.Reference = draft.MerchantReference
	}
	if err := o.redirector.Redirect(ctx, redirect); err != nil {
		return nil, &apierrors.Error{
			Kind:    apierrors.KindGeneric,
			Message: "Could not open the payment page. Please try again.",
			Detail:  err.Error(),
			Err:     err,
		}
	}
	return &Outcome{Method: MethodOnline, Reference: redirect.Reference, Redirect: redirect}, nil
}

func (o *Orchestrator) manual(ctx context.Context, draft *domain.OrderDraft) (*Outcome, error) {
	res, err := o.gateway.CreateManualOrder(ctx, draft)
	if err != nil {
		return nil, err
	}
	if res == nil || !res.Success {
		msg := ""
		if res != nil {
			msg = res.Message
		}
		e := apierrors.New(apierrors.KindGeneric, msg)
		if msg != "" {
			e.Message = msg
		}
		return nil, e
	}
	o.cart.Clear()

	ref := res.Reference
	if ref == "" {
		ref = draft.MerchantReference
	}
	return &Outcome{Method: MethodManual, Reference: ref, Manual: res}, nil
}

// draft assembles the order payload with a fresh merchant reference.
func (o *Orchestrator) draft(items []domain.LineItem, total domain.Money, user *domain.User, opts Options) *domain.OrderDraft {
	ref := NewReference(o.now())
	return &domain.OrderDraft{
		Type:              domain.OrderType,
		Items:             items,
		TotalAmount:       total,
		StaffID:           strings.TrimSpace(opts.StaffID),
		Customer:          domain.CustomerFromUser(user),
		MerchantReference: ref,
		ReturnURL:         o.origin + "/payment/success?reference=" + url.QueryEscape(ref),
		CancelURL:         o.origin + "/payment/cancelled",
		NotifyURL:         o.notifyURL,
	}
}

// NewReference returns TASSEL_<unix-ms>_<12 hex chars>.
func NewReference(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("TASSEL_%d_%s", now.UnixMilli(), suffix)
}

// recognise maps a payment initiation response onto a redirect. Anything it
// does not recognise is an error, never a silent success.
func (o *Orchestrator) recognise(raw json.RawMessage) (*domain.PaymentRedirect, error) {
	if !gjson.ValidBytes(raw) {
		return nil, apierrors.UnexpectedResponse("payment response is not valid JSON")
	}
	body := gjson.ParseBytes(raw)
	if !body.IsObject() {
		return nil, apierrors.UnexpectedResponse("payment response is not an object")
	}

	if ok := body.Get("success"); ok.Exists() && !ok.Bool() {
		msg := body.Get("message").String()
		e := apierrors.New(apierrors.KindGeneric, msg)
		if msg != "" {
			e.Message = msg
		}
		return nil, e
	}

	ref := body.Get("paymentReference").String()

	if data := body.Get("payfastData"); data.IsObject() {
		fields := make(map[string]string)
		data.ForEach(func(k, v gjson.Result) bool {
			if s := v.String(); v.Type != gjson.Null && s != "" {
				fields[k.String()] = s
			}
			return true
		})
		if len(fields) == 0 {
			return nil, apierrors.UnexpectedResponse("payment descriptor has no fields")
		}
		target := body.Get("payfastUrl").String()
		if target == "" {
			target = o.gatewayURL
		}
		if err := checkGatewayURL(target); err != nil {
			return nil, err
		}
		if ref == "" {
			ref = fields["m_payment_id"]
		}
		return &domain.PaymentRedirect{GatewayURL: target, FormFields: fields, Reference: ref}, nil
	}

	for _, key := range []string{"payfastUrl", "paymentUrl"} {
		if v := body.Get(key); v.Type == gjson.String && v.Str != "" {
			if err := checkGatewayURL(v.Str); err != nil {
				return nil, err
			}
			return &domain.PaymentRedirect{GatewayURL: v.Str, Reference: ref}, nil
		}
	}

	return nil, apierrors.UnexpectedResponse("payment response has neither a descriptor nor a URL")
}

func checkGatewayURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return apierrors.UnexpectedResponse(fmt.Sprintf("payment URL %q is not usable", raw))
	}
	return nil
}
