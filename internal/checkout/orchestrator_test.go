package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FulloMyself/tasselgroupreact/internal/cart"
	"github.com/FulloMyself/tasselgroupreact/internal/domain"
	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
	"github.com/FulloMyself/tasselgroupreact/pkg/logger"
	"github.com/FulloMyself/tasselgroupreact/pkg/testutil"
)

type fakeGateway struct {
	initiate func(*domain.OrderDraft) (json.RawMessage, error)
	manual   func(*domain.OrderDraft) (*domain.ManualOrderResult, error)
	drafts   []*domain.OrderDraft
}

func (g *fakeGateway) InitiatePayment(_ context.Context, d *domain.OrderDraft) (json.RawMessage, error) {
	g.drafts = append(g.drafts, d)
	return g.initiate(d)
}

func (g *fakeGateway) CreateManualOrder(_ context.Context, d *domain.OrderDraft) (*domain.ManualOrderResult, error) {
	g.drafts = append(g.drafts, d)
	return g.manual(d)
}

type recordingRedirector struct {
	got []*domain.PaymentRedirect
	err error
}

func (r *recordingRedirector) Redirect(_ context.Context, p *domain.PaymentRedirect) error {
	r.got = append(r.got, p)
	return r.err
}

var customer = &domain.User{ID: "u1", Name: "Thandi Mokoena", Email: "thandi@example.com", Role: domain.RoleCustomer}

type fixture struct {
	orch     *Orchestrator
	cart     *cart.Cart
	gateway  *fakeGateway
	redirect *recordingRedirector
}

func newFixture(t *testing.T, user *domain.User, manualNeedsID bool) *fixture {
	t.Helper()
	f := &fixture{
		cart:     cart.New(nil),
		gateway:  &fakeGateway{},
		redirect: &recordingRedirector{},
	}
	orch, err := New(Config{
		Gateway:                f.gateway,
		Cart:                   f.cart,
		Identity:               testutil.StaticIdentity{U: user},
		Redirector:             f.redirect,
		Origin:                 "http://localhost:3000/",
		NotifyURL:              "http://localhost:5000/api/payment/notify",
		ManualRequiresIdentity: manualNeedsID,
		Logger:                 logger.NewDiscard("checkout"),
		Now:                    func() time.Time { return time.UnixMilli(1700000000000) },
	})
	require.NoError(t, err)
	f.orch = orch
	return f
}

func (f *fixture) fill(t *testing.T) {
	t.Helper()
	p := domain.Product{ID: "p1", Name: "Soy Candle", Price: domain.NewMoney(100)}
	require.NoError(t, f.cart.AddItem(p))
	require.NoError(t, f.cart.AddItem(p))
}

// =============================================================================
// Preconditions
// =============================================================================

func TestCheckout_EmptyCartMakesNoCall(t *testing.T) {
	for _, m := range []Method{MethodOnline, MethodManual} {
		f := newFixture(t, customer, true)
		_, err := f.orch.Checkout(context.Background(), m, Options{})

		assert.True(t, apierrors.Is(err, apierrors.KindValidation), "%s: %v", m, err)
		assert.ErrorIs(t, err, ErrEmptyCart)
		assert.Empty(t, f.gateway.drafts)
	}
}

func TestCheckout_UnknownMethod(t *testing.T) {
	f := newFixture(t, customer, true)
	f.fill(t)
	_, err := f.orch.Checkout(context.Background(), Method("cash"), Options{})
	assert.True(t, apierrors.Is(err, apierrors.KindValidation))
	assert.Empty(t, f.gateway.drafts)
}

func TestCheckout_IdentityPolicy(t *testing.T) {
	okManual := func(*domain.OrderDraft) (*domain.ManualOrderResult, error) {
		return &domain.ManualOrderResult{Success: true}, nil
	}

	// Online always needs a user.
	f := newFixture(t, nil, false)
	f.fill(t)
	_, err := f.orch.Checkout(context.Background(), MethodOnline, Options{})
	assert.True(t, apierrors.Is(err, apierrors.KindAuthentication))

	// Manual needs one only when configured.
	f = newFixture(t, nil, true)
	f.fill(t)
	_, err = f.orch.Checkout(context.Background(), MethodManual, Options{})
	assert.True(t, apierrors.Is(err, apierrors.KindAuthentication))
	assert.Equal(t, 1, f.cart.Len())

	f = newFixture(t, nil, false)
	f.gateway.manual = okManual
	f.fill(t)
	_, err = f.orch.Checkout(context.Background(), MethodManual, Options{})
	require.NoError(t, err)
	assert.Zero(t, f.cart.Len())
}

// =============================================================================
// Manual
// =============================================================================

func TestCheckout_ManualSuccessClearsCart(t *testing.T) {
	f := newFixture(t, customer, true)
	f.gateway.manual = func(d *domain.OrderDraft) (*domain.ManualOrderResult, error) {
		return &domain.ManualOrderResult{Success: true, Message: "Order placed", OrderID: "o1"}, nil
	}
	f.fill(t)

	out, err := f.orch.Checkout(context.Background(), MethodManual, Options{StaffID: " staff7 "})
	require.NoError(t, err)
	assert.Equal(t, MethodManual, out.Method)
	assert.Equal(t, "o1", out.Manual.OrderID)
	assert.Zero(t, f.cart.Len())

	require.Len(t, f.gateway.drafts, 1)
	d := f.gateway.drafts[0]
	assert.Equal(t, domain.OrderType, d.Type)
	assert.Equal(t, domain.NewMoney(200), d.TotalAmount)
	assert.Equal(t, 2, d.Items[0].Quantity)
	assert.Equal(t, "staff7", d.StaffID)
	assert.Equal(t, customer.Email, d.Customer.Email)
	assert.Equal(t, d.MerchantReference, out.Reference)
}

func TestCheckout_ManualFailureKeepsCart(t *testing.T) {
	tests := []struct {
		name string
		res  *domain.ManualOrderResult
		err  error
		kind apierrors.Kind
		msg  string
	}{
		{"transport", nil, apierrors.New(apierrors.KindConnectivity, "refused"), apierrors.KindConnectivity, apierrors.UserMessage(apierrors.KindConnectivity)},
		{"refused", &domain.ManualOrderResult{Success: false, Message: "Out of stock"}, nil, apierrors.KindGeneric, "Out of stock"},
		{"silent", &domain.ManualOrderResult{}, nil, apierrors.KindGeneric, apierrors.UserMessage(apierrors.KindGeneric)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, customer, true)
			f.gateway.manual = func(*domain.OrderDraft) (*domain.ManualOrderResult, error) { return tt.res, tt.err }
			f.fill(t)

			_, err := f.orch.Checkout(context.Background(), MethodManual, Options{})
			var e *apierrors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.msg, e.Message)
			assert.Equal(t, 1, f.cart.Len())
			assert.Equal(t, 2, f.cart.Items()[0].Quantity)
		})
	}
}

// =============================================================================
// Online
// =============================================================================

func TestCheckout_OnlineFormPost(t *testing.T) {
	f := newFixture(t, customer, true)
	f.gateway.initiate = func(d *domain.OrderDraft) (json.RawMessage, error) {
		return json.RawMessage(`{
			"success": true,
			"payfastUrl": "https://sandbox.payfast.co.za/eng/process",
			"paymentReference": "` + d.MerchantReference + `",
			"payfastData": {
				"merchant_id": "10000100",
				"amount": "200.00",
				"m_payment_id": "` + d.MerchantReference + `",
				"name_last": ""
			}
		}`), nil
	}
	f.fill(t)

	out, err := f.orch.Checkout(context.Background(), MethodOnline, Options{})
	require.NoError(t, err)
	require.Len(t, f.redirect.got, 1)

	r := f.redirect.got[0]
	assert.True(t, r.IsFormPost())
	assert.Equal(t, "https://sandbox.payfast.co.za/eng/process", r.GatewayURL)
	assert.Equal(t, "200.00", r.FormFields["amount"])
	assert.NotContains(t, r.FormFields, "name_last", "empty fields are dropped")
	assert.Equal(t, out.Reference, r.Reference)

	// The backend clears the cart after the gateway calls back.
	assert.Equal(t, 1, f.cart.Len())
}

func TestCheckout_OnlineDescriptorWithoutURL(t *testing.T) {
	f := newFixture(t, customer, true)
	f.gateway.initiate = func(*domain.OrderDraft) (json.RawMessage, error) {
		return json.RawMessage(`{"payfastData":{"merchant_id":"10000100","amount":200}}`), nil
	}
	f.fill(t)

	_, err := f.orch.Checkout(context.Background(), MethodOnline, Options{})
	require.NoError(t, err)
	r := f.redirect.got[0]
	assert.Equal(t, DefaultGatewayURL, r.GatewayURL)
	assert.Equal(t, "200", r.FormFields["amount"])
	assert.Equal(t, 1, f.cart.Len())
}

func TestCheckout_OnlineDirectURL(t *testing.T) {
	f := newFixture(t, customer, true)
	f.gateway.initiate = func(*domain.OrderDraft) (json.RawMessage, error) {
		return json.RawMessage(`{"success":true,"paymentUrl":"https://pay.example.com/session/abc"}`), nil
	}
	f.fill(t)

	_, err := f.orch.Checkout(context.Background(), MethodOnline, Options{})
	require.NoError(t, err)
	r := f.redirect.got[0]
	assert.False(t, r.IsFormPost())
	assert.Equal(t, "https://pay.example.com/session/abc", r.GatewayURL)
}

func TestCheckout_OnlineUnrecognisedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind apierrors.Kind
	}{
		{"success only", `{"success":true}`, apierrors.KindUnexpectedResponse},
		{"array", `[]`, apierrors.KindUnexpectedResponse},
		{"empty descriptor", `{"payfastData":{}}`, apierrors.KindUnexpectedResponse},
		{"bad url", `{"payfastUrl":"javascript:alert(1)"}`, apierrors.KindUnexpectedResponse},
		{"refused", `{"success":false,"message":"Gateway unavailable"}`, apierrors.KindGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, customer, true)
			f.gateway.initiate = func(*domain.OrderDraft) (json.RawMessage, error) {
				return json.RawMessage(tt.body), nil
			}
			f.fill(t)

			_, err := f.orch.Checkout(context.Background(), MethodOnline, Options{})
			assert.True(t, apierrors.Is(err, tt.kind), "err = %v", err)
			assert.Empty(t, f.redirect.got)
			assert.Equal(t, 1, f.cart.Len())
		})
	}
}

func TestCheckout_RedirectFailure(t *testing.T) {
	f := newFixture(t, customer, true)
	f.redirect.err = errors.New("disk full")
	f.gateway.initiate = func(*domain.OrderDraft) (json.RawMessage, error) {
		return json.RawMessage(`{"payfastUrl":"https://sandbox.payfast.co.za/eng/process"}`), nil
	}
	f.fill(t)

	_, err := f.orch.Checkout(context.Background(), MethodOnline, Options{})
	assert.True(t, apierrors.Is(err, apierrors.KindGeneric))
	assert.Equal(t, 1, f.cart.Len())
}

func TestCheckout_FreshReferencePerAttempt(t *testing.T) {
	f := newFixture(t, customer, true)
	f.gateway.manual = func(*domain.OrderDraft) (*domain.ManualOrderResult, error) {
		return &domain.ManualOrderResult{Success: false}, nil
	}
	f.fill(t)

	for i := 0; i < 2; i++ {
		_, _ = f.orch.Checkout(context.Background(), MethodManual, Options{})
	}
	require.Len(t, f.gateway.drafts, 2)
	first, second := f.gateway.drafts[0], f.gateway.drafts[1]
	assert.NotEqual(t, first.MerchantReference, second.MerchantReference)
	assert.Equal(t, "http://localhost:3000/payment/success?reference="+first.MerchantReference, first.ReturnURL)
	assert.Equal(t, "http://localhost:3000/payment/cancelled", first.CancelURL)
	assert.Equal(t, "http://localhost:5000/api/payment/notify", first.NotifyURL)
}

func TestNewReference(t *testing.T) {
	ref := NewReference(time.UnixMilli(1700000000123))
	assert.Regexp(t, regexp.MustCompile(`^TASSEL_1700000000123_[0-9a-f]{12}$`), ref)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" Online ")
	require.NoError(t, err)
	assert.Equal(t, MethodOnline, m)

	_, err = ParseMethod("eft")
	assert.True(t, apierrors.Is(err, apierrors.KindValidation))
}

// =============================================================================
// Redirect page
// =============================================================================

func TestRenderRedirect_FormPost(t *testing.T) {
	var buf bytes.Buffer
	r := &FormRedirector{Out: &buf}
	err := r.Redirect(context.Background(), &domain.PaymentRedirect{
		GatewayURL: "https://sandbox.payfast.co.za/eng/process",
		FormFields: map[string]string{
			"merchant_id": "10000100",
			"amount":      "200.00",
			"item_name":   `Candles <"special">`,
		},
	})
	require.NoError(t, err)

	page := buf.String()
	assert.Contains(t, page, `<form method="POST" action="https://sandbox.payfast.co.za/eng/process">`)
	assert.Contains(t, page, `<input type="hidden" name="merchant_id" value="10000100">`)
	assert.Contains(t, page, `document.forms[0].submit()`)
	assert.NotContains(t, page, `<"special">`, "values must be escaped")
	assert.Less(t, strings.Index(page, `name="amount"`), strings.Index(page, `name="merchant_id"`), "fields are sorted")
}

func TestRenderRedirect_Navigation(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderRedirect(&buf, &domain.PaymentRedirect{GatewayURL: "https://pay.example.com/s/1"}))
	page := buf.String()
	assert.NotContains(t, page, "<form")
	assert.Contains(t, page, `href="https://pay.example.com/s/1"`)
}

func TestFormRedirector_Errors(t *testing.T) {
	assert.Error(t, (&FormRedirector{}).Redirect(context.Background(), &domain.PaymentRedirect{GatewayURL: "https://x.test"}))
	assert.Error(t, (&FormRedirector{Out: &bytes.Buffer{}}).Redirect(context.Background(), &domain.PaymentRedirect{}))
}
