package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/FulloMyself/tasselgroupreact/internal/domain"
	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
)

// =============================================================================
// Filters
// =============================================================================

// Filter is a set of listing filters. Empty values are not sent.
type Filter map[string]string

// Values returns the non-empty filters as query parameters.
func (f Filter) Values() url.Values {
	q := url.Values{}
	for k, v := range f {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	return q
}

// fetch decodes the envelope data of a call into a fresh T.
func fetch[T any](ctx context.Context, c *Client, endpoint string, opts CallOptions) (T, error) {
	var out T
	if err := c.CallJSON(ctx, endpoint, opts, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func pathID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apierrors.Validation("An id is required.")
	}
	return url.PathEscape(id), nil
}

// =============================================================================
// Auth
// =============================================================================

// Login exchanges credentials for a token and identity.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	var out domain.AuthResponse
	if err := c.callRaw(ctx, "/auth/login", CallOptions{Method: http.MethodPost, Body: creds, Anonymous: true}, &out); err != nil {
		return nil, err
	}
	return checkAuth(&out)
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, reg domain.Registration) (*domain.AuthResponse, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	var out domain.AuthResponse
	if err := c.callRaw(ctx, "/auth/register", CallOptions{Method: http.MethodPost, Body: reg, Anonymous: true}, &out); err != nil {
		return nil, err
	}
	return checkAuth(&out)
}

// Me returns the identity bound to the current token.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var out struct {
		User *domain.User `json:"user"`
	}
	if err := c.callRaw(ctx, "/auth/me", CallOptions{}, &out); err != nil {
		return nil, err
	}
	if !out.User.Valid() {
		return nil, apierrors.UnexpectedResponse("/auth/me returned no usable identity")
	}
	return out.User, nil
}

// UpdateProfile applies patch to the signed-in user and returns the result.
func (c *Client) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (*domain.User, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	var out struct {
		User *domain.User `json:"user"`
	}
	if err := c.callRaw(ctx, "/auth/profile", CallOptions{Method: http.MethodPut, Body: patch}, &out); err != nil {
		return nil, err
	}
	if !out.User.Valid() {
		return nil, apierrors.UnexpectedResponse("/auth/profile returned no usable identity")
	}
	return out.User, nil
}

func checkAuth(out *domain.AuthResponse) (*domain.AuthResponse, error) {
	if out.Token == "" || !out.User.Valid() {
		return nil, apierrors.UnexpectedResponse("auth response is missing token or user")
	}
	return out, nil
}

// =============================================================================
// Catalog
// =============================================================================

// Products lists the shop catalogue.
func (c *Client) Products(ctx context.Context) ([]domain.Product, error) {
	return fetch[[]domain.Product](ctx, c, "/products", CallOptions{})
}

// Services lists bookable services.
func (c *Client) Services(ctx context.Context) ([]domain.Service, error) {
	return fetch[[]domain.Service](ctx, c, "/services", CallOptions{})
}

// CreateService adds a service. Admin only.
func (c *Client) CreateService(ctx context.Context, req domain.ServiceRequest) (*domain.Service, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var out domain.Service
	if err := c.CallJSON(ctx, "/services", CallOptions{Method: http.MethodPost, Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GiftPackages lists the gift packages.
func (c *Client) GiftPackages(ctx context.Context) ([]domain.GiftPackage, error) {
	return fetch[[]domain.GiftPackage](ctx, c, "/gift-packages", CallOptions{})
}

// =============================================================================
// Bookings
// =============================================================================

// Bookings lists bookings matching filter.
func (c *Client) Bookings(ctx context.Context, filter Filter) ([]domain.Booking, error) {
	return fetch[[]domain.Booking](ctx, c, "/bookings", CallOptions{Query: filter.Values()})
}

// UnassignedBookings lists bookings with no staff member.
func (c *Client) UnassignedBookings(ctx context.Context) ([]domain.Booking, error) {
	return fetch[[]domain.Booking](ctx, c, "/bookings/unassigned", CallOptions{})
}

// CreateBooking books a service.
func (c *Client) CreateBooking(ctx context.Context, req domain.BookingRequest) (*domain.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var out domain.Booking
	if err := c.CallJSON(ctx, "/bookings", CallOptions{Method: http.MethodPost, Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateBookingStatus changes a booking's status.
func (c *Client) UpdateBookingStatus(ctx context.Context, id string, status domain.BookingStatus) (*domain.Booking, error) {
	var out domain.Booking
	if err := c.patchStatus(ctx, "/bookings/", id, domain.StatusKindBooking, string(status), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignBookingStaff assigns a staff member to one booking.
func (c *Client) AssignBookingStaff(ctx context.Context, id, staffID string) (*domain.Booking, error) {
	pid, err := pathID(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(staffID) == "" {
		return nil, apierrors.Validation("Please choose a staff member.")
	}
	var out domain.Booking
	opts := CallOptions{Method: http.MethodPatch, Body: domain.StaffAssignment{StaffID: staffID}}
	if err := c.CallJSON(ctx, "/bookings/"+pid+"/assign-staff", opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BulkAssignStaff assigns one staff member to several bookings.
func (c *Client) BulkAssignStaff(ctx context.Context, req domain.BulkStaffAssignment) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return c.CallJSON(ctx, "/bookings/bulk/assign-staff", CallOptions{Method: http.MethodPatch, Body: req}, nil)
}

// =============================================================================
// Gifts
// =============================================================================

// CreateGiftOrder orders a gift package for a recipient.
func (c *Client) CreateGiftOrder(ctx context.Context, req domain.GiftOrderRequest) (*domain.GiftOrder, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var out domain.GiftOrder
	if err := c.CallJSON(ctx, "/gift-orders", CallOptions{Method: http.MethodPost, Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateGiftOrderStatus changes a gift order's status.
func (c *Client) UpdateGiftOrderStatus(ctx context.Context, id string, status domain.GiftStatus) (*domain.GiftOrder, error) {
	var out domain.GiftOrder
	if err := c.patchStatus(ctx, "/gift-orders/", id, domain.StatusKindGift, string(status), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// Orders
// =============================================================================

// Orders lists orders matching filter.
func (c *Client) Orders(ctx context.Context, filter Filter) ([]domain.Order, error) {
	return fetch[[]domain.Order](ctx, c, "/orders", CallOptions{Query: filter.Values()})
}

// CreateOrder places an order outside the payment flow.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var out domain.Order
	if err := c.CallJSON(ctx, "/orders", CallOptions{Method: http.MethodPost, Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOrderStatus changes an order's status.
func (c *Client) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	var out domain.Order
	if err := c.patchStatus(ctx, "/orders/", id, domain.StatusKindOrder, string(status), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) patchStatus(ctx context.Context, prefix, id string, kind domain.StatusKind, status string, out interface{}) error {
	pid, err := pathID(id)
	if err != nil {
		return err
	}
	if err := domain.ValidateStatus(kind, status); err != nil {
		return err
	}
	opts := CallOptions{Method: http.MethodPatch, Body: domain.StatusUpdate{Status: status}}
	return c.CallJSON(ctx, prefix+pid+"/status", opts, out)
}

// =============================================================================
// Payment
// =============================================================================

// InitiatePayment starts an online payment and returns the raw response so
// the caller can recognise the gateway descriptor.
func (c *Client) InitiatePayment(ctx context.Context, draft *domain.OrderDraft) (json.RawMessage, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	res, err := c.Call(ctx, "/payment/initiate", CallOptions{Method: http.MethodPost, Body: draft})
	if err != nil {
		return nil, err
	}
	if !res.IsJSON {
		return nil, apierrors.UnexpectedResponse("payment initiation returned " + res.ContentType)
	}
	return json.RawMessage(res.Body), nil
}

// CreateManualOrder places an order to be paid later.
func (c *Client) CreateManualOrder(ctx context.Context, draft *domain.OrderDraft) (*domain.ManualOrderResult, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	var out domain.ManualOrderResult
	if err := c.callRaw(ctx, "/payment/manual-order", CallOptions{Method: http.MethodPost, Body: draft}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// Vouchers
// =============================================================================

// Vouchers lists vouchers.
func (c *Client) Vouchers(ctx context.Context) ([]domain.Voucher, error) {
	return fetch[[]domain.Voucher](ctx, c, "/vouchers", CallOptions{})
}

// CreateVoucher issues a voucher.
func (c *Client) CreateVoucher(ctx context.Context, req domain.VoucherRequest) (*domain.Voucher, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var out domain.Voucher
	if err := c.CallJSON(ctx, "/vouchers", CallOptions{Method: http.MethodPost, Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// Users
// =============================================================================

// Staff lists staff members.
func (c *Client) Staff(ctx context.Context) ([]domain.User, error) {
	return fetch[[]domain.User](ctx, c, "/users/staff", CallOptions{})
}

// Users lists all users. Admin only.
func (c *Client) Users(ctx context.Context) ([]domain.User, error) {
	return fetch[[]domain.User](ctx, c, "/users", CallOptions{})
}

// SearchUsers finds users by name or email.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]domain.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apierrors.Validation("Enter a name or email to search.")
	}
	return fetch[[]domain.User](ctx, c, "/users/search", CallOptions{Query: url.Values{"q": {query}}})
}

// =============================================================================
// Dashboards
// =============================================================================

// AdminDashboard returns the admin summary.
func (c *Client) AdminDashboard(ctx context.Context) (domain.DashboardStats, error) {
	return fetch[domain.DashboardStats](ctx, c, "/dashboard/admin", CallOptions{})
}

// StaffDashboard returns the staff summary.
func (c *Client) StaffDashboard(ctx context.Context) (domain.DashboardStats, error) {
	return fetch[domain.DashboardStats](ctx, c, "/dashboard/staff", CallOptions{})
}

// MyOrders lists the signed-in customer's orders.
func (c *Client) MyOrders(ctx context.Context) ([]domain.Order, error) {
	return fetch[[]domain.Order](ctx, c, "/dashboard/orders/my-orders", CallOptions{})
}

// MyBookings lists the signed-in customer's bookings.
func (c *Client) MyBookings(ctx context.Context) ([]domain.Booking, error) {
	return fetch[[]domain.Booking](ctx, c, "/dashboard/bookings/my-bookings", CallOptions{})
}

// MyGifts lists the signed-in customer's gift orders.
func (c *Client) MyGifts(ctx context.Context) ([]domain.GiftOrder, error) {
	return fetch[[]domain.GiftOrder](ctx, c, "/dashboard/gift-orders/my-gifts", CallOptions{})
}

// UserActivity returns one user's activity summary.
func (c *Client) UserActivity(ctx context.Context, userID string) (domain.DashboardStats, error) {
	pid, err := pathID(userID)
	if err != nil {
		return nil, err
	}
	return fetch[domain.DashboardStats](ctx, c, "/dashboard/user-activity/"+pid, CallOptions{})
}

// Receipt generates a receipt for an order, booking or gift order.
func (c *Client) Receipt(ctx context.Context, kind domain.ReceiptKind, id string) (*domain.Receipt, error) {
	switch kind {
	case domain.ReceiptOrder, domain.ReceiptBooking, domain.ReceiptGift:
	default:
		return nil, apierrors.Validationf("Unknown receipt type %q.", kind)
	}
	pid, err := pathID(id)
	if err != nil {
		return nil, err
	}
	var body json.RawMessage
	if err := c.CallJSON(ctx, "/dashboard/receipt/"+string(kind)+"/"+pid, CallOptions{}, &body); err != nil {
		return nil, err
	}
	return &domain.Receipt{Kind: kind, ID: id, Body: body}, nil
}
