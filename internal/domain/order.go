package domain

import (
	"strconv"
	"strings"
	"time"

	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
)

// LineItem is one product entry in the cart.
type LineItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitPrice Money  `json:"price"`
	Quantity  int    `json:"quantity"`
	Image     string `json:"image,omitempty"`
}

// Subtotal returns unit price times quantity.
func (li LineItem) Subtotal() Money {
	return li.UnitPrice.Times(li.Quantity)
}

// SumItems returns the sum of the line item subtotals.
func SumItems(items []LineItem) Money {
	var total Money
	for _, item := range items {
		total += item.Subtotal()
	}
	return total
}

// CheckedSum is SumItems with every product and partial sum kept within
// ±MaxMoney. ok is false otherwise.
func CheckedSum(items []LineItem) (Money, bool) {
	var total Money
	for _, item := range items {
		sub, ok := item.UnitPrice.CheckedTimes(item.Quantity)
		if !ok {
			return 0, false
		}
		if total, ok = total.CheckedAdd(sub); !ok {
			return 0, false
		}
	}
	return total, true
}

// Customer is the payer attached to an order draft.
type Customer struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// CustomerFromUser builds the payer from the signed-in identity.
func CustomerFromUser(u *User) Customer {
	if u == nil {
		return Customer{}
	}
	return Customer{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
}

// OrderType is the type tag the backend uses for shop orders.
const OrderType = "order"

// OrderDraft is the payload for payment initiation and manual orders. It is
// derived from the cart at checkout time and never stored.
type OrderDraft struct {
	Type              string     `json:"type"`
	Items             []LineItem `json:"items"`
	TotalAmount       Money      `json:"totalAmount"`
	StaffID           string     `json:"staffId,omitempty"`
	Customer          Customer   `json:"customer"`
	MerchantReference string     `json:"merchantReference"`
	ReturnURL         string     `json:"returnUrl"`
	CancelURL         string     `json:"cancelUrl"`
	NotifyURL         string     `json:"notifyUrl"`
}

// Validate checks the draft before it is sent.
func (d *OrderDraft) Validate() error {
	if d == nil || len(d.Items) == 0 {
		return apierrors.Validation("Your cart is empty.")
	}
	for _, item := range d.Items {
		if item.ProductID == "" {
			return apierrors.Validation("Cart contains an item without a product.")
		}
		if item.Quantity < 1 {
			return apierrors.Validationf("Invalid quantity for %s.", item.Name)
		}
		if item.UnitPrice < 0 {
			return apierrors.Validationf("Invalid price for %s.", item.Name)
		}
	}
	if d.TotalAmount != SumItems(d.Items) {
		return apierrors.Validation("Order total does not match the cart.")
	}
	if d.TotalAmount <= 0 {
		return apierrors.Validation("Order total must be greater than zero.")
	}
	if strings.TrimSpace(d.MerchantReference) == "" {
		return apierrors.Validation("Order reference is missing.")
	}
	return nil
}

// ItemSummary renders "2x Candle, 1x Soap".
func (d *OrderDraft) ItemSummary() string {
	parts := make([]string, 0, len(d.Items))
	for _, item := range d.Items {
		parts = append(parts, strconv.Itoa(item.Quantity)+"x "+item.Name)
	}
	return strings.Join(parts, ", ")
}

// Order is a placed shop order.
type Order struct {
	ID               string      `json:"id"`
	Items            []LineItem  `json:"items"`
	TotalAmount      Money       `json:"totalAmount"`
	Status           OrderStatus `json:"status"`
	PaymentStatus    string      `json:"paymentStatus,omitempty"`
	PaymentMethod    string      `json:"paymentMethod,omitempty"`
	PaymentReference string      `json:"paymentReference,omitempty"`
	StaffID          string      `json:"staffId,omitempty"`
	Customer         *Customer   `json:"customer,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// OrderRequest creates an order directly, outside the payment flow.
type OrderRequest struct {
	Items       []LineItem `json:"items"`
	TotalAmount Money      `json:"totalAmount"`
	StaffID     string     `json:"staffId,omitempty"`
}

// Validate checks the request before it is sent.
func (r OrderRequest) Validate() error {
	if len(r.Items) == 0 {
		return apierrors.Validation("Your cart is empty.")
	}
	if r.TotalAmount != SumItems(r.Items) {
		return apierrors.Validation("Order total does not match the cart.")
	}
	return nil
}

// PaymentRedirect is the gateway URL and the fields the browser must POST to it.
type PaymentRedirect struct {
	GatewayURL string            `json:"gatewayUrl"`
	FormFields map[string]string `json:"formFields,omitempty"`
	Reference  string            `json:"reference,omitempty"`
}

// IsFormPost reports whether the redirect must be a form POST rather than a
// plain navigation.
func (p *PaymentRedirect) IsFormPost() bool {
	return len(p.FormFields) > 0
}

// ManualOrderResult is the response to a manual (email) order.
type ManualOrderResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	OrderID   string `json:"orderId,omitempty"`
	Reference string `json:"reference,omitempty"`
}
