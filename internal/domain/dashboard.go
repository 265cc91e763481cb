package domain

import "encoding/json"

// DashboardStats is the admin or staff summary. Its members are owned by the
// backend and rendered as-is.
type DashboardStats map[string]interface{}

// CustomerDashboard aggregates a customer's own records.
type CustomerDashboard struct {
	Orders   []Order     `json:"orders"`
	Bookings []Booking   `json:"bookings"`
	Gifts    []GiftOrder `json:"gifts"`
}

// ReceiptKind selects the record a receipt is generated for.
type ReceiptKind string

const (
	ReceiptOrder   ReceiptKind = "order"
	ReceiptBooking ReceiptKind = "booking"
	ReceiptGift    ReceiptKind = "gift"
)

// Receipt is a rendered receipt document.
type Receipt struct {
	Kind ReceiptKind     `json:"type"`
	ID   string          `json:"id"`
	Body json.RawMessage `json:"body"`
}
