package domain

import (
	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// BookingStatus is the state of a booking.
type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in-progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
	BookingNoShow     BookingStatus = "no-show"
)

// GiftStatus is the state of a gift order.
type GiftStatus string

const (
	GiftPending    GiftStatus = "pending"
	GiftProcessing GiftStatus = "processing"
	GiftScheduled  GiftStatus = "scheduled"
	GiftDelivered  GiftStatus = "delivered"
	GiftCancelled  GiftStatus = "cancelled"
)

// StatusKind selects a status table.
type StatusKind string

const (
	StatusKindOrder   StatusKind = "order"
	StatusKindBooking StatusKind = "booking"
	StatusKindGift    StatusKind = "gift"
)

// StatusOption is a value/label pair for status pickers.
type StatusOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var statusOptions = map[StatusKind][]StatusOption{
	StatusKindOrder: {
		{string(OrderPending), "Pending"},
		{string(OrderConfirmed), "Confirmed"},
		{string(OrderProcessing), "Processing"},
		{string(OrderShipped), "Shipped"},
		{string(OrderDelivered), "Delivered"},
		{string(OrderCancelled), "Cancelled"},
	},
	StatusKindBooking: {
		{string(BookingPending), "Pending"},
		{string(BookingConfirmed), "Confirmed"},
		{string(BookingInProgress), "In Progress"},
		{string(BookingCompleted), "Completed"},
		{string(BookingCancelled), "Cancelled"},
		{string(BookingNoShow), "No Show"},
	},
	StatusKindGift: {
		{string(GiftPending), "Pending"},
		{string(GiftProcessing), "Processing"},
		{string(GiftScheduled), "Scheduled"},
		{string(GiftDelivered), "Delivered"},
		{string(GiftCancelled), "Cancelled"},
	},
}

// StatusOptions returns the picker options for kind, or nil for an unknown kind.
func StatusOptions(kind StatusKind) []StatusOption {
	opts := statusOptions[kind]
	if opts == nil {
		return nil
	}
	out := make([]StatusOption, len(opts))
	copy(out, opts)
	return out
}

// ValidateStatus checks status against the table for kind.
func ValidateStatus(kind StatusKind, status string) error {
	for _, opt := range statusOptions[kind] {
		if opt.Value == status {
			return nil
		}
	}
	return apierrors.Validationf("%q is not a valid %s status.", status, kind)
}

var badgeColors = map[string]string{
	"completed":   "success",
	"confirmed":   "primary",
	"pending":     "warning",
	"processing":  "info",
	"shipped":     "info",
	"delivered":   "success",
	"in-progress": "info",
	"paid":        "success",
	"cancelled":   "danger",
	"no-show":     "danger",
}

// BadgeColor returns the display colour for a status.
func BadgeColor(status string) string {
	if c, ok := badgeColors[status]; ok {
		return c
	}
	return "secondary"
}

// StatusUpdate is the body of every status PATCH.
type StatusUpdate struct {
	Status string `json:"status"`
}
