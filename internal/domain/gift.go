package domain

import (
	"strings"
	"time"

	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
)

// GiftOrder is a gift sent to a recipient.
type GiftOrder struct {
	ID             string     `json:"id"`
	PackageID      string     `json:"giftPackage"`
	PackageName    string     `json:"giftPackageName,omitempty"`
	RecipientName  string     `json:"recipientName"`
	RecipientEmail string     `json:"recipientEmail"`
	Message        string     `json:"message,omitempty"`
	DeliveryDate   string     `json:"deliveryDate"`
	AssignedStaff  string     `json:"assignedStaff,omitempty"`
	Status         GiftStatus `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// GiftOrderRequest creates a gift order.
type GiftOrderRequest struct {
	PackageID      string `json:"giftPackage"`
	RecipientName  string `json:"recipientName"`
	RecipientEmail string `json:"recipientEmail"`
	Message        string `json:"message"`
	DeliveryDate   string `json:"deliveryDate"`
	AssignedStaff  string `json:"assignedStaff,omitempty"`
}

// Validate checks the request against today's date.
func (r GiftOrderRequest) Validate() error {
	return r.ValidateAt(time.Now())
}

// ValidateAt checks the request against the given clock.
func (r GiftOrderRequest) ValidateAt(now time.Time) error {
	if strings.TrimSpace(r.PackageID) == "" {
		return apierrors.Validation("Please choose a gift package.")
	}
	if strings.TrimSpace(r.RecipientName) == "" || strings.TrimSpace(r.RecipientEmail) == "" || r.DeliveryDate == "" {
		return apierrors.Validation("Please fill in all required fields: Recipient Name, Recipient Email, and Delivery Date")
	}
	if !ValidateEmail(r.RecipientEmail) {
		return apierrors.Validation("Please enter a valid recipient email address.")
	}
	if _, ok := parseFutureDate(r.DeliveryDate, now); !ok {
		return apierrors.Validation("Please choose a delivery date from today onwards.")
	}
	return nil
}
