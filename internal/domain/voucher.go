package domain

import (
	"time"

	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
)

// Voucher is a prepaid gift voucher.
type Voucher struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	Amount         Money      `json:"amount"`
	RecipientEmail string     `json:"recipientEmail,omitempty"`
	Redeemed       bool       `json:"redeemed"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// VoucherRequest issues a voucher.
type VoucherRequest struct {
	Amount         Money      `json:"amount"`
	RecipientEmail string     `json:"recipientEmail,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

// Validate checks the request before it is sent.
func (r VoucherRequest) Validate() error {
	if r.Amount <= 0 {
		return apierrors.Validation("Voucher amount must be greater than zero.")
	}
	if r.RecipientEmail != "" && !ValidateEmail(r.RecipientEmail) {
		return apierrors.Validation("Please enter a valid recipient email address.")
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(time.Now()) {
		return apierrors.Validation("Voucher expiry must be in the future.")
	}
	return nil
}
