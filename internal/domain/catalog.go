package domain

import (
	"strings"

	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
)

// Product is a shop item.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       Money  `json:"price"`
	Image       string `json:"image,omitempty"`
	Category    string `json:"category,omitempty"`
	Stock       int    `json:"stock,omitempty"`
}

// Service is a bookable treatment.
type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       Money  `json:"price"`
	Duration    int    `json:"duration"` // minutes
	Category    string `json:"category,omitempty"`
	Image       string `json:"image,omitempty"`
}

// ServiceRequest creates a service.
type ServiceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       Money  `json:"price"`
	Duration    int    `json:"duration"`
	Category    string `json:"category,omitempty"`
}

// Validate checks the request before it is sent.
func (r ServiceRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return apierrors.Validation("Service name is required.")
	}
	if r.Price < 0 {
		return apierrors.Validation("Service price cannot be negative.")
	}
	if r.Duration <= 0 {
		return apierrors.Validation("Service duration must be positive.")
	}
	return nil
}

// GiftPackage is a pre-assembled gift.
type GiftPackage struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       Money    `json:"price"`
	Items       []string `json:"items,omitempty"`
	Image       string   `json:"image,omitempty"`
}
