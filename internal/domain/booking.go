package domain

import (
	"strings"
	"time"

	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
)

// TimeSlots are the bookable start times.
var TimeSlots = []string{"09:00", "10:00", "11:00", "12:00", "14:00", "15:00", "16:00"}

// IsTimeSlot reports whether t is one of TimeSlots.
func IsTimeSlot(t string) bool {
	for _, slot := range TimeSlots {
		if slot == t {
			return true
		}
	}
	return false
}

// Booking is a scheduled service appointment.
type Booking struct {
	ID              string        `json:"id"`
	ServiceID       string        `json:"service"`
	ServiceName     string        `json:"serviceName,omitempty"`
	Date            string        `json:"date"`
	Time            string        `json:"time"`
	AssignedStaff   string        `json:"assignedStaff,omitempty"`
	SpecialRequests string        `json:"specialRequests,omitempty"`
	Status          BookingStatus `json:"status"`
	Customer        *Customer     `json:"customer,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// BookingRequest creates a booking.
type BookingRequest struct {
	ServiceID       string `json:"service"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	AssignedStaff   string `json:"assignedStaff"`
	SpecialRequests string `json:"specialRequests"`
}

// Validate checks the request against today's date.
func (r BookingRequest) Validate() error {
	return r.ValidateAt(time.Now())
}

// ValidateAt checks the request against the given clock.
func (r BookingRequest) ValidateAt(now time.Time) error {
	if strings.TrimSpace(r.ServiceID) == "" {
		return apierrors.Validation("Please choose a service.")
	}
	if r.Date == "" || r.Time == "" || r.AssignedStaff == "" {
		return apierrors.Validation("Please fill in all required fields: date, time and staff member.")
	}
	if _, ok := parseFutureDate(r.Date, now); !ok {
		return apierrors.Validation("Please choose a booking date from today onwards.")
	}
	if !IsTimeSlot(r.Time) {
		return apierrors.Validationf("%s is not an available time slot.", r.Time)
	}
	return nil
}

// StaffAssignment assigns a staff member to one booking.
type StaffAssignment struct {
	StaffID string `json:"staffId"`
}

// BulkStaffAssignment assigns a staff member to several bookings.
type BulkStaffAssignment struct {
	BookingIDs []string `json:"bookingIds"`
	StaffID    string   `json:"staffId"`
}

// Validate checks the request before it is sent.
func (b BulkStaffAssignment) Validate() error {
	if len(b.BookingIDs) == 0 {
		return apierrors.Validation("Select at least one booking.")
	}
	for _, id := range b.BookingIDs {
		if strings.TrimSpace(id) == "" {
			return apierrors.Validation("Booking id cannot be empty.")
		}
	}
	if strings.TrimSpace(b.StaffID) == "" {
		return apierrors.Validation("Please choose a staff member.")
	}
	return nil
}
