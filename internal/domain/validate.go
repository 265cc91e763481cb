package domain

import (
	"regexp"
	"strings"
	"time"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{0,15}$`)
	phoneNoise   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "\t", "")
)

// DateLayout is the calendar date format used by booking and gift forms.
const DateLayout = "2006-01-02"

// ValidateEmail reports whether email looks like an address.
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// ValidatePhone reports whether phone is a plausible international number
// once spaces, dashes and brackets are removed.
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(phoneNoise.Replace(phone))
}

// parseFutureDate parses a calendar date and rejects days before now's date.
func parseFutureDate(value string, now time.Time) (time.Time, bool) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), now.Location())
	if err != nil {
		return time.Time{}, false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return d, !d.Before(today)
}
