package events

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"calhelper/internal/models"
)

const dateLayout = "2006-01-02"

var inputLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTime parses a wall-clock time in loc. Values carrying their own
// offset (RFC3339) keep it.
func ParseTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range inputLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q, expected YYYY-MM-DDTHH:MM or RFC3339", value)
}

// ParseReminderOverride parses "method:minutes". Minutes may also be a
// duration such as "10m" or "24h".
func ParseReminderOverride(value string) (models.ReminderOverride, error) {
	method, lead, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || method == "" || lead == "" {
		return models.ReminderOverride{}, fmt.Errorf("invalid reminder %q, expected method:minutes", value)
	}

	method = strings.ToLower(method)
	if method != "email" && method != "popup" {
		return models.ReminderOverride{}, fmt.Errorf("invalid reminder method %q, expected email or popup", method)
	}

	minutes, err := strconv.ParseInt(lead, 10, 64)
	if err != nil {
		d, derr := time.ParseDuration(lead)
		if derr != nil {
			return models.ReminderOverride{}, fmt.Errorf("invalid reminder lead time %q: %w", lead, derr)
		}
		minutes = int64(d / time.Minute)
	}
	if minutes < 0 {
		return models.ReminderOverride{}, fmt.Errorf("reminder lead time must not be negative, got %d", minutes)
	}

	return models.ReminderOverride{Method: method, Minutes: minutes}, nil
}

// ParseAttendee accepts a bare address or "Name <address>".
func ParseAttendee(value string) (models.Attendee, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(value))
	if err != nil {
		return models.Attendee{}, fmt.Errorf("invalid attendee %q: %w", value, err)
	}
	return models.Attendee{Email: addr.Address, DisplayName: addr.Name}, nil
}
