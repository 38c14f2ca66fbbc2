package models

import "time"

const (
	DefaultCalendarID = "primary"
	DefaultTimeZone   = "America/Chicago"
	DefaultMaxResults = 10
)

// EventInput describes a calendar event to be created.
// It is independent of any specific calendar provider.
type EventInput struct {
	CalendarID        string             // Target calendar, "primary" when empty
	Summary           string             // Title of the event
	Location          string             // Address or name of the location
	Description       string             // Additional details
	Start             time.Time          // Start of the event
	End               time.Time          // End of the event
	TimeZone          string             // IANA timezone label sent alongside start/end
	Recurrence        []string           // RRULE, EXRULE, RDATE or EXDATE lines
	Attendees         []Attendee         // Invited guests
	ReminderOverrides []ReminderOverride // Empty means "use the calendar's default reminders"
}

// Attendee is an email-bearing guest record.
type Attendee struct {
	Email       string
	DisplayName string
	Optional    bool
}

// ReminderOverride replaces the default reminders with an explicit method and lead time.
type ReminderOverride struct {
	Method  string // "email" or "popup"
	Minutes int64  // Minutes before the start of the event
}

// UpcomingEvent is one row of an upcoming events listing.
type UpcomingEvent struct {
	ID      string
	Summary string
	// Start is the provider's raw start value: an RFC3339 date-time, or a
	// bare YYYY-MM-DD date for all-day events.
	Start     string
	AllDay    bool
	StartTime time.Time
	HTMLLink  string
}
