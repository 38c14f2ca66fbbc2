package events

import (
	"context"
	"log/slog"
	"time"

	"calhelper/internal/models"

	"google.golang.org/api/calendar/v3"
)

const orderByStartTime = "startTime"

// Provider is the narrow slice of a calendar backend that the submitter and
// lister need.
type Provider interface {
	InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error)
	ListEvents(ctx context.Context, calendarID string, query ListQuery) ([]*calendar.Event, error)
}

// ListQuery carries the parameters of a "list events" call.
type ListQuery struct {
	TimeMin      time.Time
	MaxResults   int64
	SingleEvents bool
	OrderBy      string
}

// Created is the outcome of a successful insert.
type Created struct {
	Event    *calendar.Event
	HTMLLink string
}

// Submitter builds events and inserts them through a Provider.
type Submitter struct {
	provider Provider
	logger   *slog.Logger
}

// NewSubmitter creates a new Submitter.
func NewSubmitter(logger *slog.Logger, provider Provider) *Submitter {
	return &Submitter{provider: provider, logger: logger}
}

// Create inserts a new event. It never panics on provider failures: the
// failure is logged and returned as a *ProviderError.
func (s *Submitter) Create(ctx context.Context, input models.EventInput) (*Created, error) {
	calendarID := input.CalendarID
	if calendarID == "" {
		calendarID = models.DefaultCalendarID
	}

	event := BuildEvent(input)
	s.logger.Debug("Inserting event", "calendarID", calendarID, "summary", event.Summary, "start", event.Start.DateTime)

	created, err := s.provider.InsertEvent(ctx, calendarID, event)
	if err != nil {
		perr := &ProviderError{Op: "insert event", CalendarID: calendarID, Err: err}
		s.logger.Error("An error occurred while creating the event", "calendarID", calendarID, "error", err)
		return nil, perr
	}
	if created == nil {
		created = event
	}

	s.logger.Info("Event created", "link", created.HtmlLink, "id", created.Id)
	return &Created{Event: created, HTMLLink: created.HtmlLink}, nil
}

// BuildEvent assembles the provider payload for input.
func BuildEvent(input models.EventInput) *calendar.Event {
	tz := input.TimeZone
	if tz == "" {
		tz = models.DefaultTimeZone
	}

	event := &calendar.Event{
		Summary:     input.Summary,
		Location:    input.Location,
		Description: input.Description,
		Start: &calendar.EventDateTime{
			DateTime: input.Start.Format(time.RFC3339),
			TimeZone: tz,
		},
		End: &calendar.EventDateTime{
			DateTime: input.End.Format(time.RFC3339),
			TimeZone: tz,
		},
		Reminders: BuildReminders(input.ReminderOverrides),
	}

	if len(input.Recurrence) > 0 {
		event.Recurrence = append([]string(nil), input.Recurrence...)
	}

	for _, a := range input.Attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{
			Email:       a.Email,
			DisplayName: a.DisplayName,
			Optional:    a.Optional,
		})
	}

	return event
}

// BuildReminders translates overrides into the provider's reminder block.
// Either UseDefault is true and there are no overrides, or UseDefault is
// false and the overrides are attached verbatim.
func BuildReminders(overrides []models.ReminderOverride) *calendar.EventReminders {
	if len(overrides) == 0 {
		return &calendar.EventReminders{UseDefault: true}
	}

	// false and zero are dropped by the JSON encoder unless forced
	reminders := &calendar.EventReminders{
		UseDefault:      false,
		ForceSendFields: []string{"UseDefault"},
	}
	for _, o := range overrides {
		reminders.Overrides = append(reminders.Overrides, &calendar.EventReminder{
			Method:          o.Method,
			Minutes:         o.Minutes,
			ForceSendFields: []string{"Minutes"},
		})
	}
	return reminders
}
