package events

import (
	"context"
	"log/slog"
	"time"

	"calhelper/internal/models"

	"google.golang.org/api/calendar/v3"
)

// Upcoming is the result of a listing. An empty listing is not an error.
type Upcoming struct {
	CalendarID string
	Events     []models.UpcomingEvent
	// Raw holds the provider records behind Events, in the same order.
	Raw []*calendar.Event
}

// Empty reports whether the provider returned no events.
func (u *Upcoming) Empty() bool {
	return u == nil || len(u.Events) == 0
}

// Lister queries upcoming events through a Provider.
type Lister struct {
	provider Provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewLister creates a new Lister.
func NewLister(logger *slog.Logger, provider Provider) *Lister {
	return &Lister{provider: provider, logger: logger, now: time.Now}
}

// ListUpcoming returns at most max events starting from now, recurring events
// expanded into single instances and ordered by start time.
func (l *Lister) ListUpcoming(ctx context.Context, calendarID string, max int64) (*Upcoming, error) {
	if calendarID == "" {
		calendarID = models.DefaultCalendarID
	}
	if max <= 0 {
		max = models.DefaultMaxResults
	}

	query := ListQuery{
		TimeMin:      l.now().UTC(),
		MaxResults:   max,
		SingleEvents: true,
		OrderBy:      orderByStartTime,
	}
	l.logger.Info("Getting the upcoming events", "calendarID", calendarID, "max", max)

	items, err := l.provider.ListEvents(ctx, calendarID, query)
	if err != nil {
		l.logger.Error("An error occurred while listing events", "calendarID", calendarID, "error", err)
		return nil, &ProviderError{Op: "list events", CalendarID: calendarID, Err: err}
	}

	result := &Upcoming{CalendarID: calendarID}
	for _, item := range items {
		if item == nil {
			continue
		}
		result.Events = append(result.Events, ToUpcoming(item))
		result.Raw = append(result.Raw, item)
		if int64(len(result.Events)) == max {
			break
		}
	}

	l.logger.Debug("Fetched upcoming events", "calendarID", calendarID, "count", len(result.Events))
	return result, nil
}

// ToUpcoming flattens a provider event into a listing row. The start is
// either a date-time or, for all-day events, a bare date.
func ToUpcoming(item *calendar.Event) models.UpcomingEvent {
	up := models.UpcomingEvent{
		ID:       item.Id,
		Summary:  item.Summary,
		HTMLLink: item.HtmlLink,
	}
	if item.Start == nil {
		return up
	}

	if item.Start.DateTime != "" {
		up.Start = item.Start.DateTime
		if t, err := time.Parse(time.RFC3339, item.Start.DateTime); err == nil {
			up.StartTime = t
		}
	} else if item.Start.Date != "" {
		up.Start = item.Start.Date
		up.AllDay = true
		if t, err := time.Parse(dateLayout, item.Start.Date); err == nil {
			up.StartTime = t
		}
	}
	return up
}
