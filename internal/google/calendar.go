package google

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"calhelper/internal/events"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// CalendarClient provides a client for interacting with the Google Calendar API.
type CalendarClient struct {
	service *calendar.Service
	logger  *slog.Logger
}

var _ events.Provider = (*CalendarClient)(nil)

// NewClient creates a Google Calendar client authorized by cred. When the
// credential records its client, the HTTP client refreshes the access token
// on its own while the process runs.
func NewClient(ctx context.Context, logger *slog.Logger, cred *Credential, opts ...option.ClientOption) (*CalendarClient, error) {
	if cred == nil {
		return nil, fmt.Errorf("credential cannot be nil")
	}

	var httpClient *http.Client
	if config := cred.OAuthConfig(); config != nil {
		httpClient = config.Client(ctx, cred.Token())
	} else {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(cred.Token()))
	}
	return NewClientWithHTTP(ctx, logger, httpClient, opts...)
}

// NewClientWithHTTP creates a client on top of an already authorized HTTP client.
func NewClientWithHTTP(ctx context.Context, logger *slog.Logger, httpClient *http.Client, opts ...option.ClientOption) (*CalendarClient, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &CalendarClient{service: service, logger: logger}, nil
}

// InsertEvent creates event in the given calendar.
func (c *CalendarClient) InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	c.logger.Debug("Inserting event into Google Calendar", "calendarID", calendarID, "summary", event.Summary)

	created, err := c.service.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return created, nil
}

// ListEvents fetches events from the specified calendar.
func (c *CalendarClient) ListEvents(ctx context.Context, calendarID string, query events.ListQuery) ([]*calendar.Event, error) {
	c.logger.Debug("Fetching events", "calendarID", calendarID, "timeMin", query.TimeMin, "max", query.MaxResults)

	call := c.service.Events.List(calendarID).
		ShowDeleted(false).
		SingleEvents(query.SingleEvents).
		TimeMin(query.TimeMin.Format(time.RFC3339))
	if query.MaxResults > 0 {
		call = call.MaxResults(query.MaxResults)
	}
	if query.OrderBy != "" {
		call = call.OrderBy(query.OrderBy)
	}

	result, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", err)
	}

	c.logger.Debug("Successfully fetched events from Google Calendar", "count", len(result.Items), "calendarID", calendarID)
	return result.Items, nil
}
