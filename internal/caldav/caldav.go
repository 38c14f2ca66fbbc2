package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"calhelper/internal/events"
	"calhelper/internal/models"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"google.golang.org/api/calendar/v3"
)

// basicAuthTransport adds Basic Auth and a user agent to every request.
type basicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "calhelper/1.0")
	return t.Transport.RoundTrip(req)
}

// Client talks to a CalDAV server. It implements events.Provider so the
// submitter and lister can run against it instead of Google Calendar.
type Client struct {
	caldavClient    *caldav.Client
	logger          *slog.Logger
	origin          string
	defaultCalendar string
	calendarPaths   map[string]string
}

var _ events.Provider = (*Client)(nil)

// NewClient creates a CalDAV client. defaultCalendar is the display name
// that the "primary" calendar identifier resolves to.
func NewClient(logger *slog.Logger, endpoint, username, password, defaultCalendar string) (*Client, error) {
	httpClient := &http.Client{Transport: &basicAuthTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid CalDAV endpoint %q", endpoint)
	}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	return &Client{
		caldavClient:    caldavClient,
		logger:          logger,
		origin:          u.Scheme + "://" + u.Host,
		defaultCalendar: defaultCalendar,
		calendarPaths:   make(map[string]string),
	}, nil
}

// InsertEvent stores event as a new calendar object.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	calPath, err := c.resolveCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	uid := GenerateUID()
	vevent, err := ToVEvent(event, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event to iCal format: %w", err)
	}

	objectPath := path.Join(calPath, uid+".ics")
	c.logger.Debug("Putting calendar object", "path", objectPath, "summary", event.Summary)

	obj, err := c.caldavClient.PutCalendarObject(ctx, objectPath, NewCalendar(vevent))
	if err != nil {
		return nil, fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}
	if obj != nil && obj.Path != "" {
		objectPath = obj.Path
	}

	created := *event
	created.Id = uid
	created.ICalUID = uid
	created.HtmlLink = c.origin + objectPath
	return &created, nil
}

// ListEvents queries events ending after query.TimeMin. Recurring events are
// expanded locally when query.SingleEvents is set.
func (c *Client) ListEvents(ctx context.Context, calendarID string, query events.ListQuery) ([]*calendar.Event, error) {
	calPath, err := c.resolveCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	q := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			Comps: []caldav.CalendarCompRequest{{
				Name:     ical.CompEvent,
				AllProps: true,
				AllComps: true,
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: query.TimeMin,
				End:   query.TimeMin.Add(expandHorizon),
			}},
		},
	}

	objects, err := c.caldavClient.QueryCalendar(ctx, calPath, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}

	var vevents []*ical.Component
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, child := range obj.Data.Children {
			if child.Name == ical.CompEvent {
				vevents = append(vevents, child)
			}
		}
	}

	items, err := FromVEvents(vevents, query.TimeMin, query.SingleEvents)
	if err != nil {
		return nil, err
	}
	if query.MaxResults > 0 && int64(len(items)) > query.MaxResults {
		items = items[:query.MaxResults]
	}

	c.logger.Debug("Fetched events from CalDAV", "count", len(items), "calendar", calPath)
	return items, nil
}

// resolveCalendar maps a calendar identifier to a collection path. Paths
// are used as-is; "primary" means the configured default calendar; anything
// else is looked up by display name.
func (c *Client) resolveCalendar(ctx context.Context, calendarID string) (string, error) {
	if strings.HasPrefix(calendarID, "/") {
		return calendarID, nil
	}
	name := calendarID
	if name == "" || name == models.DefaultCalendarID {
		name = c.defaultCalendar
	}
	if p, ok := c.calendarPaths[name]; ok {
		return p, nil
	}

	p, err := c.findCalendar(ctx, name)
	if err != nil {
		return "", fmt.Errorf("could not find calendar '%s': %w", name, err)
	}
	c.calendarPaths[name] = p
	return p, nil
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func (c *Client) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			c.logger.Debug("Found CalDAV calendar", "name", name, "path", cal.Path)
			return cal.Path, nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}
