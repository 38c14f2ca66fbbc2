package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"calhelper/internal/caldav"
	"calhelper/internal/config"
	"calhelper/internal/events"
	"calhelper/internal/google"
	"calhelper/internal/models"

	"github.com/emersion/go-ical"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "calhelper",
		Usage: "List upcoming events or create an event in a calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to a TOML config file."},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error. Overrides LOG_LEVEL."},
		},
		Action: listAction,
		Commands: []*cli.Command{
			authCommand(),
			listCommand(),
			createCommand(),
		},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Obtain a Google credential and store it.",
		Action: func(c *cli.Context) error {
			s, err := newSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.cfg.Provider != config.ProviderGoogle {
				return fmt.Errorf("the %s provider does not use OAuth credentials", s.cfg.Provider)
			}

			cred, err := s.manager.Obtain(c.Context)
			if err != nil {
				return err
			}
			s.logger.Info("Credential ready.", "store", s.storeDescription, "expiry", cred.Expiry, "scopes", strings.Join(cred.Scopes, " "))
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Print the next upcoming events.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "calendar", Usage: "Calendar identifier. Defaults to the configured calendar."},
			&cli.Int64Flag{Name: "max", Usage: "Maximum number of events. Defaults to the configured value."},
			&cli.StringFlag{Name: "ics", Usage: "Also write the listed events to this iCalendar file."},
		},
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	provider, err := s.provider(c.Context)
	if err != nil {
		return err
	}

	calendarID := firstNonEmpty(c.String("calendar"), s.cfg.CalendarID)
	maxResults := c.Int64("max")
	if maxResults <= 0 {
		maxResults = s.cfg.MaxResults
	}

	out := c.App.Writer
	upcoming, err := events.NewLister(s.logger, provider).ListUpcoming(c.Context, calendarID, maxResults)
	if err != nil {
		return reportProviderError(out, err)
	}

	if upcoming.Empty() {
		_, _ = fmt.Fprintln(out, "No upcoming events found.")
		return nil
	}
	for _, ev := range upcoming.Events {
		_, _ = fmt.Fprintln(out, ev.Start, ev.Summary)
	}

	if path := c.String("ics"); path != "" {
		if err := writeICS(path, upcoming); err != nil {
			return err
		}
		s.logger.Info("Wrote iCalendar file.", "path", path, "count", len(upcoming.Raw))
	}
	return nil
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Insert a new event.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "summary", Required: true, Usage: "Event title."},
			&cli.StringFlag{Name: "start", Required: true, Usage: "Start, e.g. 2025-05-28T09:00, in the event timezone."},
			&cli.StringFlag{Name: "end", Required: true, Usage: "End, e.g. 2025-05-28T17:00, in the event timezone."},
			&cli.StringFlag{Name: "location", Usage: "Address or name of the location."},
			&cli.StringFlag{Name: "description", Usage: "Additional details."},
			&cli.StringFlag{Name: "timezone", Usage: "IANA timezone. Defaults to the configured timezone."},
			&cli.StringFlag{Name: "calendar", Usage: "Calendar identifier. Defaults to the configured calendar."},
			&cli.StringSliceFlag{Name: "recurrence", Usage: "Recurrence line such as RRULE:FREQ=DAILY;COUNT=2. Repeatable."},
			&cli.StringSliceFlag{Name: "attendee", Usage: "Attendee address, optionally \"Name <address>\". Repeatable."},
			&cli.StringSliceFlag{Name: "optional-attendee", Usage: "Attendee whose attendance is optional. Repeatable."},
			&cli.StringSliceFlag{Name: "reminder", Usage: "Reminder override as method:minutes (email:1440, popup:10m). Repeatable."},
		},
		Action: func(c *cli.Context) error {
			s, err := newSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			input, err := eventInputFromFlags(c, s.cfg)
			if err != nil {
				return err
			}

			provider, err := s.provider(c.Context)
			if err != nil {
				return err
			}

			created, err := events.NewSubmitter(s.logger, provider).Create(c.Context, input)
			if err != nil {
				return reportProviderError(c.App.Writer, err)
			}
			_, _ = fmt.Fprintln(c.App.Writer, "Event created:", created.HTMLLink)
			return nil
		},
	}
}

func eventInputFromFlags(c *cli.Context, cfg *config.Config) (models.EventInput, error) {
	if tz := c.String("timezone"); tz != "" {
		cfg.TimeZone = tz
	}
	loc, err := cfg.Location()
	if err != nil {
		return models.EventInput{}, err
	}

	start, err := events.ParseTime(c.String("start"), loc)
	if err != nil {
		return models.EventInput{}, fmt.Errorf("invalid --start: %w", err)
	}
	end, err := events.ParseTime(c.String("end"), loc)
	if err != nil {
		return models.EventInput{}, fmt.Errorf("invalid --end: %w", err)
	}
	if end.Before(start) {
		return models.EventInput{}, fmt.Errorf("--end %s is before --start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	input := models.EventInput{
		CalendarID:  firstNonEmpty(c.String("calendar"), cfg.CalendarID),
		Summary:     c.String("summary"),
		Location:    c.String("location"),
		Description: c.String("description"),
		Start:       start,
		End:         end,
		TimeZone:    cfg.TimeZone,
		Recurrence:  c.StringSlice("recurrence"),
	}

	for _, raw := range c.StringSlice("attendee") {
		a, err := events.ParseAttendee(raw)
		if err != nil {
			return models.EventInput{}, err
		}
		input.Attendees = append(input.Attendees, a)
	}
	for _, raw := range c.StringSlice("optional-attendee") {
		a, err := events.ParseAttendee(raw)
		if err != nil {
			return models.EventInput{}, err
		}
		a.Optional = true
		input.Attendees = append(input.Attendees, a)
	}
	for _, raw := range c.StringSlice("reminder") {
		r, err := events.ParseReminderOverride(raw)
		if err != nil {
			return models.EventInput{}, err
		}
		input.ReminderOverrides = append(input.ReminderOverrides, r)
	}
	return input, nil
}

// reportProviderError prints provider failures and lets the command finish
// normally. Anything else is returned to fail the run.
func reportProviderError(out io.Writer, err error) error {
	var perr *events.ProviderError
	if errors.As(err, &perr) {
		_, _ = fmt.Fprintf(out, "An error occurred: %v\n", perr.Err)
		return nil
	}
	return err
}

func writeICS(path string, upcoming *events.Upcoming) error {
	cal, err := caldav.ExportCalendar(upcoming.Raw)
	if err != nil {
		return fmt.Errorf("failed to convert events to iCalendar: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create iCalendar file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := ical.NewEncoder(f).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode iCalendar file: %w", err)
	}
	return nil
}

// session carries what every command needs once config is loaded.
type session struct {
	cfg              *config.Config
	logger           *slog.Logger
	manager          *google.Manager
	store            google.TokenStore
	storeDescription string
	closers          []func() error
}

func newSession(c *cli.Context) (*session, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &session{cfg: cfg, logger: setupLogger(cfg.LogLevel)}
	if cfg.Provider != config.ProviderGoogle {
		return s, nil
	}

	if err := s.openStore(c.Context); err != nil {
		return nil, err
	}

	// the client secret is only read when a refresh or consent needs it
	source := func() (*oauth2.Config, error) {
		config, err := google.OAuthConfig(cfg.ClientID, cfg.ClientSecret, cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to get google oauth config: %w", err)
		}
		return config, nil
	}
	s.manager = google.NewCredentialManager(s.logger, s.store, google.DefaultScopes, source)
	return s, nil
}

func (s *session) openStore(ctx context.Context) error {
	switch s.cfg.TokenStore {
	case config.StoreSQLite:
		store, err := google.OpenSQLiteTokenStore(ctx, s.cfg.TokenDB, s.cfg.Account)
		if err != nil {
			return err
		}
		s.store = store
		s.storeDescription = s.cfg.TokenDB
		s.closers = append(s.closers, store.Close)
	default:
		store := google.NewFileTokenStore(s.cfg.TokenFile)
		s.store = store
		s.storeDescription = store.Path
	}
	return nil
}

// provider returns the configured calendar backend, authenticating first
// when it is Google.
func (s *session) provider(ctx context.Context) (events.Provider, error) {
	if s.cfg.Provider == config.ProviderCalDAV {
		dav := s.cfg.CalDAV
		client, err := caldav.NewClient(s.logger, dav.URL, dav.Username, dav.Password, dav.CalendarName)
		if err != nil {
			return nil, fmt.Errorf("failed to create caldav client: %w", err)
		}
		return client, nil
	}

	cred, err := s.manager.Obtain(ctx)
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if s.cfg.APIEndpoint != "" {
		opts = append(opts, option.WithEndpoint(s.cfg.APIEndpoint))
	}
	client, err := google.NewClient(ctx, s.logger, cred, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}
	return client, nil
}

func (s *session) Close() {
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.logger.Warn("Failed to close resource", "error", err)
		}
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
