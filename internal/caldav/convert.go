package caldav

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"
)

const (
	productID     = "-//calhelper//EN"
	dateLayout    = "2006-01-02"
	expandHorizon = 366 * 24 * time.Hour

	paramRole    = "ROLE"
	roleOptional = "OPT-PARTICIPANT"
)

// NewCalendar wraps VEVENTs into a VCALENDAR with the required headers.
func NewCalendar(vevents ...*ical.Component) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, vevents...)
	return cal
}

// ExportCalendar converts provider events into one iCalendar document.
func ExportCalendar(items []*calendar.Event) (*ical.Calendar, error) {
	var vevents []*ical.Component
	for _, item := range items {
		ve, err := ToVEvent(item, "")
		if err != nil {
			return nil, err
		}
		vevents = append(vevents, ve)
	}
	return NewCalendar(vevents...), nil
}

// ToVEvent converts a provider event into a VEVENT. uid falls back to the
// event's iCalUID, then its ID, then a fresh UUID.
func ToVEvent(event *calendar.Event, uid string) (*ical.Component, error) {
	if uid == "" {
		uid = event.ICalUID
	}
	if uid == "" {
		uid = event.Id
	}
	if uid == "" {
		uid = GenerateUID()
	}

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, event.Summary)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())

	if err := setEventTime(ve, ical.PropDateTimeStart, event.Start); err != nil {
		return nil, fmt.Errorf("invalid start for %q: %w", event.Summary, err)
	}
	if event.End != nil {
		if err := setEventTime(ve, ical.PropDateTimeEnd, event.End); err != nil {
			return nil, fmt.Errorf("invalid end for %q: %w", event.Summary, err)
		}
	}

	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		ve.Props.SetText(ical.PropLocation, event.Location)
	}
	if event.Organizer != nil && event.Organizer.Email != "" {
		p := ical.NewProp(ical.PropOrganizer)
		p.SetText(fmt.Sprintf("mailto:%s", event.Organizer.Email))
		ve.Props.Add(p)
	}
	for _, attendee := range event.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.SetText(fmt.Sprintf("mailto:%s", attendee.Email))
		if attendee.DisplayName != "" {
			p.Params.Set(ical.ParamCommonName, attendee.DisplayName)
		}
		if attendee.Optional {
			p.Params.Set(paramRole, roleOptional)
		}
		ve.Props.Add(p)
	}
	for _, line := range event.Recurrence {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("invalid recurrence line %q", line)
		}
		p := ical.NewProp(strings.ToUpper(name))
		p.Value = value
		ve.Props.Add(p)
	}

	if event.Reminders != nil && !event.Reminders.UseDefault {
		for _, r := range event.Reminders.Overrides {
			ve.Children = append(ve.Children, toVAlarm(event, r))
		}
	}
	return ve, nil
}

func setEventTime(ve *ical.Component, name string, edt *calendar.EventDateTime) error {
	if edt == nil {
		return fmt.Errorf("missing %s", name)
	}
	if edt.Date != "" {
		t, err := time.Parse(dateLayout, edt.Date)
		if err != nil {
			return err
		}
		ve.Props.SetDate(name, t)
		return nil
	}

	t, err := time.Parse(time.RFC3339, edt.DateTime)
	if err != nil {
		return err
	}
	// parsed offsets carry no zone name, so anything without a known TZID goes out as UTC
	t = t.UTC()
	if edt.TimeZone != "" {
		if loc, err := time.LoadLocation(edt.TimeZone); err == nil {
			t = t.In(loc)
		}
	}
	ve.Props.SetDateTime(name, t)
	return nil
}

func toVAlarm(event *calendar.Event, r *calendar.EventReminder) *ical.Component {
	alarm := ical.NewComponent(ical.CompAlarm)
	action := "DISPLAY"
	if r.Method == "email" {
		action = "EMAIL"
	}
	alarm.Props.SetText(ical.PropAction, action)

	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = fmt.Sprintf("-PT%dM", r.Minutes)
	alarm.Props.Add(trigger)

	alarm.Props.SetText(ical.PropDescription, event.Summary)
	if action == "EMAIL" {
		alarm.Props.SetText(ical.PropSummary, event.Summary)
	}
	return alarm
}

// FromVEvents converts VEVENTs into provider events starting at or after
// from. With expand set, recurring events are expanded into single
// instances within a year of from. A VEVENT carrying a RECURRENCE-ID
// replaces the instance of its series that starts at that time. The result
// is ordered by start time.
func FromVEvents(vevents []*ical.Component, from time.Time, expand bool) ([]*calendar.Event, error) {
	type occurrence struct {
		start time.Time
		event *calendar.Event
	}
	var all []occurrence
	add := func(start, end time.Time, event *calendar.Event) {
		if !start.Before(from) || end.After(from) {
			all = append(all, occurrence{start: start, event: event})
		}
	}

	// overridden instance starts, keyed by UID
	overridden := make(map[string]map[int64]bool)
	var masters []*ical.Component
	for _, ve := range vevents {
		if ve.Props.Get(ical.PropRecurrenceID) == nil {
			masters = append(masters, ve)
			continue
		}

		override, start, end, err := fromVEvent(ve)
		if err != nil {
			return nil, err
		}
		rid, err := ve.Props.DateTime(ical.PropRecurrenceID, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid recurrence id for event %q: %w", override.Id, err)
		}
		uid := override.Id
		if overridden[uid] == nil {
			overridden[uid] = make(map[int64]bool)
		}
		overridden[uid][rid.Unix()] = true

		override.Id = instanceID(uid, rid)
		override.RecurringEventId = uid
		override.OriginalStartTime = eventDateTime(rid, override.Start)
		override.Recurrence = nil
		add(start, end, override)
	}

	for _, ve := range masters {
		base, start, end, err := fromVEvent(ve)
		if err != nil {
			return nil, err
		}

		set, err := ve.RecurrenceSet(time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid recurrence for %q: %w", base.Summary, err)
		}
		if !expand || set == nil {
			add(start, end, base)
			continue
		}

		duration := end.Sub(start)
		for _, occ := range set.Between(from.Add(-duration), from.Add(expandHorizon), true) {
			if overridden[base.Id][occ.Unix()] {
				continue
			}
			instance := *base
			instance.Id = instanceID(base.Id, occ)
			instance.RecurringEventId = base.Id
			instance.Recurrence = nil
			instance.Start = eventDateTime(occ, base.Start)
			instance.End = eventDateTime(occ.Add(duration), base.End)
			add(occ, occ.Add(duration), &instance)
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].start.Before(all[j].start) })
	items := make([]*calendar.Event, 0, len(all))
	for _, o := range all {
		items = append(items, o.event)
	}
	return items, nil
}

func instanceID(uid string, start time.Time) string {
	return fmt.Sprintf("%s_%s", uid, start.UTC().Format("20060102T150405Z"))
}

func fromVEvent(ve *ical.Component) (*calendar.Event, time.Time, time.Time, error) {
	uid, _ := ve.Props.Text(ical.PropUID)
	summary, _ := ve.Props.Text(ical.PropSummary)
	description, _ := ve.Props.Text(ical.PropDescription)
	location, _ := ve.Props.Text(ical.PropLocation)

	event := &calendar.Event{
		Id:          uid,
		ICalUID:     uid,
		Summary:     summary,
		Description: description,
		Location:    location,
	}

	startProp := ve.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("event %q has no start", uid)
	}
	start, err := ve.Props.DateTime(ical.PropDateTimeStart, time.UTC)
	if err != nil {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("invalid start for event %q: %w", uid, err)
	}
	allDay := startProp.ValueType() == ical.ValueDate

	end := start
	if ve.Props.Get(ical.PropDateTimeEnd) != nil {
		if end, err = ve.Props.DateTime(ical.PropDateTimeEnd, time.UTC); err != nil {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("invalid end for event %q: %w", uid, err)
		}
	} else if allDay {
		end = start.AddDate(0, 0, 1)
	}

	if allDay {
		event.Start = &calendar.EventDateTime{Date: start.Format(dateLayout)}
		event.End = &calendar.EventDateTime{Date: end.Format(dateLayout)}
	} else {
		event.Start = &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: startProp.Params.Get(ical.ParamTimezoneID)}
		event.End = &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: startProp.Params.Get(ical.ParamTimezoneID)}
	}

	for _, p := range ve.Props.Values(ical.PropAttendee) {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{
			Email:       strings.TrimPrefix(strings.ToLower(p.Value), "mailto:"),
			DisplayName: p.Params.Get(ical.ParamCommonName),
			Optional:    strings.EqualFold(p.Params.Get(paramRole), roleOptional),
		})
	}
	for _, name := range []string{ical.PropRecurrenceRule, ical.PropRecurrenceDates, ical.PropExceptionDates} {
		for _, p := range ve.Props.Values(name) {
			event.Recurrence = append(event.Recurrence, name+":"+p.Value)
		}
	}
	return event, start, end, nil
}

func eventDateTime(t time.Time, like *calendar.EventDateTime) *calendar.EventDateTime {
	if like != nil && like.Date != "" {
		return &calendar.EventDateTime{Date: t.Format(dateLayout)}
	}
	edt := &calendar.EventDateTime{DateTime: t.Format(time.RFC3339)}
	if like != nil {
		edt.TimeZone = like.TimeZone
	}
	return edt
}

// GenerateUID creates a new unique identifier for an event.
func GenerateUID() string {
	return uuid.New().String()
}
