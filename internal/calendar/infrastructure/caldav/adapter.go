// Package caldav implements the calendar adapter over CalDAV (Apple Calendar,
// Fastmail, Nextcloud).
package caldav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/felixgeelhaar/therapia/internal/calendar/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// Common CalDAV server URLs.
const (
	AppleCalDAVURL    = "https://caldav.icloud.com"
	FastmailCalDAVURL = "https://caldav.fastmail.com"
)

// PropXTherapia marks events created by this system.
const PropXTherapia = "X-THERAPIA"

// Adapter reads and writes one CalDAV calendar.
type Adapter struct {
	baseURL      string
	username     string
	password     string
	calendarPath string
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.Mutex
	client *caldav.Client
}

// NewAdapter creates a CalDAV adapter. password is an app-specific password
// for Apple.
func NewAdapter(baseURL, username, password string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		baseURL:  baseURL,
		username: username,
		password: password,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithCalendarPath pins the calendar collection instead of discovering it.
func (a *Adapter) WithCalendarPath(path string) *Adapter {
	if path != "" && !strings.HasSuffix(path, "/") {
		path += "/"
	}
	a.calendarPath = path
	return a
}

// IsFree reports whether no opaque event intersects slot.
func (a *Adapter) IsFree(ctx context.Context, slot sharedDomain.TimeSlot) (bool, error) {
	events, err := a.ListEvents(ctx, slot.Start(), slot.End())
	if err != nil {
		return false, err
	}
	for _, e := range events {
		if e.Start.Before(slot.End()) && e.End.After(slot.Start()) {
			return false, nil
		}
	}
	return true, nil
}

// CreateEvent PUTs an .ics object named after the appointment and returns its path.
func (a *Adapter) CreateEvent(ctx context.Context, req domain.EventRequest) (string, error) {
	client, calPath, err := a.session(ctx)
	if err != nil {
		return "", err
	}
	eventPath := calPath + req.AppointmentID.String() + ".ics"
	if _, err := client.PutCalendarObject(ctx, eventPath, toICalendar(req, a.now())); err != nil {
		return "", classify(err)
	}
	a.logger.Debug("caldav event created", "path", eventPath, "appointment_id", req.AppointmentID)
	return eventPath, nil
}

// DeleteEvent removes an event by path; a missing event is not an error.
func (a *Adapter) DeleteEvent(ctx context.Context, externalEventID string) error {
	client, _, err := a.session(ctx)
	if err != nil {
		return err
	}
	err = client.RemoveAll(ctx, externalEventID)
	if statusOf(err) == http.StatusNotFound {
		return nil
	}
	return classify(err)
}

// ListEvents queries VEVENTs intersecting [from, to).
func (a *Adapter) ListEvents(ctx context.Context, from, to time.Time) ([]domain.ExternalEvent, error) {
	client, calPath, err := a.session(ctx)
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Props: []string{"VERSION"},
			Comps: []caldav.CalendarCompRequest{{
				Name:  "VEVENT",
				Props: []string{"SUMMARY", "DTSTART", "DTEND", "DURATION", "UID", "STATUS", "TRANSP", PropXTherapia},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: from,
				End:   to,
			}},
		},
	}
	objects, err := client.QueryCalendar(ctx, calPath, query)
	if err != nil {
		return nil, classify(err)
	}

	events := make([]domain.ExternalEvent, 0, len(objects))
	for i := range objects {
		if event, ok := parseCalendarObject(&objects[i]); ok {
			events = append(events, event)
		}
	}
	return events, nil
}

func (a *Adapter) session(ctx context.Context) (*caldav.Client, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client == nil {
		httpClient := &http.Client{
			Timeout:   30 * time.Second,
			Transport: &statusTransport{base: http.DefaultTransport},
		}
		client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(httpClient, a.username, a.password), a.baseURL)
		if err != nil {
			return nil, "", domain.Permanent(fmt.Errorf("create caldav client: %w", err))
		}
		a.client = client
	}
	if a.calendarPath == "" {
		path, err := a.discoverCalendar(ctx)
		if err != nil {
			return nil, "", err
		}
		a.calendarPath = path
	}
	return a.client, a.calendarPath, nil
}

func (a *Adapter) discoverCalendar(ctx context.Context) (string, error) {
	principal, err := a.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", classify(fmt.Errorf("find principal: %w", err))
	}
	homeSet, err := a.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", classify(fmt.Errorf("find calendar home set: %w", err))
	}
	cals, err := a.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", classify(fmt.Errorf("find calendars: %w", err))
	}
	if len(cals) == 0 {
		return "", domain.Permanent(errors.New("no calendars found"))
	}
	return cals[0].Path, nil
}

func toICalendar(req domain.EventRequest, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Therapia//Booking//EN")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, req.AppointmentID.String())
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, req.Slot.Start())
	event.Props.SetDateTime(ical.PropDateTimeEnd, req.Slot.End())
	event.Props.SetText(ical.PropSummary, req.Summary)
	if req.Description != "" {
		event.Props.SetText(ical.PropDescription, req.Description)
	}
	if req.Attendee != "" {
		attendee := ical.NewProp(ical.PropAttendee)
		attendee.Value = "mailto:" + req.Attendee
		event.Props.Add(attendee)
	}

	marker := ical.NewProp(PropXTherapia)
	marker.Value = "1"
	event.Props.Set(marker)

	cal.Children = append(cal.Children, event.Component)
	return cal
}

func parseCalendarObject(obj *caldav.CalendarObject) (domain.ExternalEvent, bool) {
	if obj == nil || obj.Data == nil {
		return domain.ExternalEvent{}, false
	}
	for _, child := range obj.Data.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		if prop := child.Props.Get(ical.PropStatus); prop != nil && strings.EqualFold(prop.Value, "CANCELLED") {
			return domain.ExternalEvent{}, false
		}
		if prop := child.Props.Get(ical.PropTransparency); prop != nil && strings.EqualFold(prop.Value, "TRANSPARENT") {
			return domain.ExternalEvent{}, false
		}

		event := domain.ExternalEvent{ID: obj.Path}
		if prop := child.Props.Get(ical.PropSummary); prop != nil {
			event.Summary = prop.Value
		}
		if prop := child.Props.Get(PropXTherapia); prop != nil && prop.Value == "1" {
			event.Managed = true
		}

		icalEvent := &ical.Event{Component: child}
		start, err := icalEvent.DateTimeStart(time.UTC)
		if err != nil {
			return domain.ExternalEvent{}, false
		}
		end, err := icalEvent.DateTimeEnd(time.UTC)
		if err != nil || !end.After(start) {
			return domain.ExternalEvent{}, false
		}
		event.Start, event.End = start.UTC(), end.UTC()
		if prop := child.Props.Get(ical.PropDateTimeStart); prop != nil && prop.ValueType() == ical.ValueDate {
			event.AllDay = true
		}
		return event, true
	}
	return domain.ExternalEvent{}, false
}

// statusError carries an HTTP status the transport turned into an error.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("caldav: status=%d", e.status)
}

// statusTransport surfaces retryable statuses, and 404 on DELETE, as typed
// errors so they can be classified.
type statusTransport struct {
	base http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if domain.IsTransientStatus(resp.StatusCode) ||
		(req.Method == http.MethodDelete && resp.StatusCode == http.StatusNotFound) {
		_ = resp.Body.Close()
		return nil, &statusError{status: resp.StatusCode}
	}
	return resp, nil
}

func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return 0
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if status := statusOf(err); status != 0 {
		if domain.IsTransientStatus(status) {
			return domain.Transient(err)
		}
		return domain.Permanent(err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return domain.Transient(err)
	}
	return domain.Permanent(err)
}

var (
	_ domain.Adapter  = (*Adapter)(nil)
	_ domain.Importer = (*Adapter)(nil)
)
