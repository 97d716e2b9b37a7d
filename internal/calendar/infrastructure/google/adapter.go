// Package google implements the calendar adapter on the Google Calendar REST API.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/felixgeelhaar/therapia/internal/calendar/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	defaultBaseURL = "https://www.googleapis.com/calendar/v3"
	calendarScope  = "https://www.googleapis.com/auth/calendar"
)

// Credentials are the OAuth client and the practice's long-lived refresh token.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// TokenSource builds a refreshing token source for the Google endpoint.
func (c Credentials) TokenSource(ctx context.Context) oauth2.TokenSource {
	cfg := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     endpoints.Google,
		Scopes:       []string{calendarScope},
	}
	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: c.RefreshToken})
}

// Adapter talks to one Google calendar.
type Adapter struct {
	client     *http.Client
	logger     *slog.Logger
	baseURL    string
	calendarID string
}

// NewAdapter creates a Google Calendar adapter.
func NewAdapter(source oauth2.TokenSource, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &oauthTransport{
				base:   http.DefaultTransport,
				source: source,
			},
		},
		logger:     logger,
		baseURL:    defaultBaseURL,
		calendarID: "primary",
	}
}

// WithBaseURL points the adapter at another API root.
func (a *Adapter) WithBaseURL(baseURL string) *Adapter {
	if baseURL != "" {
		a.baseURL = baseURL
	}
	return a
}

// WithCalendarID sets the calendar to read and write.
func (a *Adapter) WithCalendarID(calendarID string) *Adapter {
	if calendarID != "" {
		a.calendarID = calendarID
	}
	return a
}

type timeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// IsFree queries freeBusy for the slot's range.
func (a *Adapter) IsFree(ctx context.Context, slot sharedDomain.TimeSlot) (bool, error) {
	body := map[string]any{
		"timeMin": slot.Start().Format(time.RFC3339),
		"timeMax": slot.End().Format(time.RFC3339),
		"items":   []map[string]string{{"id": a.calendarID}},
	}
	var payload struct {
		Calendars map[string]struct {
			Busy   []timeRange `json:"busy"`
			Errors []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"calendars"`
	}
	if err := a.doJSON(ctx, http.MethodPost, a.baseURL+"/freeBusy", body, &payload); err != nil {
		return false, err
	}

	cal, ok := payload.Calendars[a.calendarID]
	if !ok {
		return false, domain.Permanent(fmt.Errorf("freeBusy response missing calendar %q", a.calendarID))
	}
	if len(cal.Errors) > 0 {
		return false, domain.Permanent(fmt.Errorf("freeBusy calendar error: %s", cal.Errors[0].Reason))
	}
	for _, busy := range cal.Busy {
		start, err1 := time.Parse(time.RFC3339, busy.Start)
		end, err2 := time.Parse(time.RFC3339, busy.End)
		if err1 != nil || err2 != nil {
			return false, domain.Permanent(fmt.Errorf("malformed busy period %v", busy))
		}
		if start.Before(slot.End()) && end.After(slot.Start()) {
			return false, nil
		}
	}
	return true, nil
}

type googleEvent struct {
	ID                 string `json:"id,omitempty"`
	Summary            string `json:"summary"`
	Description        string `json:"description,omitempty"`
	ExtendedProperties struct {
		Private map[string]string `json:"private,omitempty"`
	} `json:"extendedProperties,omitempty"`
	Attendees []attendee `json:"attendees,omitempty"`
	Start     eventTime  `json:"start"`
	End       eventTime  `json:"end"`
}

type attendee struct {
	Email string `json:"email"`
}

type eventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

func toGoogleEvent(req domain.EventRequest) googleEvent {
	event := googleEvent{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       eventTime{DateTime: req.Slot.Start().Format(time.RFC3339), TimeZone: req.Slot.TZ()},
		End:         eventTime{DateTime: req.Slot.End().Format(time.RFC3339), TimeZone: req.Slot.TZ()},
	}
	event.ExtendedProperties.Private = map[string]string{
		domain.ManagedMarker: req.AppointmentID.String(),
	}
	if req.Attendee != "" {
		event.Attendees = []attendee{{Email: req.Attendee}}
	}
	return event
}

// CreateEvent inserts an event tagged with the appointment ID.
func (a *Adapter) CreateEvent(ctx context.Context, req domain.EventRequest) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := a.doJSON(ctx, http.MethodPost, a.eventsURL(), toGoogleEvent(req), &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", domain.Permanent(fmt.Errorf("insert response missing event id"))
	}
	a.logger.Debug("google event created", "event_id", created.ID, "appointment_id", req.AppointmentID)
	return created.ID, nil
}

// DeleteEvent removes an event; a missing event is not an error.
func (a *Adapter) DeleteEvent(ctx context.Context, externalEventID string) error {
	err := a.doJSON(ctx, http.MethodDelete, a.eventsURL()+"/"+url.PathEscape(externalEventID), nil, nil)
	if statusOf(err) == http.StatusNotFound || statusOf(err) == http.StatusGone {
		return nil
	}
	return err
}

// ListEvents returns timed and all-day events intersecting [from, to).
func (a *Adapter) ListEvents(ctx context.Context, from, to time.Time) ([]domain.ExternalEvent, error) {
	query := url.Values{}
	query.Set("timeMin", from.UTC().Format(time.RFC3339))
	query.Set("timeMax", to.UTC().Format(time.RFC3339))
	query.Set("singleEvents", "true")
	query.Set("orderBy", "startTime")

	var payload struct {
		Items []struct {
			googleEvent
			Status       string `json:"status"`
			Transparency string `json:"transparency"`
		} `json:"items"`
	}
	if err := a.doJSON(ctx, http.MethodGet, a.eventsURL()+"?"+query.Encode(), nil, &payload); err != nil {
		return nil, err
	}

	events := make([]domain.ExternalEvent, 0, len(payload.Items))
	for _, item := range payload.Items {
		if item.Status == "cancelled" || item.Transparency == "transparent" {
			continue
		}
		event := domain.ExternalEvent{ID: item.ID, Summary: item.Summary}
		if _, ok := item.ExtendedProperties.Private[domain.ManagedMarker]; ok {
			event.Managed = true
		}

		switch {
		case item.Start.DateTime != "" && item.End.DateTime != "":
			start, err := time.Parse(time.RFC3339, item.Start.DateTime)
			if err != nil {
				continue
			}
			end, err := time.Parse(time.RFC3339, item.End.DateTime)
			if err != nil {
				continue
			}
			event.Start, event.End = start.UTC(), end.UTC()
		case item.Start.Date != "" && item.End.Date != "":
			start, err := time.Parse("2006-01-02", item.Start.Date)
			if err != nil {
				continue
			}
			end, err := time.Parse("2006-01-02", item.End.Date)
			if err != nil {
				continue
			}
			event.Start, event.End, event.AllDay = start, end, true
		default:
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (a *Adapter) eventsURL() string {
	return fmt.Sprintf("%s/calendars/%s/events", a.baseURL, url.PathEscape(a.calendarID))
}

// statusError keeps the HTTP status of a failed call.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("google calendar: status=%d body=%s", e.status, e.body)
}

func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return 0
}

func (a *Adapter) doJSON(ctx context.Context, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return domain.Permanent(err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return domain.Permanent(err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return domain.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		se := &statusError{status: resp.StatusCode, body: string(raw)}
		if domain.IsTransientStatus(resp.StatusCode) {
			return domain.Transient(se)
		}
		return domain.Permanent(se)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Permanent(fmt.Errorf("decode google response: %w", err))
	}
	return nil
}

type oauthTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

func (t *oauthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token()
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return t.base.RoundTrip(req)
}

var (
	_ domain.Adapter  = (*Adapter)(nil)
	_ domain.Importer = (*Adapter)(nil)
)
