// Package caldav books committed meetings into a CalDAV calendar.
package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"github.com/felixgeelhaar/meridian/internal/calendar/domain"
)

// PropXMeridian marks events created by the engine.
const PropXMeridian = "X-MERIDIAN-SESSION"

// Creator implements domain.EventCreator against a CalDAV server.
type Creator struct {
	baseURL      string
	username     string
	password     string
	calendarPath string
	httpClient   *http.Client
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.Mutex
	client *caldav.Client
}

// NewCreator creates a CalDAV event creator.
func NewCreator(baseURL, username, password string, logger *slog.Logger) *Creator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Creator{
		baseURL:    baseURL,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

// WithCalendarPath pins the target collection and skips discovery.
func (c *Creator) WithCalendarPath(path string) *Creator {
	if path != "" && !strings.HasSuffix(path, "/") {
		path += "/"
	}
	c.calendarPath = path
	return c
}

// CreateEvent writes the booking as a VEVENT and returns its UID.
func (c *Creator) CreateEvent(ctx context.Context, b domain.Booking) (string, error) {
	client, err := c.getClient()
	if err != nil {
		return "", err
	}
	calPath, err := c.findCalendarPath(ctx, client)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar: %w", err)
	}

	uid := EventUID(b.SessionID)
	if _, err := client.PutCalendarObject(ctx, eventPath(calPath, uid), toICalendar(b, uid, c.now())); err != nil {
		return "", fmt.Errorf("failed to put event: %w", err)
	}
	c.logger.InfoContext(ctx, "booked caldav event", "session_id", b.SessionID, "uid", uid)
	return uid, nil
}

// DeleteEvent removes a previously created event.
func (c *Creator) DeleteEvent(ctx context.Context, eventID string) error {
	client, err := c.getClient()
	if err != nil {
		return err
	}
	calPath, err := c.findCalendarPath(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to find calendar: %w", err)
	}
	return client.RemoveAll(ctx, eventPath(calPath, eventID))
}

// EventUID derives the iCalendar UID of a session's booking. Re-booking the
// same session overwrites the same object.
func EventUID(sessionID string) string {
	return domain.BookingEventID(sessionID)
}

func eventPath(calPath, uid string) string {
	return fmt.Sprintf("%s%s.ics", calPath, uid)
}

func (c *Creator) getClient() (*caldav.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(c.httpClient, c.username, c.password), c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	c.client = client
	return client, nil
}

func (c *Creator) findCalendarPath(ctx context.Context, client *caldav.Client) (string, error) {
	c.mu.Lock()
	path := c.calendarPath
	c.mu.Unlock()
	if path != "" {
		return path, nil
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal: %w", err)
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}
	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}
	if len(cals) == 0 {
		return "", fmt.Errorf("no calendars found")
	}

	c.mu.Lock()
	c.calendarPath = cals[0].Path
	c.mu.Unlock()
	return cals[0].Path, nil
}

func toICalendar(b domain.Booking, uid string, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Meridian//Scheduling//EN")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, b.Start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, b.End.UTC())
	title := b.Title
	if title == "" {
		title = "Meeting"
	}
	event.Props.SetText(ical.PropSummary, title)

	for _, email := range b.Attendees {
		attendee := ical.NewProp(ical.PropAttendee)
		attendee.Value = "mailto:" + email
		event.Props.Add(attendee)
	}

	marker := ical.NewProp(PropXMeridian)
	marker.Value = b.SessionID
	event.Props[PropXMeridian] = []ical.Prop{*marker}

	cal.Children = append(cal.Children, event.Component)
	return cal
}
