package caldav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/calendar/domain"
)

var booking = domain.Booking{
	SessionID: "s1",
	Title:     "Planning",
	Start:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	End:       time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC),
	Attendees: []string{"a@example.test", "b@example.test"},
}

func TestToICalendar(t *testing.T) {
	cal := toICalendar(booking, EventUID("s1"), booking.Start)

	require.Len(t, cal.Children, 1)
	event := cal.Children[0]
	assert.Equal(t, ical.CompEvent, event.Name)
	assert.Equal(t, "meridian-s1", event.Props.Get(ical.PropUID).Value)
	assert.Equal(t, "Planning", event.Props.Get(ical.PropSummary).Value)
	assert.Len(t, event.Props[ical.PropAttendee], 2)
	assert.Equal(t, "s1", event.Props.Get(PropXMeridian).Value)

	start, err := event.Props.DateTime(ical.PropDateTimeStart, time.UTC)
	require.NoError(t, err)
	assert.True(t, booking.Start.Equal(start))
}

func TestToICalendar_DefaultTitle(t *testing.T) {
	b := booking
	b.Title = ""
	cal := toICalendar(b, "uid", booking.Start)

	assert.Equal(t, "Meeting", cal.Children[0].Props.Get(ical.PropSummary).Value)
}

func TestWithCalendarPath(t *testing.T) {
	c := NewCreator("https://dav.example.test", "u", "p", nil).WithCalendarPath("/cal/work")

	assert.Equal(t, "/cal/work/", c.calendarPath)
	assert.Equal(t, "/cal/work/meridian-s1.ics", eventPath(c.calendarPath, EventUID("s1")))
}

type recordedRequest struct {
	method string
	path   string
	body   string
	user   string
}

func TestCreator_PutsAndDeletesEvent(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, _, _ := r.BasicAuth()
		mu.Lock()
		requests = append(requests, recordedRequest{method: r.Method, path: r.URL.Path, body: string(body), user: user})
		mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := NewCreator(srv.URL, "alice", "secret", nil).WithCalendarPath("/calendars/alice/work/")

	uid, err := c.CreateEvent(context.Background(), booking)
	require.NoError(t, err)
	assert.Equal(t, "meridian-s1", uid)

	require.NoError(t, c.DeleteEvent(context.Background(), uid))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 2)
	assert.Equal(t, http.MethodPut, requests[0].method)
	assert.Equal(t, "/calendars/alice/work/meridian-s1.ics", requests[0].path)
	assert.Contains(t, requests[0].body, "UID:meridian-s1")
	assert.Equal(t, "alice", requests[0].user)
	assert.Equal(t, http.MethodDelete, requests[1].method)
}
