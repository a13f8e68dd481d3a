package calendar

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBuildEventRequestsMeetConference(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	start := time.Date(2025, 1, 10, 10, 0, 0, 0, loc)

	ev := buildEvent(Meeting{
		AppointmentID: "appt-1",
		Summary:       "Consultation",
		Start:         start,
		End:           start.Add(30 * time.Minute),
		Attendees:     []string{"client@example.com", ""},
	})

	if ev.ConferenceData == nil || ev.ConferenceData.CreateRequest == nil {
		t.Fatalf("expected a conference create request")
	}
	if ev.ConferenceData.CreateRequest.RequestId != "appt-1" {
		t.Fatalf("expected request id to be the appointment id, got %q", ev.ConferenceData.CreateRequest.RequestId)
	}
	if ev.ConferenceData.CreateRequest.ConferenceSolutionKey.Type != "hangoutsMeet" {
		t.Fatalf("unexpected conference type %q", ev.ConferenceData.CreateRequest.ConferenceSolutionKey.Type)
	}
	if ev.Start.DateTime != "2025-01-10T10:00:00+05:30" {
		t.Fatalf("unexpected start %q", ev.Start.DateTime)
	}
	if len(ev.Attendees) != 1 {
		t.Fatalf("expected empty attendee to be dropped, got %d", len(ev.Attendees))
	}
}

func TestDisabledScheduler(t *testing.T) {
	link, err := Disabled{}.Schedule(context.Background(), Meeting{})
	if !errors.Is(err, ErrDisabled) || link != "" {
		t.Fatalf("expected ErrDisabled, got %q %v", link, err)
	}
}
