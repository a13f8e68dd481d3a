package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Meeting describes the video consultation created for a confirmed appointment.
type Meeting struct {
	AppointmentID string
	Summary       string
	Description   string
	Start         time.Time
	End           time.Time
	Attendees     []string
}

var ErrDisabled = errors.New("calendar integration is disabled")

// Disabled is used when no calendar credentials are configured.
type Disabled struct{}

func (Disabled) Schedule(context.Context, Meeting) (string, error) {
	return "", ErrDisabled
}

// Google creates Calendar events with a Meet conference attached.
type Google struct {
	svc        *gcal.Service
	calendarID string
}

func NewGoogle(ctx context.Context, credentialsFile, calendarID string) (*Google, error) {
	svc, err := gcal.NewService(ctx, option.WithCredentialsFile(credentialsFile), option.WithScopes(gcal.CalendarEventsScope))
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Google{svc: svc, calendarID: calendarID}, nil
}

// Schedule inserts the event and returns its Meet link.
func (g *Google) Schedule(ctx context.Context, m Meeting) (string, error) {
	event := buildEvent(m)
	created, err := g.svc.Events.Insert(g.calendarID, event).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}
	if created.HangoutLink != "" {
		return created.HangoutLink, nil
	}
	if created.ConferenceData != nil {
		for _, ep := range created.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" && ep.Uri != "" {
				return ep.Uri, nil
			}
		}
	}
	return "", fmt.Errorf("calendar event %s has no meeting link", created.Id)
}

func buildEvent(m Meeting) *gcal.Event {
	attendees := make([]*gcal.EventAttendee, 0, len(m.Attendees))
	for _, email := range m.Attendees {
		if email == "" {
			continue
		}
		attendees = append(attendees, &gcal.EventAttendee{Email: email})
	}
	return &gcal.Event{
		Summary:     m.Summary,
		Description: m.Description,
		Start:       &gcal.EventDateTime{DateTime: m.Start.Format(time.RFC3339), TimeZone: m.Start.Location().String()},
		End:         &gcal.EventDateTime{DateTime: m.End.Format(time.RFC3339), TimeZone: m.End.Location().String()},
		Attendees:   attendees,
		ConferenceData: &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             m.AppointmentID,
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}
}
