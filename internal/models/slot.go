package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Slot is a bookable (date, time range) unit.
type Slot struct {
	BaseModel
	Date      time.Time `gorm:"not null;uniqueIndex:idx_slot_date_label" json:"date"`
	TimeLabel string    `gorm:"size:11;not null;uniqueIndex:idx_slot_date_label" json:"timeSlot"`
	IsBooked  bool      `gorm:"not null;default:false;index" json:"isBooked"`
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return DateOnly(t), nil
}

// ParseTimeLabel splits "HH:MM-HH:MM" into start and end offsets from midnight.
func ParseTimeLabel(label string) (start, end time.Duration, err error) {
	parts := strings.Split(strings.TrimSpace(label), "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time slot %q must look like HH:MM-HH:MM", label)
	}
	start, err = clockOffset(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err = clockOffset(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if end <= start {
		return 0, 0, fmt.Errorf("time slot %q must end after it starts", label)
	}
	return start, end, nil
}

func clockOffset(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Window returns the slot's start and end instants in the given location.
func (s *Slot) Window(loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, end, err := ParseTimeLabel(s.TimeLabel)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	day := time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(), 0, 0, 0, 0, loc)
	return day.Add(start), day.Add(end), nil
}
