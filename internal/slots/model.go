// Package slots holds the bookable time slot type shared by the API client and
// the calendar.
package slots

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInterval is returned when a slot does not end after it starts.
var ErrInvalidInterval = errors.New("slots: start time must be before end time")

// Slot is a bookable interval from the remote inventory. The kiosk never
// edits a slot; it only asks the API to book or delete it.
type Slot struct {
	ID        int64  `json:"id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	DoctorID  int64  `json:"doctor_id"`
	SlotType  string `json:"slot_type"`
}

// UnmarshalJSON accepts both "id" and "slot_id" for the slot key.
func (s *Slot) UnmarshalJSON(data []byte) error {
	type alias Slot
	var raw struct {
		alias
		SlotID *int64 `json:"slot_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Slot(raw.alias)
	if s.ID == 0 && raw.SlotID != nil {
		s.ID = *raw.SlotID
	}
	return nil
}

// Interval parses the raw start and end times. Timestamps without a zone are
// read in loc.
func (s Slot) Interval(loc *time.Location) (time.Time, time.Time, error) {
	start, err := ParseTime(s.StartTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("slots: slot %d start: %w", s.ID, err)
	}
	end, err := ParseTime(s.EndTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("slots: slot %d end: %w", s.ID, err)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("slot %d: %w", s.ID, ErrInvalidInterval)
	}
	return start, end, nil
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// ParseTime reads an ISO-8601 timestamp as the clinic API emits it.
func ParseTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
