package slots

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotUnmarshalAcceptsSlotIDAlias(t *testing.T) {
	var s Slot
	require.NoError(t, json.Unmarshal([]byte(`{"slot_id":42,"start_time":"2024-06-01T09:00:00Z","end_time":"2024-06-01T09:30:00Z","doctor_id":7,"slot_type":"checkup"}`), &s))
	assert.Equal(t, int64(42), s.ID)
	assert.Equal(t, int64(7), s.DoctorID)
	assert.Equal(t, "checkup", s.SlotType)

	require.NoError(t, json.Unmarshal([]byte(`{"id":9,"slot_id":42}`), &s))
	assert.Equal(t, int64(9), s.ID)
}

func TestSlotInterval(t *testing.T) {
	s := Slot{ID: 42, StartTime: "2024-06-01T09:00:00Z", EndTime: "2024-06-01T09:30:00Z"}
	start, end, err := s.Interval(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 30*time.Minute, end.Sub(start))
}

func TestSlotIntervalRejectsInverted(t *testing.T) {
	s := Slot{ID: 1, StartTime: "2024-06-01T10:00:00Z", EndTime: "2024-06-01T09:30:00Z"}
	_, _, err := s.Interval(time.UTC)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	s.EndTime = s.StartTime
	_, _, err = s.Interval(time.UTC)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestParseTimeNaiveUsesLocation(t *testing.T) {
	loc := time.FixedZone("clinic", -5*3600)
	got, err := ParseTime("2024-06-01T09:00:00", loc)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, loc, got.Location())

	got, err = ParseTime("2024-06-01T09:00:00.123456", nil)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.Location())

	_, err = ParseTime("not a time", time.UTC)
	assert.Error(t, err)
	_, err = ParseTime("", time.UTC)
	assert.Error(t, err)
}
