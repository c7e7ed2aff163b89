package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDay(t *testing.T) {
	d, err := ParseDay(1)
	require.NoError(t, err)
	assert.Equal(t, Day1, d)

	d, err = ParseDay(2)
	require.NoError(t, err)
	assert.Equal(t, Day2, d)

	for _, n := range []int{0, 3, -1} {
		_, err := ParseDay(n)
		assert.Error(t, err, "day %d", n)
	}

	assert.Equal(t, "Day 2", Day2.String())
}

func TestGuestCheckInAccessors(t *testing.T) {
	g := Guest{ID: "A1", Name: "Alice"}
	assert.Nil(t, g.CheckIn(Day1))
	assert.Nil(t, g.CheckIn(Day2))

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	g.SetCheckIn(Day2, at)
	assert.Nil(t, g.CheckIn(Day1))
	require.NotNil(t, g.CheckIn(Day2))
	assert.True(t, at.Equal(*g.CheckIn(Day2)))

	// Unknown days are ignored.
	g.SetCheckIn(Day(7), at)
	assert.Nil(t, g.CheckIn(Day(7)))
	assert.Nil(t, g.CheckInDay1)
}

func TestGuestCloneDoesNotShareTimes(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	g := Guest{ID: "A1", Name: "Alice"}
	g.SetCheckIn(Day1, at)

	c := g.Clone()
	*c.CheckInDay1 = at.Add(time.Hour)

	assert.True(t, g.CheckInDay1.Equal(at))
}

func TestGuestJSONShape(t *testing.T) {
	g := Guest{ID: "A1", Name: "Alice", Category: DefaultCategory}
	data, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"A1","name":"Alice","category":"General","checkInDay1":null,"checkInDay2":null}`, string(data))

	at := time.Date(2026, 3, 14, 9, 30, 0, 123000000, time.UTC)
	g.SetCheckIn(Day1, at)
	data, err = json.Marshal(g)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"checkInDay1":"2026-03-14T09:30:00.123Z"`)
}

func TestScanLogValidate(t *testing.T) {
	valid := ScanLog{
		ID:        "log-1",
		GuestID:   "A1",
		GuestName: "Alice",
		Timestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Day:       Day1,
		Status:    StatusSuccess,
		Message:   "Check-in Successful",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*ScanLog)
	}{
		{"missing id", func(l *ScanLog) { l.ID = "" }},
		{"bad day", func(l *ScanLog) { l.Day = 3 }},
		{"bad status", func(l *ScanLog) { l.Status = "MAYBE" }},
		{"zero timestamp", func(l *ScanLog) { l.Timestamp = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := valid
			tt.mutate(&l)
			assert.Error(t, l.Validate())
		})
	}
}

func TestTimestampTruncatesToUTCMillis(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	in := time.Date(2026, 3, 14, 15, 0, 0, 123456789, loc)

	out := Timestamp(in)
	assert.Equal(t, time.UTC, out.Location())
	assert.Equal(t, 123000000, out.Nanosecond())
	assert.Equal(t, 9, out.Hour())
	assert.Equal(t, 30, out.Minute())
}

func TestNormalizeGuest(t *testing.T) {
	g, err := NormalizeGuest(Guest{ID: "  A1 ", Name: " Alice ", Email: " a@x.io "}, "")
	require.NoError(t, err)
	assert.Equal(t, "A1", g.ID)
	assert.Equal(t, "Alice", g.Name)
	assert.Equal(t, "a@x.io", g.Email)
	assert.Equal(t, DefaultCategory, g.Category)

	g, err = NormalizeGuest(Guest{ID: "B2", Name: "Bob", Category: "VIP", Phone: "0721 234 567"}, "RO")
	require.NoError(t, err)
	assert.Equal(t, "VIP", g.Category)
	assert.Equal(t, "+40721234567", g.Phone)
}

func TestNormalizeGuestRejects(t *testing.T) {
	tests := []struct {
		name  string
		guest Guest
	}{
		{"missing id", Guest{Name: "Alice"}},
		{"blank id", Guest{ID: "   ", Name: "Alice"}},
		{"missing name", Guest{ID: "A1"}},
		{"bad phone", Guest{ID: "A1", Name: "Alice", Phone: "123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeGuest(tt.guest, "RO")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidGuest))
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		input    string
		region   string
		expected string
	}{
		{"+40721234567", "RO", "+40721234567"},
		{"0721-234-567", "RO", "+40721234567"},
		{"+49 170 1234567", "RO", "+491701234567"},
		{"+49-170-1234567", "", "+491701234567"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizePhone(tt.input, tt.region)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := NormalizePhone("abcdefghij", "RO")
	assert.Error(t, err)
}
