package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventguard/internal/model"
)

func TestScanRoundTrip(t *testing.T) {
	l := model.ScanLog{
		ID: "l1", GuestID: "A1", GuestName: "Alice",
		Timestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Day:       model.Day1, Status: model.StatusSuccess, Message: "Check-in Successful",
	}
	data, err := EncodeScan(l)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"NEW_SCAN"`)

	msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeNewScan, msg.Type)
	require.NotNil(t, msg.Log)
	assert.Equal(t, "l1", msg.Log.ID)
	assert.True(t, l.Timestamp.Equal(msg.Log.Timestamp))
	assert.Nil(t, msg.Guest)
	assert.Nil(t, msg.Snapshot)
}

func TestGuestWireShape(t *testing.T) {
	data, err := EncodeGuest(model.Guest{ID: "A1", Name: "Alice", Category: "General"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"NEW_GUEST","payload":{"id":"A1","name":"Alice","category":"General","checkInDay1":null,"checkInDay2":null}}`, string(data))
}

func TestInitEmptyArrays(t *testing.T) {
	data, err := EncodeInit(model.Snapshot{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"INIT","payload":{"guests":[],"scanLogs":[]}}`, string(data))

	for _, raw := range []string{
		`{"type":"INIT","payload":{}}`,
		`{"type":"INIT","payload":{"guests":null}}`,
		`{"type":"INIT"}`,
	} {
		msg, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		require.NotNil(t, msg.Snapshot)
		assert.NotNil(t, msg.Snapshot.Guests, raw)
		assert.NotNil(t, msg.Snapshot.ScanLogs, raw)
		assert.Empty(t, msg.Snapshot.Guests)
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"PING","payload":{}}`))
	assert.True(t, errors.Is(err, ErrUnknownType))

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"type":"NEW_SCAN"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"type":"NEW_GUEST","payload":[1,2]}`))
	assert.Error(t, err)
}

func TestSessionCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := NewSessionCode()
		_, err := ParseSessionCode(code)
		require.NoError(t, err, code)
	}

	for _, bad := range []string{"", "12345", "1234567", "012345", "12a456", " 12345"} {
		_, err := ParseSessionCode(bad)
		assert.True(t, errors.Is(err, ErrInvalidCode), bad)
	}

	assert.Equal(t, "eventguard-123456", HostAddress("eventguard", "123456"))
}
