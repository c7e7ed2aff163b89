package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogIDDeterminism(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	id1, err := LogID("node-a", 1, "A1", Day1, ts)
	require.NoError(t, err)
	id2, err := LogID("node-a", 1, "A1", Day1, ts)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestLogIDChangesWithInput(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	base, err := LogID("node-a", 1, "A1", Day1, ts)
	require.NoError(t, err)

	others := []struct {
		name   string
		origin string
		seq    int64
		guest  string
		day    Day
		ts     time.Time
	}{
		{"origin", "node-b", 1, "A1", Day1, ts},
		{"seq", "node-a", 2, "A1", Day1, ts},
		{"guest", "node-a", 1, "B2", Day1, ts},
		{"day", "node-a", 1, "A1", Day2, ts},
		{"timestamp", "node-a", 1, "A1", Day1, ts.Add(time.Millisecond)},
	}
	for _, o := range others {
		t.Run(o.name, func(t *testing.T) {
			id, err := LogID(o.origin, o.seq, o.guest, o.day, o.ts)
			require.NoError(t, err)
			assert.NotEqual(t, base, id)
		})
	}
}

func TestLogIDIgnoresSubMillisecondAndZone(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 0, 0, 5000000, time.UTC)
	local := ts.Add(400 * time.Microsecond).In(time.FixedZone("X", 3600))

	a, err := LogID("n", 1, "A1", Day1, ts)
	require.NoError(t, err)
	b, err := LogID("n", 1, "A1", Day1, local)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLogIDNormalizesUnicode(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	nfc := "caf\u00e9"
	nfd := "cafe\u0301"

	a, err := LogID("n", 1, nfc, Day1, ts)
	require.NoError(t, err)
	b, err := LogID("n", 1, nfd, Day1, ts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMarshalCanonical(t *testing.T) {
	out, err := marshalCanonical(map[string]any{
		"zebra": 1,
		"alpha": "<b>&",
		"beta":  int64(-3),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"<b>&","beta":-3,"zebra":1}`, string(out))

	_, err = marshalCanonical(map[string]any{"f": 1.5})
	assert.Error(t, err)
}
