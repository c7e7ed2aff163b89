package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertLog_Recent(t *testing.T) {
	l := NewAlertLog(3)
	assert.Empty(t, l.Recent(0))

	for _, msg := range []string{"one", "two", "three", "four"} {
		l.Notify(Alert{Level: AlertInfo, Message: msg})
	}

	var got []string
	for _, a := range l.Recent(0) {
		got = append(got, a.Message)
	}
	assert.Equal(t, []string{"four", "three", "two"}, got)

	recent := l.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "four", recent[0].Message)
}
