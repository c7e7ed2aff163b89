package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventguard/internal/model"
)

func TestSequentialLogID(t *testing.T) {
	id, err := SequentialLogID("host", 3, "A1", model.Day1, DefaultStart)
	require.NoError(t, err)
	assert.Equal(t, "host-3", id)
}

func TestFixedCodes(t *testing.T) {
	next := FixedCodes("111111", "222222")
	assert.Equal(t, "111111", next())
	assert.Equal(t, "222222", next())
	assert.Equal(t, "222222", next(), "last code repeats")

	assert.Equal(t, "123456", FixedCodes()())
}
