package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	cases := map[string]TimeOfDay{
		"09:00": NewTimeOfDay(9, 0),
		"9:05":  NewTimeOfDay(9, 5),
		"23:59": NewTimeOfDay(23, 59),
		"00:00": 0,
	}
	for in, want := range cases {
		got, err := ParseTimeOfDay(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "24:00", "12:60", "12", "ab:cd", "12:5", "-1:00"} {
		_, err := ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, ErrInvalidTimeOfDay, bad)
	}
}

func TestTimeOfDay_StringAndDuration(t *testing.T) {
	tod := NewTimeOfDay(20, 7)
	assert.Equal(t, "20:07", tod.String())
	assert.Equal(t, 20*time.Hour+7*time.Minute, tod.Duration())
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2025-03-09")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09", got)

	_, err = ParseDate("09.03.2025")
	assert.Error(t, err)
}
