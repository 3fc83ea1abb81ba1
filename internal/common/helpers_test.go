package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResetTime(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{"00:00", 0, 0, false},
		{"04:30", 4, 30, false},
		{"23:59", 23, 59, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
		{"7", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			h, m, err := ParseResetTime(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidResetTime)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hour, h)
			assert.Equal(t, tt.minute, m)
		})
	}
}

func TestDayStringHonoursCustomBoundary(t *testing.T) {
	loc := time.FixedZone("KST", 9*60*60)
	beforeBoundary := time.Date(2026, 3, 6, 3, 59, 0, 0, loc)
	afterBoundary := time.Date(2026, 3, 6, 4, 0, 0, 0, loc)

	assert.Equal(t, "2026-03-05", DayString(beforeBoundary, "04:00"))
	assert.Equal(t, "2026-03-06", DayString(afterBoundary, "04:00"))
	assert.Equal(t, "2026-03-06", DayString(beforeBoundary, "00:00"))
	assert.Equal(t, "2026-03-06", DayString(beforeBoundary, "garbage"))
}

func TestMondayMidnight(t *testing.T) {
	loc := time.UTC
	// 2026-03-04 - среда
	wed := time.Date(2026, 3, 4, 15, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, loc), LastMondayMidnight(wed))
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, loc), NextMondayMidnight(wed))

	sun := time.Date(2026, 3, 8, 23, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, loc), LastMondayMidnight(sun))

	mon := time.Date(2026, 3, 9, 0, 0, 0, 0, loc)
	assert.Equal(t, mon, LastMondayMidnight(mon))
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, loc), NextMondayMidnight(mon))
}

func TestMillisRoundTripKeepsZero(t *testing.T) {
	assert.Equal(t, int64(0), ToMillis(time.Time{}))
	assert.True(t, FromMillis(0).IsZero())

	now := time.UnixMilli(1767225600000)
	assert.True(t, now.Equal(FromMillis(ToMillis(now))))
}

func TestFormatPointsAmount(t *testing.T) {
	assert.Equal(t, "+10 WP", FormatPointsAmount(10))
	assert.Equal(t, "-6 WP", FormatPointsAmount(-6))
	assert.Equal(t, "15 WP", FormatPoints(15))
}
