package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kathmandu(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kathmandu")
	require.NoError(t, err)
	return loc
}

func baseConfig(loc *time.Location) Config {
	return Config{
		StartDate:        time.Date(2025, 3, 1, 0, 0, 0, 0, loc),
		EndDate:          time.Date(2025, 3, 31, 0, 0, 0, 0, loc),
		ExcludedWeekdays: []int{6},
		DailyTimeRanges: []TimeRange{
			{Start: "09:00", End: "12:00"},
			{Start: "14:00", End: "17:00"},
		},
		SlotDuration: 30 * time.Minute,
		Location:     loc,
	}
}

func TestCalculateDefaultRanges(t *testing.T) {
	loc := kathmandu(t)
	cfg := baseConfig(loc)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, loc) // Monday
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, loc)

	slots, err := Calculate(cfg, date, nil, now)
	require.NoError(t, err)
	require.Len(t, slots, 12)

	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, loc), slots[0].Start)
	assert.Equal(t, "09:00 AM", slots[0].Label)
	assert.Equal(t, "04:30 PM", slots[11].Label)
	assert.Equal(t, time.Date(2025, 3, 10, 17, 0, 0, 0, loc), slots[11].End)
	for _, s := range slots {
		assert.True(t, s.Available, "slot %s should be available", s.Label)
	}
}

func TestCalculateMarksBookedAndPast(t *testing.T) {
	loc := kathmandu(t)
	cfg := baseConfig(loc)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, loc)
	now := time.Date(2025, 3, 10, 9, 57, 0, 0, loc)
	booked := []time.Time{
		time.Date(2025, 3, 10, 14, 30, 0, 0, loc).UTC(),
	}

	slots, err := Calculate(cfg, date, booked, now)
	require.NoError(t, err)

	byLabel := map[string]Slot{}
	for _, s := range slots {
		byLabel[s.Label] = s
	}
	assert.True(t, byLabel["09:30 AM"].Past)
	// 10:00 is within the five minute buffer.
	assert.True(t, byLabel["10:00 AM"].Past)
	assert.False(t, byLabel["10:00 AM"].Available)
	assert.True(t, byLabel["10:30 AM"].Available)
	assert.True(t, byLabel["02:30 PM"].Booked)
	assert.False(t, byLabel["02:30 PM"].Available)
}

func TestCalculateOutsideRange(t *testing.T) {
	loc := kathmandu(t)
	cfg := baseConfig(loc)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, loc)

	cases := map[string]time.Time{
		"before start":     time.Date(2025, 2, 28, 0, 0, 0, 0, loc),
		"after end":        time.Date(2025, 4, 1, 0, 0, 0, 0, loc),
		"excluded weekday": time.Date(2025, 3, 15, 0, 0, 0, 0, loc), // Saturday
	}
	for name, date := range cases {
		t.Run(name, func(t *testing.T) {
			slots, err := Calculate(cfg, date, nil, now)
			require.NoError(t, err)
			assert.Empty(t, slots)
		})
	}
}

func TestCalculateRangeBoundaryInclusive(t *testing.T) {
	loc := kathmandu(t)
	cfg := baseConfig(loc)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, loc)

	// 23:30 UTC on Mar 30 is already Mar 31 in Kathmandu.
	date := time.Date(2025, 3, 30, 23, 30, 0, 0, time.UTC)
	slots, err := Calculate(cfg, date, nil, now)
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, 31, slots[0].Start.Day())
}

func TestCalculatePartialTrailingSlotDropped(t *testing.T) {
	cfg := Config{
		DailyTimeRanges: []TimeRange{{Start: "09:00", End: "10:10"}},
		SlotDuration:    20 * time.Minute,
	}
	slots, err := Calculate(cfg, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), nil, time.Time{})
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, "09:40 AM", slots[2].Label)
}

func TestCalculateOverlappingRangesDeduplicated(t *testing.T) {
	cfg := Config{
		DailyTimeRanges: []TimeRange{
			{Start: "10:00", End: "11:00"},
			{Start: "09:00", End: "10:30"},
		},
		SlotDuration: 30 * time.Minute,
	}
	slots, err := Calculate(cfg, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), nil, time.Time{})
	require.NoError(t, err)

	labels := make([]string, 0, len(slots))
	for _, s := range slots {
		labels = append(labels, s.Label)
	}
	assert.Equal(t, []string{"09:00 AM", "09:30 AM", "10:00 AM", "10:30 AM"}, labels)
}

func TestCalculateInvalidConfig(t *testing.T) {
	date := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{
			name: "bad clock",
			cfg:  Config{DailyTimeRanges: []TimeRange{{Start: "9:00", End: "10:00"}}, SlotDuration: time.Hour},
			want: ErrInvalidClock,
		},
		{
			name: "start after end",
			cfg:  Config{DailyTimeRanges: []TimeRange{{Start: "12:00", End: "10:00"}}, SlotDuration: time.Hour},
			want: ErrInvalidRange,
		},
		{
			name: "zero duration",
			cfg:  Config{DailyTimeRanges: []TimeRange{{Start: "09:00", End: "10:00"}}},
			want: ErrInvalidDuration,
		},
		{
			name: "weekday out of range",
			cfg:  Config{ExcludedWeekdays: []int{7}, SlotDuration: time.Hour},
			want: ErrInvalidWeekday,
		},
		{
			name: "inverted dates",
			cfg: Config{
				StartDate:    time.Date(2030, 2, 1, 0, 0, 0, 0, time.UTC),
				EndDate:      time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
				SlotDuration: time.Hour,
			},
			want: ErrInvalidDates,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Calculate(tc.cfg, date, nil, time.Time{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestContains(t *testing.T) {
	loc := kathmandu(t)
	cfg := baseConfig(loc)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, loc)

	ok, err := Contains(cfg, time.Date(2025, 3, 10, 9, 30, 0, 0, loc), nil, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Contains(cfg, time.Date(2025, 3, 10, 9, 15, 0, 0, loc), nil, now)
	require.NoError(t, err)
	assert.False(t, ok, "off-grid start must not be bookable")

	ok, err = Contains(cfg, time.Date(2025, 3, 10, 9, 30, 0, 0, loc), []time.Time{time.Date(2025, 3, 10, 9, 30, 0, 0, loc)}, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAvailableDates(t *testing.T) {
	loc := kathmandu(t)
	cfg := baseConfig(loc)
	cfg.ExcludedWeekdays = []int{0, 6}

	dates, err := AvailableDates(cfg,
		time.Date(2025, 2, 25, 10, 0, 0, 0, loc),
		time.Date(2025, 3, 9, 0, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-03", "2025-03-04", "2025-03-05", "2025-03-06", "2025-03-07"}, dates)
}

func TestAvailableDatesClampsToEnd(t *testing.T) {
	loc := kathmandu(t)
	cfg := baseConfig(loc)
	cfg.ExcludedWeekdays = nil

	dates, err := AvailableDates(cfg,
		time.Date(2025, 3, 30, 0, 0, 0, 0, loc),
		time.Date(2025, 5, 1, 0, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-30", "2025-03-31"}, dates)
}

func TestParseClock(t *testing.T) {
	got, err := ParseClock("14:05")
	require.NoError(t, err)
	assert.Equal(t, 14*60+5, got)

	for _, bad := range []string{"", "24:00", "12:60", "1200", "ab:cd"} {
		if _, err := ParseClock(bad); !errors.Is(err, ErrInvalidClock) {
			t.Fatalf("ParseClock(%q) expected ErrInvalidClock, got %v", bad, err)
		}
	}
}
