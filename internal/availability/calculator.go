// Package availability derives bookable consultation slots from a doctor's
// recurring weekly availability template.
package availability

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PastBuffer hides slots that start too soon to be booked.
const PastBuffer = 5 * time.Minute

// DateLayout is the calendar date format used for ranges and dates lists.
const DateLayout = "2006-01-02"

// maxDatesWindow caps AvailableDates output.
const maxDatesWindow = 366

var (
	ErrInvalidClock    = errors.New("availability: time must be HH:MM")
	ErrInvalidRange    = errors.New("availability: range start must be before end")
	ErrInvalidDuration = errors.New("availability: slot duration must be positive")
	ErrInvalidWeekday  = errors.New("availability: weekday must be within 0..6")
	ErrInvalidDates    = errors.New("availability: start date must not be after end date")
)

// TimeRange is a daily window expressed as 24h HH:MM clock strings.
type TimeRange struct {
	Start string `json:"start" validate:"required,hhmm"`
	End   string `json:"end" validate:"required,hhmm"`
}

// Config is a doctor's availability template. Zero StartDate or EndDate
// leaves that side of the range open.
type Config struct {
	StartDate        time.Time
	EndDate          time.Time
	ExcludedWeekdays []int
	DailyTimeRanges  []TimeRange
	SlotDuration     time.Duration
	Location         *time.Location
}

// Slot is one bookable interval on a given date.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Label     string    `json:"label"`
	Available bool      `json:"available"`
	Booked    bool      `json:"booked"`
	Past      bool      `json:"past"`
}

// Validate checks the template without computing anything.
func (c Config) Validate() error {
	if c.SlotDuration <= 0 {
		return ErrInvalidDuration
	}
	for _, wd := range c.ExcludedWeekdays {
		if wd < 0 || wd > 6 {
			return fmt.Errorf("%w: %d", ErrInvalidWeekday, wd)
		}
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && dayKey(c.StartDate, c.location()) > dayKey(c.EndDate, c.location()) {
		return ErrInvalidDates
	}
	for _, r := range c.DailyTimeRanges {
		if _, _, err := r.minutes(); err != nil {
			return err
		}
	}
	return nil
}

// Covers reports whether date is inside the range and not an excluded weekday.
func (c Config) Covers(date time.Time) bool {
	loc := c.location()
	local := date.In(loc)
	key := dayKey(local, loc)
	if !c.StartDate.IsZero() && key < dayKey(c.StartDate, loc) {
		return false
	}
	if !c.EndDate.IsZero() && key > dayKey(c.EndDate, loc) {
		return false
	}
	wd := int(local.Weekday())
	for _, excluded := range c.ExcludedWeekdays {
		if excluded == wd {
			return false
		}
	}
	return true
}

// Calculate lists the slots for date. Slots whose start matches a booked
// instant, or that start within PastBuffer of now, are returned unavailable.
func Calculate(cfg Config, date time.Time, booked []time.Time, now time.Time) ([]Slot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Covers(date) {
		return []Slot{}, nil
	}

	loc := cfg.location()
	y, m, d := date.In(loc).Date()

	taken := make(map[int64]struct{}, len(booked))
	for _, b := range booked {
		taken[b.Unix()] = struct{}{}
	}
	cutoff := now.Add(PastBuffer)

	seen := make(map[int64]struct{})
	slots := make([]Slot, 0)
	for _, r := range cfg.DailyTimeRanges {
		startMin, endMin, _ := r.minutes()
		step := int(cfg.SlotDuration / time.Minute)
		if step <= 0 {
			return nil, ErrInvalidDuration
		}
		for cur := startMin; cur+step <= endMin; cur += step {
			start := time.Date(y, m, d, cur/60, cur%60, 0, 0, loc)
			if _, dup := seen[start.Unix()]; dup {
				continue
			}
			seen[start.Unix()] = struct{}{}

			_, isBooked := taken[start.Unix()]
			isPast := !start.After(cutoff)
			slots = append(slots, Slot{
				Start:     start,
				End:       start.Add(cfg.SlotDuration),
				Label:     start.Format("03:04 PM"),
				Booked:    isBooked,
				Past:      isPast,
				Available: !isBooked && !isPast,
			})
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots, nil
}

// Contains reports whether start is an available slot on its own date.
func Contains(cfg Config, start time.Time, booked []time.Time, now time.Time) (bool, error) {
	slots, err := Calculate(cfg, start, booked, now)
	if err != nil {
		return false, err
	}
	for _, s := range slots {
		if s.Start.Equal(start) {
			return s.Available, nil
		}
	}
	return false, nil
}

// AvailableDates lists YYYY-MM-DD dates between from and to (inclusive) that
// the template covers.
func AvailableDates(cfg Config, from, to time.Time) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc := cfg.location()
	fy, fm, fd := from.In(loc).Date()
	day := time.Date(fy, fm, fd, 12, 0, 0, 0, loc)
	if !cfg.StartDate.IsZero() {
		sy, sm, sd := cfg.StartDate.In(loc).Date()
		if start := time.Date(sy, sm, sd, 12, 0, 0, 0, loc); start.After(day) {
			day = start
		}
	}
	last := dayKey(to, loc)
	if !cfg.EndDate.IsZero() && dayKey(cfg.EndDate, loc) < last {
		last = dayKey(cfg.EndDate, loc)
	}

	dates := make([]string, 0)
	for i := 0; i < maxDatesWindow && dayKey(day, loc) <= last; i++ {
		if cfg.Covers(day) {
			dates = append(dates, day.Format(DateLayout))
		}
		day = day.AddDate(0, 0, 1)
	}
	return dates, nil
}

// ParseClock converts HH:MM into minutes after midnight.
func ParseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return h*60 + mm, nil
}

// ParseDate parses a YYYY-MM-DD date in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, strings.TrimSpace(value), loc)
}

func (r TimeRange) minutes() (int, int, error) {
	start, err := ParseClock(r.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseClock(r.End)
	if err != nil {
		return 0, 0, err
	}
	if start >= end {
		return 0, 0, fmt.Errorf("%w: %s-%s", ErrInvalidRange, r.Start, r.End)
	}
	return start, end, nil
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func dayKey(t time.Time, loc *time.Location) int {
	y, m, d := t.In(loc).Date()
	return y*10000 + int(m)*100 + d
}
