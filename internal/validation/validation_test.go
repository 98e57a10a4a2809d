package validation

import (
	"errors"
	"strings"
	"testing"
)

type window struct {
	Start string `json:"start" validate:"required,hhmm"`
	End   string `json:"end" validate:"required,hhmm"`
}

type payload struct {
	Email    string   `json:"email" validate:"required,email"`
	Days     []int    `json:"excludedWeekdays" validate:"dive,weekday"`
	Windows  []window `json:"dailyTimeRanges" validate:"dive"`
	Duration int      `json:"slotDurationMinutes" validate:"oneof=15 20 30 45 60"`
}

func TestStructAcceptsValidPayload(t *testing.T) {
	p := payload{
		Email:    "a@b.np",
		Days:     []int{0, 6},
		Windows:  []window{{Start: "09:00", End: "12:00"}},
		Duration: 30,
	}
	if err := Struct(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	p := payload{
		Email:    "nope",
		Days:     []int{7},
		Windows:  []window{{Start: "9am", End: "12:00"}},
		Duration: 25,
	}
	err := Struct(p)
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	msg := err.Error()
	for _, want := range []string{"email must be a valid email", "excludedWeekdays[0] must be a weekday", "dailyTimeRanges[0].start must be a HH:MM time", "slotDurationMinutes must be one of"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}
