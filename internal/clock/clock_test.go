package clock

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"06:00", true},
		{"6:00", true},
		{"00:00", true},
		{"23:59", true},
		{"19:05", true},
		{"24:00", false},
		{"25:99", false},
		{"12:60", false},
		{"12:5", false},
		{"1200", false},
		{"", false},
		{" 06:00", false},
		{"06:00pm", false},
	}
	for _, test := range tests {
		if got := Valid(test.in); got != test.want {
			t.Errorf("Valid(%q) = %v, want %v", test.in, got, test.want)
		}
	}
}

func TestParse(t *testing.T) {
	got, err := Parse("7:05")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Minutes() != 7*60+5 {
		t.Errorf("Minutes = %d, want %d", got.Minutes(), 7*60+5)
	}
	if got.String() != "07:05" {
		t.Errorf("String = %q, want 07:05", got.String())
	}
	if got.Hour() != 7 || got.Minute() != 5 {
		t.Errorf("Hour/Minute = %d/%d", got.Hour(), got.Minute())
	}

	if _, err := Parse("25:99"); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
}

func TestOrDefault(t *testing.T) {
	def := MustParse("18:00")
	if got := OrDefault("25:99", def); got != def {
		t.Errorf("OrDefault(bad) = %s, want %s", got, def)
	}
	if got := OrDefault("19:30", def); got.String() != "19:30" {
		t.Errorf("OrDefault(good) = %s, want 19:30", got)
	}
}

func TestAddMinutes(t *testing.T) {
	tests := []struct {
		in    string
		delta int
		want  string
	}{
		{"23:50", 20, "00:10"},
		{"00:05", -10, "23:55"},
		{"12:00", 0, "12:00"},
		{"06:30", 90, "08:00"},
		{"06:30", -24 * 60, "06:30"},
		{"06:30", 3*24*60 + 1, "06:31"},
		{"01:00", -3*24*60 - 61, "23:59"},
	}
	for _, test := range tests {
		got, err := AddMinutes(test.in, test.delta)
		if err != nil {
			t.Fatalf("AddMinutes(%q, %d): %v", test.in, test.delta, err)
		}
		if got != test.want {
			t.Errorf("AddMinutes(%q, %d) = %q, want %q", test.in, test.delta, got, test.want)
		}
	}

	if _, err := AddMinutes("nope", 5); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
}

func TestOfAndOn(t *testing.T) {
	loc := time.FixedZone("X", -5*3600)
	instant := time.Date(2024, time.March, 3, 21, 47, 59, 999, loc)
	tod := Of(instant)
	if tod.String() != "21:47" {
		t.Errorf("Of = %s, want 21:47", tod)
	}

	on := MustParse("06:15").On(instant)
	want := time.Date(2024, time.March, 3, 6, 15, 0, 0, loc)
	if !on.Equal(want) {
		t.Errorf("On = %s, want %s", on, want)
	}
}

func TestTextRoundTrip(t *testing.T) {
	var v struct {
		At Time `json:"at"`
	}
	if err := json.Unmarshal([]byte(`{"at":"5:07"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"at":"05:07"}` {
		t.Errorf("got %s", data)
	}

	if err := json.Unmarshal([]byte(`{"at":"24:00"}`), &v); err == nil {
		t.Error("expected error for 24:00")
	}
}
