package clock

import (
	"testing"
	"time"
)

func TestFormatSendingTimeMillisecondPrecision(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 7, 30, 13, 45, 2, 123_000_000, time.UTC)
	got := FormatSendingTime(ts)
	want := "20260730-13:45:02.123"
	if got != want {
		t.Errorf("FormatSendingTime() = %q, want %q", got, want)
	}
}

func TestParseSendingTimeAllPrecisions(t *testing.T) {
	t.Parallel()

	tests := []string{
		"20260730-13:45:02",
		"20260730-13:45:02.123",
		"20260730-13:45:02.123456",
	}

	for _, raw := range tests {
		if _, err := ParseSendingTime(raw); err != nil {
			t.Errorf("ParseSendingTime(%q) error = %v", raw, err)
		}
	}
}

func TestParseSendingTimeRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := ParseSendingTime("not-a-timestamp"); err == nil {
		t.Error("ParseSendingTime(garbage) error = nil, want error")
	}
}

func TestSystemClockMonotonicNeverRenderedButIncreases(t *testing.T) {
	t.Parallel()

	c := System{}
	a := c.Monotonic()
	time.Sleep(time.Millisecond)
	b := c.Monotonic()
	if b <= a {
		t.Errorf("Monotonic() did not increase: a=%d b=%d", a, b)
	}
}
