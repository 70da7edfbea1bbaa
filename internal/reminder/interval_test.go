package reminder

import (
	"errors"
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	t.Parallel()

	cases := []struct {
		token string
		want  time.Duration
	}{
		{"30s", 30 * time.Second},
		{"5m", 5 * time.Minute},
		{"2h", 2 * time.Hour},
		{"1d", 24 * time.Hour},
		{"0s", 0},
		// Trailing characters after the prefix are tolerated.
		{"10mfoo", 10 * time.Minute},
		{"1h30m", time.Hour},
	}
	for _, tc := range cases {
		got, err := ParseInterval(tc.token)
		if err != nil {
			t.Fatalf("ParseInterval(%q): %v", tc.token, err)
		}
		if got != tc.want {
			t.Fatalf("ParseInterval(%q) = %v, want %v", tc.token, got, tc.want)
		}
	}
}

func TestParseIntervalRejects(t *testing.T) {
	t.Parallel()

	for _, token := range []string{"", "abc", "m5", "5x", "-5m", " 5m", "5 m"} {
		_, err := ParseInterval(token)
		if err == nil {
			t.Fatalf("ParseInterval(%q): expected error", token)
		}
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("ParseInterval(%q): expected ParseError, got %T", token, err)
		}
		if perr.Token != token {
			t.Fatalf("ParseError.Token = %q, want %q", perr.Token, token)
		}
	}
}

func TestParseIntervalHugeValueDoesNotOverflow(t *testing.T) {
	t.Parallel()

	d, err := ParseInterval("99999999999d")
	if err != nil {
		t.Fatalf("ParseInterval: %v", err)
	}
	if d <= MaxInterval {
		t.Fatalf("expected out-of-range duration, got %v", d)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		d    time.Duration
		want string
	}{
		{time.Second, "1 second"},
		{45 * time.Second, "45 seconds"},
		{time.Minute, "1 minute"},
		{5 * time.Minute, "5 minutes"},
		{90 * time.Minute, "1 hour"},
		{2 * time.Hour, "2 hours"},
		{24 * time.Hour, "1 day"},
		{72 * time.Hour, "3 days"},
		{-time.Minute, "0 seconds"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.d); got != tc.want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
