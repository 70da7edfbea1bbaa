package reminder

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// intervalRe matches the leading <digits><unit> prefix of a token.
// Trailing characters after the matched prefix are deliberately tolerated.
var intervalRe = regexp.MustCompile(`^(\d+)([smhd])`)

// ParseInterval parses a compact duration token like "30s", "5m", "2h", "1d".
// It applies no range limits; callers validate against Min/MaxInterval.
func ParseInterval(token string) (time.Duration, error) {
	m := intervalRe.FindStringSubmatch(token)
	if m == nil {
		return 0, &ParseError{Token: token}
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		// Digit run too long for int64.
		return 0, &ParseError{Token: token}
	}
	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	if n > int64(MaxInterval/unit)*2 {
		// Avoid silent overflow for absurd values; the service rejects the
		// range anyway, this just keeps the arithmetic sane.
		return time.Duration(1<<62 - 1), nil
	}
	return time.Duration(n) * unit, nil
}

// FormatDuration renders a duration the way the bot talks about it:
// whole seconds, minutes, hours or days, largest unit that fits.
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	switch {
	case secs < 60:
		return plural(secs, "second")
	case secs < 3600:
		return plural(secs/60, "minute")
	case secs < 86400:
		return plural(secs/3600, "hour")
	default:
		return plural(secs/86400, "day")
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
