package history

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ParseTime turns a --since/--until value into Unix milliseconds. Accepted
// forms, tried in order:
//
//	2025-10-29T13:00:00Z  RFC3339 instant
//	2025-10-29            midnight UTC on that day
//	7d                    whole days before now
//	1h30m                 any Go duration before now
func ParseTime(value string, now time.Time) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty time value")
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UnixMilli(), nil
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t.UnixMilli(), nil
	}

	var ago time.Duration
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid day count %q", value)
		}
		ago = time.Duration(n) * 24 * time.Hour
	} else {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("unrecognised time %q (want RFC3339, YYYY-MM-DD, 7d or 1h30m)", value)
		}
		ago = d
	}
	return now.Add(-ago).UnixMilli(), nil
}

// ParseRange resolves both ends of a revision time window. A zero bound
// means open-ended.
func ParseRange(since, until string, now time.Time) (sinceMs, untilMs int64, err error) {
	if since != "" {
		if sinceMs, err = ParseTime(since, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}
	if until != "" {
		if untilMs, err = ParseTime(until, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}
	if sinceMs > 0 && untilMs > 0 && sinceMs >= untilMs {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}
	return sinceMs, untilMs, nil
}
