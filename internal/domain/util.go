package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ShortAddress returns addr unchanged if it is 24 characters or shorter;
// otherwise it returns the first 10 characters, "...", and the last 5.
func ShortAddress(addr string) string {
	if len(addr) <= 24 {
		return addr
	}
	const prefixLen, suffixLen = 10, 5
	return fmt.Sprintf("%s...%s", addr[:prefixLen], addr[len(addr)-suffixLen:])
}

// SolutionID builds the claim-row primary key for a (challengeID, address)
// pair: "{challengeID}:{ShortAddress(address)}".
func SolutionID(challengeID, address string) string {
	return challengeID + ":" + ShortAddress(address)
}

// FormatDuration renders a non-negative second count as a compact duration
// string, e.g. 3725 -> "1h2m5s", 45 -> "45s", 0 -> "0s". Any component that
// is zero is omitted, except seconds when every unit is zero.
func FormatDuration(seconds int32) string {
	hours := seconds / 3600
	seconds %= 3600
	minutes := seconds / 60
	seconds %= 60

	out := ""
	if hours > 0 {
		out += fmt.Sprintf("%dh", hours)
	}
	if minutes > 0 {
		out += fmt.Sprintf("%dm", minutes)
	}
	if seconds > 0 || out == "" {
		out += fmt.Sprintf("%ds", seconds)
	}
	return out
}

// ParseDuration is the inverse of FormatDuration: it accepts the exact
// "XhYmZs" shape FormatDuration produces (any subset of the three units,
// in that order) and returns the total seconds.
func ParseDuration(s string) (int32, error) {
	var total int32
	rest := s
	for _, unit := range []byte{'h', 'm', 's'} {
		idx := strings.IndexByte(rest, unit)
		if idx < 0 {
			continue
		}
		n, err := strconv.Atoi(rest[:idx])
		if err != nil {
			return 0, fmt.Errorf("invalid duration segment %q: %w", rest[:idx+1], err)
		}
		switch unit {
		case 'h':
			total += int32(n) * 3600
		case 'm':
			total += int32(n) * 60
		case 's':
			total += int32(n)
		}
		rest = rest[idx+1:]
	}
	if rest != "" {
		return 0, fmt.Errorf("trailing garbage in duration %q", s)
	}
	return total, nil
}

// TimeToRFC3339Micro renders t as RFC3339 with microsecond precision and a
// "Z" suffix, the wire/storage format spec.md §6 mandates for all
// persisted timestamps.
func TimeToRFC3339Micro(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}

// ParseEpoch parses an RFC3339 timestamp and returns its Unix epoch
// seconds, the derivation Challenge.LatestSubmissionEpoch depends on.
func ParseEpoch(rfc3339 string) (int64, error) {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
