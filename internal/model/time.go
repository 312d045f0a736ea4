package model

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

var (
	zoneMu    sync.RWMutex
	localZone = time.Local
)

// SetLocalZone sets the zone assumed for naive timestamps. nil restores
// time.Local.
func SetLocalZone(loc *time.Location) {
	zoneMu.Lock()
	defer zoneMu.Unlock()
	if loc == nil {
		loc = time.Local
	}
	localZone = loc
}

func LocalZone() *time.Location {
	zoneMu.RLock()
	defer zoneMu.RUnlock()
	return localZone
}

// Layouts tried in order. The first carries an offset, the rest are naive.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp. Strings without an offset are read
// in the local zone.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrValidation)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	loc := LocalZone()
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q", ErrValidation, s)
}

// FromEpoch converts provider-native seconds since 1970 to an instant in the
// local zone.
func FromEpoch(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).In(LocalZone())
}

// Normalize turns any supported representation into an aware instant:
// time.Time and *time.Time are returned unchanged, strings go through
// ParseTime, and numbers are epoch seconds. Normalize(Normalize(x)) equals
// Normalize(x).
func Normalize(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case *time.Time:
		if x == nil {
			return time.Time{}, fmt.Errorf("%w: nil timestamp", ErrValidation)
		}
		return *x, nil
	case string:
		return ParseTime(x)
	case float64:
		return FromEpoch(x), nil
	case int64:
		return FromEpoch(float64(x)), nil
	case int:
		return FromEpoch(float64(x)), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported timestamp type %T", ErrValidation, v)
	}
}

// FormatTime renders an instant as ISO-8601 with its offset, e.g.
// 2025-11-14T14:00:00+11:00.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format(time.RFC3339)
}
