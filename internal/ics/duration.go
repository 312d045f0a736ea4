package ics

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseDuration reads an RFC 5545 DURATION such as -PT15M, P1D or -P1DT2H.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	sign := time.Duration(1)
	switch {
	case strings.HasPrefix(s, "-"):
		sign = -1
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	num := ""
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			num += string(c)
		case c == 'T':
			if inTime || num != "" {
				return 0, fmt.Errorf("invalid duration %q", s)
			}
			inTime = true
		default:
			n, err := strconv.Atoi(num)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q", s)
			}
			num = ""
			unit, ok := durationUnit(c, inTime)
			if !ok {
				return 0, fmt.Errorf("invalid duration unit %q", c)
			}
			total += time.Duration(n) * unit
		}
	}
	if num != "" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return sign * total, nil
}

func durationUnit(c rune, inTime bool) (time.Duration, bool) {
	if inTime {
		switch c {
		case 'H':
			return time.Hour, true
		case 'M':
			return time.Minute, true
		case 'S':
			return time.Second, true
		}
		return 0, false
	}
	switch c {
	case 'W':
		return 7 * 24 * time.Hour, true
	case 'D':
		return 24 * time.Hour, true
	}
	return 0, false
}

// formatDuration writes d in whole minutes when possible, else seconds.
func formatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	secs := int64(d / time.Second)
	if secs%60 == 0 {
		return fmt.Sprintf("%sPT%dM", sign, secs/60)
	}
	return fmt.Sprintf("%sPT%dS", sign, secs)
}
