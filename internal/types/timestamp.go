package types

import (
	"strconv"
	"strings"
	"time"
)

// DecodeDate decodes the `date` OID's `yyyy-MM-dd` text, with `infinity`
// and `-infinity` mapped to fixed far-future/far-past sentinel times
// (Unix seconds ±2^62, UTC).
func DecodeDate(s string) (time.Time, error) {
	switch s {
	case "infinity":
		return time.Unix(1<<62, 0).UTC(), nil
	case "-infinity":
		return time.Unix(-(1 << 62), 0).UTC(), nil
	}
	t, bc := stripBC(s)
	parsed, err := time.Parse("2006-01-02", t)
	if err != nil {
		return time.Time{}, decodeErrorf("invalid date %q: %v", s, err)
	}
	if bc {
		parsed = negateYear(parsed)
	}
	return parsed, nil
}

func stripBC(s string) (string, bool) {
	if strings.HasSuffix(s, " BC") {
		return strings.TrimSuffix(s, " BC"), true
	}
	return s, false
}

// negateYear flips the sign of the year while preserving month/day/time
// components, per spec.md §4.7's BC handling: negate year, then apply the
// fractional-second component normally. time.Date normalizes correctly
// because Go's calendar has no year zero restriction.
func negateYear(t time.Time) time.Time {
	return time.Date(-t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// timestampBodyLayouts covers the optional fractional-seconds component; the
// offset (when present) is parsed separately below since its width varies
// (±HH, ±HH:MM, ±HH:MM:SS, or literal "Z" is never emitted by PostgreSQL
// but accepted defensively).
var timestampBodyLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// DecodeTimestamp decodes `timestamp`/`timestamptz` text:
// `YYYY-MM-DD HH:MM:SS[.fff][±HH[:MM[:SS]]|Z]` with optional trailing
// `BC`. When no offset is present the value is local wall-clock time;
// when an offset is present the value is UTC-adjusted by the
// sign-reversed offset, matching spec.md §4.7. setUTCFullYear semantics
// are reproduced by applying the BC year negation last, after the
// offset-based UTC conversion, so first-century dates survive.
func DecodeTimestamp(s string) (time.Time, error) {
	switch s {
	case "infinity":
		return time.Unix(1<<62, 0).UTC(), nil
	case "-infinity":
		return time.Unix(-(1 << 62), 0).UTC(), nil
	}

	body, bc := stripBC(s)
	body, offset, hasOffset := splitOffset(body)

	var parsed time.Time
	var err error
	loc := time.Local
	if hasOffset {
		loc = time.UTC
	}
	for _, layout := range timestampBodyLayouts {
		parsed, err = time.ParseInLocation(layout, body, loc)
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, decodeErrorf("invalid timestamp %q: %v", s, err)
	}

	if hasOffset {
		sign, hh, mm, ss, err := parseOffset(offset)
		if err != nil {
			return time.Time{}, err
		}
		delta := time.Duration(sign) * (time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute + time.Duration(ss)*time.Second)
		// The literal wall-clock value was parsed as if it were UTC; the
		// actual instant is offset earlier/later by the sign-reversed
		// server offset, i.e. subtract the offset to land on true UTC.
		parsed = parsed.Add(-delta)
	}

	if bc {
		parsed = negateYear(parsed)
	}
	return parsed, nil
}

// splitOffset separates a trailing timezone offset ("+05:30", "-08", "Z")
// from the timestamp body that precedes it. PostgreSQL never emits a
// bare date before the time portion without a space, so we only look
// after the first space.
func splitOffset(s string) (body, offset string, has bool) {
	spaceIdx := strings.IndexByte(s, ' ')
	if spaceIdx < 0 {
		return s, "", false
	}
	timePart := s[spaceIdx+1:]
	for i, c := range timePart {
		if c == '+' || c == '-' {
			return s[:spaceIdx+1+i], timePart[i:], true
		}
		if c == 'Z' {
			return s[:spaceIdx+1+i], "+00:00", true
		}
	}
	return s, "", false
}

func parseOffset(offset string) (sign int, hh, mm, ss int, err error) {
	if offset == "" {
		return 0, 0, 0, 0, decodeErrorf("empty timezone offset")
	}
	sign = 1
	if offset[0] == '-' {
		sign = -1
	}
	body := offset[1:]
	parts := strings.Split(body, ":")
	hh, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, 0, decodeErrorf("invalid timezone offset %q: %v", offset, err)
	}
	if len(parts) > 1 {
		mm, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, 0, 0, decodeErrorf("invalid timezone offset %q: %v", offset, err)
		}
	}
	if len(parts) > 2 {
		ss, err = strconv.Atoi(parts[2])
		if err != nil {
			return 0, 0, 0, 0, decodeErrorf("invalid timezone offset %q: %v", offset, err)
		}
	}
	return sign, hh, mm, ss, nil
}

// EncodeTimestamp renders t as ISO-8601 with an explicit offset
// (`±HH:MM`, or `+00:00` for UTC), per spec.md §4.7's encoding rule for
// datetime argument values.
func EncodeTimestamp(t time.Time) string {
	_, offsetSec := t.Zone()
	sign := "+"
	if offsetSec < 0 {
		sign = "-"
		offsetSec = -offsetSec
	}
	hh := offsetSec / 3600
	mm := (offsetSec % 3600) / 60
	return t.Format("2006-01-02T15:04:05.999999999") + sign + pad2(hh) + ":" + pad2(mm)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
