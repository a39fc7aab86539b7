package value

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cinekit.dev/dcp/dcperr"
)

// UTCOffset is a timezone offset in hours and minutes. The minute part
// carries the sign of the whole offset when the hour part is zero.
type UTCOffset struct {
	hour   int
	minute int
}

// NewUTCOffset validates hour in [-11, 12] and minute in [-30, 30].
func NewUTCOffset(hour, minute int) (UTCOffset, error) {
	if hour < -11 || hour > 12 {
		return UTCOffset{}, dcperr.New(dcperr.KindBadSetting, fmt.Sprintf("UTC offset hour %d out of range", hour))
	}
	if minute < -30 || minute > 30 {
		return UTCOffset{}, dcperr.New(dcperr.KindBadSetting, fmt.Sprintf("UTC offset minute %d out of range", minute))
	}
	return UTCOffset{hour, minute}, nil
}

func (o UTCOffset) Hour() int   { return o.hour }
func (o UTCOffset) Minute() int { return o.minute }

// String renders the XML form, e.g. "+01:00" or "-04:30".
func (o UTCOffset) String() string {
	sign := "+"
	h, m := o.hour, o.minute
	if h < 0 || m < 0 {
		sign = "-"
		if h < 0 {
			h = -h
		}
		if m < 0 {
			m = -m
		}
	}
	return fmt.Sprintf("%s%02d:%02d", sign, h, m)
}

// LocalTime is a wall-clock time with an explicit UTC offset, as written
// in <IssueDate> and KDM validity windows.
type LocalTime struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
	Milli  int
	Offset UTCOffset
}

// NowLocalTime captures the current wall-clock time with the local zone
// offset.
func NowLocalTime() LocalTime {
	return LocalTimeFrom(time.Now())
}

// LocalTimeFrom converts a time.Time, keeping its location's offset.
func LocalTimeFrom(t time.Time) LocalTime {
	_, secs := t.Zone()
	mins := secs / 60
	off := UTCOffset{hour: mins / 60, minute: mins % 60}
	return LocalTime{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
		Milli:  t.Nanosecond() / 1e6,
		Offset: off,
	}
}

// ParseLocalTime accepts "YYYY-MM-DDThh:mm:ss±hh:mm", an optional
// fractional seconds part, and a trailing "Z" for UTC.
func ParseLocalTime(s string) (LocalTime, error) {
	orig := s
	s = strings.TrimSpace(s)
	bad := func() (LocalTime, error) {
		return LocalTime{}, dcperr.New(dcperr.KindXML, "bad date/time "+strconv.Quote(orig))
	}

	var offHour, offMin, offSign int
	switch {
	case strings.HasSuffix(s, "Z"):
		s = s[:len(s)-1]
		offSign = 1
	case len(s) > 6 && (s[len(s)-6] == '+' || s[len(s)-6] == '-'):
		offSign = 1
		if s[len(s)-6] == '-' {
			offSign = -1
		}
		var err1, err2 error
		offHour, err1 = strconv.Atoi(s[len(s)-5 : len(s)-3])
		offMin, err2 = strconv.Atoi(s[len(s)-2:])
		if err1 != nil || err2 != nil || s[len(s)-3] != ':' {
			return bad()
		}
		s = s[:len(s)-6]
	default:
		return bad()
	}

	var milli int
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		frac := s[dot+1:]
		s = s[:dot]
		for len(frac) < 3 {
			frac += "0"
		}
		n, err := strconv.Atoi(frac[:3])
		if err != nil {
			return bad()
		}
		milli = n
	}

	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return bad()
	}
	off, err := NewUTCOffset(offSign*offHour, offSign*offMin)
	if err != nil {
		return LocalTime{}, err
	}
	return LocalTime{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
		Milli:  milli,
		Offset: off,
	}, nil
}

// String renders without milliseconds, the usual <IssueDate> form.
func (l LocalTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d%s",
		l.Year, l.Month, l.Day, l.Hour, l.Minute, l.Second, l.Offset)
}

// StringWithMilli renders with a three-digit fractional part.
func (l LocalTime) StringWithMilli() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d.%03d%s",
		l.Year, l.Month, l.Day, l.Hour, l.Minute, l.Second, l.Milli, l.Offset)
}

// Time converts to a time.Time in a fixed zone for the offset.
func (l LocalTime) Time() time.Time {
	secs := (l.Offset.hour*60 + l.Offset.minute) * 60
	loc := time.FixedZone(l.Offset.String(), secs)
	return time.Date(l.Year, time.Month(l.Month), l.Day, l.Hour, l.Minute, l.Second, l.Milli*1e6, loc)
}

// Before reports whether l denotes an earlier instant than o.
func (l LocalTime) Before(o LocalTime) bool {
	return l.Time().Before(o.Time())
}
