package value

import (
	"fmt"
	"strconv"
	"strings"

	"cinekit.dev/dcp/dcperr"
)

// Time is a timecode of the form HH:MM:SS:FF at a given tick rate (ticks
// per second). SMPTE subtitle files use the edit rate as the tick rate;
// Interop files use 250 (4ms ticks).
type Time struct {
	H   int
	M   int
	S   int
	F   int
	TCR int
}

// NewTimeFromFrames builds a Time from a count of editable units at the
// given tick rate.
func NewTimeFromFrames(frames int64, tcr int) Time {
	if tcr <= 0 {
		tcr = 24
	}
	t := Time{TCR: tcr}
	t.F = int(frames % int64(tcr))
	secs := frames / int64(tcr)
	t.S = int(secs % 60)
	mins := secs / 60
	t.M = int(mins % 60)
	t.H = int(mins / 60)
	return t
}

// ParseTime parses "HH:MM:SS:FF" (or the Interop three-digit tick form)
// interpreting the final field at the given tick rate.
func ParseTime(s string, tcr int) (Time, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 4 {
		return Time{}, dcperr.New(dcperr.KindXML, "bad time "+strconv.Quote(s))
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Time{}, dcperr.Wrap(dcperr.KindXML, "bad time "+strconv.Quote(s), err)
		}
		v[i] = n
	}
	return Time{H: v[0], M: v[1], S: v[2], F: v[3], TCR: tcr}, nil
}

// Ticks is the total count of 1/TCR second units.
func (t Time) Ticks() int64 {
	return ((int64(t.H)*60+int64(t.M))*60+int64(t.S))*int64(t.TCR) + int64(t.F)
}

// AsEditableUnits converts to a count of editable units at rate,
// truncating towards zero.
func (t Time) AsEditableUnits(rate int) int64 {
	if t.TCR == 0 {
		return 0
	}
	return t.Ticks() * int64(rate) / int64(t.TCR)
}

// Add returns t + o at t's tick rate.
func (t Time) Add(o Time) Time {
	return NewTimeFromFrames(t.Ticks()+o.rescaled(t.TCR), t.TCR)
}

// Sub returns t - o at t's tick rate.
func (t Time) Sub(o Time) Time {
	return NewTimeFromFrames(t.Ticks()-o.rescaled(t.TCR), t.TCR)
}

func (t Time) rescaled(tcr int) int64 {
	if t.TCR == 0 || t.TCR == tcr {
		return t.Ticks()
	}
	return t.Ticks() * int64(tcr) / int64(t.TCR)
}

// Cmp compares across tick rates by conversion to a common rational.
// It returns -1, 0 or 1.
func (t Time) Cmp(o Time) int {
	a := t.Ticks() * int64(maxInt(o.TCR, 1))
	b := o.Ticks() * int64(maxInt(t.TCR, 1))
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Equal reports whether two times denote the same instant, regardless of
// tick rate.
func (t Time) Equal(o Time) bool {
	return t.Cmp(o) == 0
}

// IsZero reports whether the time is 00:00:00:00.
func (t Time) IsZero() bool {
	return t.Ticks() == 0
}

// String renders the SMPTE two-digit form, or three tick digits when the
// tick rate needs them (Interop's 250 ticks per second).
func (t Time) String() string {
	if t.TCR > 100 {
		return fmt.Sprintf("%02d:%02d:%02d:%03d", t.H, t.M, t.S, t.F)
	}
	return fmt.Sprintf("%02d:%02d:%02d:%02d", t.H, t.M, t.S, t.F)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
