package value

import (
	"testing"

	"cinekit.dev/dcp/dcperr"
)

func TestParseFraction(t *testing.T) {
	cases := []struct {
		in   string
		want Fraction
	}{
		{"24 1", Fraction{24, 1}},
		{"24/1", Fraction{24, 1}},
		{"24", Fraction{24, 1}},
		{"48000 1", Fraction{48000, 1}},
		{" 25 1 ", Fraction{25, 1}},
	}
	for _, c := range cases {
		got, err := ParseFraction(c.in)
		if err != nil {
			t.Fatalf("ParseFraction(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseFraction(%q) = %v, want %v", c.in, got, c.want)
		}
	}
	if _, err := ParseFraction("24 0"); !dcperr.IsKind(err, dcperr.KindBadSetting) {
		t.Errorf("zero denominator: got %v", err)
	}
	if _, err := ParseFraction("x y"); err == nil {
		t.Error("expected error for non-numeric fraction")
	}
	if got := (Fraction{24, 1}).String(); got != "24 1" {
		t.Errorf("String() = %q", got)
	}
}

func TestColourRoundTrip(t *testing.T) {
	c, err := ParseColour("#FFAB0102")
	if err != nil {
		t.Fatal(err)
	}
	if c != (Colour{0xAB, 0x01, 0x02}) {
		t.Errorf("parsed %+v", c)
	}
	if c.String() != "#FFAB0102" {
		t.Errorf("String() = %q", c.String())
	}
	short, err := ParseColour("#AB0102")
	if err != nil {
		t.Fatal(err)
	}
	if short != c {
		t.Errorf("six-digit form parsed %+v", short)
	}
	if _, err := ParseColour("#123"); err == nil {
		t.Error("expected error for short colour")
	}
}

func TestContentKind(t *testing.T) {
	k, err := ParseContentKind("Feature")
	if err != nil || k != Feature {
		t.Fatalf("got %v, %v", k, err)
	}
	if PublicServiceAnnouncement.String() != "psa" {
		t.Errorf("psa name = %q", PublicServiceAnnouncement.String())
	}
	if _, err := ParseContentKind("documentary"); !dcperr.IsKind(err, dcperr.KindXML) {
		t.Errorf("unknown kind: got %v", err)
	}
}

func TestMarkerNames(t *testing.T) {
	for _, n := range []string{"FFOC", "LFOC", "FFEC", "FFMC", "LFMC"} {
		m, err := ParseMarker(n)
		if err != nil {
			t.Fatalf("ParseMarker(%q): %v", n, err)
		}
		if m.String() != n {
			t.Errorf("round trip %q -> %q", n, m.String())
		}
	}
}

func TestTimeEditableUnits(t *testing.T) {
	tm := NewTimeFromFrames(25*24+3, 24)
	if tm.H != 0 || tm.M != 0 || tm.S != 25 || tm.F != 3 {
		t.Fatalf("got %v", tm)
	}
	if got := tm.AsEditableUnits(24); got != 25*24+3 {
		t.Errorf("AsEditableUnits(24) = %d", got)
	}
	if got := tm.AsEditableUnits(48); got != 2*(25*24+3) {
		t.Errorf("AsEditableUnits(48) = %d", got)
	}
}

func TestTimeParseAndCompare(t *testing.T) {
	a, err := ParseTime("01:02:03:04", 24)
	if err != nil {
		t.Fatal(err)
	}
	if a.String() != "01:02:03:04" {
		t.Errorf("String() = %q", a.String())
	}
	// 12 frames at 24fps is half a second, 125 ticks at 250.
	b, err := ParseTime("01:02:03:125", 250)
	if err != nil {
		t.Fatal(err)
	}
	half := Time{H: 1, M: 2, S: 3, F: 12, TCR: 24}
	if !half.Equal(b) {
		t.Errorf("cross-rate equality failed: %v vs %v", half, b)
	}
	if a.Cmp(b) != -1 {
		t.Errorf("4/24 should sort before 125/250")
	}
	if b.String() != "01:02:03:125" {
		t.Errorf("tick form String() = %q", b.String())
	}
}

func TestTimeArithmetic(t *testing.T) {
	a := Time{S: 10, TCR: 24}
	b := Time{S: 4, F: 12, TCR: 24}
	if d := a.Sub(b); d.S != 5 || d.F != 12 {
		t.Errorf("Sub = %v", d)
	}
	if s := a.Add(b); s.S != 14 || s.F != 12 {
		t.Errorf("Add = %v", s)
	}
}

func TestUTCOffsetBounds(t *testing.T) {
	for _, ok := range [][2]int{{-11, -30}, {12, 30}, {0, 0}, {5, 30}} {
		if _, err := NewUTCOffset(ok[0], ok[1]); err != nil {
			t.Errorf("NewUTCOffset(%d, %d): %v", ok[0], ok[1], err)
		}
	}
	for _, bad := range [][2]int{{-12, 0}, {13, 0}, {0, 31}, {0, -31}} {
		if _, err := NewUTCOffset(bad[0], bad[1]); !dcperr.IsKind(err, dcperr.KindBadSetting) {
			t.Errorf("NewUTCOffset(%d, %d): got %v", bad[0], bad[1], err)
		}
	}
	off, _ := NewUTCOffset(-4, -30)
	if off.String() != "-04:30" {
		t.Errorf("String() = %q", off.String())
	}
}

func TestLocalTimeRoundTrip(t *testing.T) {
	for _, s := range []string{
		"2024-03-01T09:30:00+01:00",
		"2018-01-01T10:05:07-04:30",
	} {
		lt, err := ParseLocalTime(s)
		if err != nil {
			t.Fatalf("ParseLocalTime(%q): %v", s, err)
		}
		if lt.String() != s {
			t.Errorf("round trip %q -> %q", s, lt.String())
		}
	}
	lt, err := ParseLocalTime("2024-03-01T09:30:00.123+00:00")
	if err != nil {
		t.Fatal(err)
	}
	if lt.Milli != 123 {
		t.Errorf("Milli = %d", lt.Milli)
	}
	if _, err := ParseLocalTime("2024-03-01"); err == nil {
		t.Error("expected error for date without time")
	}
	z, err := ParseLocalTime("2024-03-01T09:30:00Z")
	if err != nil {
		t.Fatal(err)
	}
	if z.Offset.Hour() != 0 || z.Offset.Minute() != 0 {
		t.Errorf("Z offset = %v", z.Offset)
	}
}

func TestLocalTimeOrdering(t *testing.T) {
	a, _ := ParseLocalTime("2024-03-01T12:00:00+02:00")
	b, _ := ParseLocalTime("2024-03-01T11:00:00+00:00")
	if !a.Before(b) {
		t.Error("offset-aware ordering failed")
	}
}

func TestLanguageTag(t *testing.T) {
	l, err := ParseLanguageTag("de-DE")
	if err != nil {
		t.Fatal(err)
	}
	if l.LanguageSubtag() != "de" || l.RegionSubtag() != "DE" {
		t.Errorf("subtags: %q %q", l.LanguageSubtag(), l.RegionSubtag())
	}
	if _, err := ParseLanguageTag("not a tag"); !dcperr.IsKind(err, dcperr.KindXML) {
		t.Errorf("malformed tag: got %v", err)
	}
	if !ValidRegionSubtag("DE") || !ValidRegionSubtag("419") {
		t.Error("valid regions rejected")
	}
	if ValidRegionSubtag("Germany") {
		t.Error("invalid region accepted")
	}
}
