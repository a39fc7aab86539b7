// Package value holds the small value types used throughout the DCP
// packages: edit rates, timecodes, language tags, picture sizes, colours
// and the closed string enumerations of the CPL schemas.
package value

import (
	"fmt"
	"strconv"
	"strings"

	"cinekit.dev/dcp/dcperr"
)

// Standard selects between the two interoperable DCP dialects.
type Standard int

const (
	Interop Standard = iota
	SMPTE
)

func (s Standard) String() string {
	if s == Interop {
		return "Interop"
	}
	return "SMPTE"
}

// Fraction is a rational number with a positive denominator, used for
// edit rates and frame rates.
type Fraction struct {
	Numerator   int
	Denominator int
}

// ParseFraction accepts the CPL "num den" form and the conventional
// "num/den" form. A bare integer is taken as num/1.
func ParseFraction(s string) (Fraction, error) {
	s = strings.TrimSpace(s)
	var parts []string
	if strings.Contains(s, "/") {
		parts = strings.SplitN(s, "/", 2)
	} else {
		parts = strings.Fields(s)
	}
	switch len(parts) {
	case 1:
		n, err := strconv.Atoi(parts[0])
		if err != nil {
			return Fraction{}, dcperr.Wrap(dcperr.KindXML, "bad fraction "+strconv.Quote(s), err)
		}
		return Fraction{n, 1}, nil
	case 2:
		n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return Fraction{}, dcperr.Wrap(dcperr.KindXML, "bad fraction "+strconv.Quote(s), err)
		}
		d, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return Fraction{}, dcperr.Wrap(dcperr.KindXML, "bad fraction "+strconv.Quote(s), err)
		}
		if d <= 0 {
			return Fraction{}, dcperr.New(dcperr.KindBadSetting, "fraction denominator must be positive")
		}
		return Fraction{n, d}, nil
	}
	return Fraction{}, dcperr.New(dcperr.KindXML, "bad fraction "+strconv.Quote(s))
}

// String renders the space-separated form used by <EditRate> and
// <FrameRate> elements.
func (f Fraction) String() string {
	return fmt.Sprintf("%d %d", f.Numerator, f.Denominator)
}

func (f Fraction) Float() float64 {
	return float64(f.Numerator) / float64(f.Denominator)
}

// Size is a picture dimension in pixels.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Colour is an RGB colour. DCP XML writes colours as #AARRGGBB with the
// alpha byte always FF.
type Colour struct {
	R, G, B uint8
}

// ParseColour accepts #AARRGGBB and #RRGGBB.
func ParseColour(s string) (Colour, error) {
	t := strings.TrimPrefix(s, "#")
	if len(t) == 8 {
		t = t[2:]
	}
	if len(t) != 6 {
		return Colour{}, dcperr.New(dcperr.KindXML, "bad colour "+strconv.Quote(s))
	}
	v, err := strconv.ParseUint(t, 16, 32)
	if err != nil {
		return Colour{}, dcperr.Wrap(dcperr.KindXML, "bad colour "+strconv.Quote(s), err)
	}
	return Colour{uint8(v >> 16), uint8(v >> 8), uint8(v)}, nil
}

func (c Colour) String() string {
	return fmt.Sprintf("#FF%02X%02X%02X", c.R, c.G, c.B)
}

// ContentKind is the CPL <ContentKind> enumeration.
type ContentKind int

const (
	Feature ContentKind = iota
	Short
	Trailer
	Test
	Transitional
	Rating
	Teaser
	Policy
	PublicServiceAnnouncement
	Advertisement
)

var contentKindNames = map[ContentKind]string{
	Feature:                   "feature",
	Short:                     "short",
	Trailer:                   "trailer",
	Test:                      "test",
	Transitional:              "transitional",
	Rating:                    "rating",
	Teaser:                    "teaser",
	Policy:                    "policy",
	PublicServiceAnnouncement: "psa",
	Advertisement:             "advertisement",
}

func (k ContentKind) String() string {
	return contentKindNames[k]
}

// ParseContentKind is tolerant about case.
func ParseContentKind(s string) (ContentKind, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	for k, n := range contentKindNames {
		if n == t {
			return k, nil
		}
	}
	return Feature, dcperr.New(dcperr.KindXML, "unknown content kind "+strconv.Quote(s))
}

// VAlign anchors a subtitle vertically.
type VAlign int

const (
	VTop VAlign = iota
	VCenter
	VBottom
)

func (v VAlign) String() string {
	switch v {
	case VTop:
		return "top"
	case VBottom:
		return "bottom"
	}
	return "center"
}

func ParseVAlign(s string) (VAlign, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "top":
		return VTop, nil
	case "center":
		return VCenter, nil
	case "bottom":
		return VBottom, nil
	}
	return VCenter, dcperr.New(dcperr.KindXML, "unknown Valign "+strconv.Quote(s))
}

// HAlign anchors a subtitle horizontally.
type HAlign int

const (
	HLeft HAlign = iota
	HCenter
	HRight
)

func (h HAlign) String() string {
	switch h {
	case HLeft:
		return "left"
	case HRight:
		return "right"
	}
	return "center"
}

func ParseHAlign(s string) (HAlign, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left":
		return HLeft, nil
	case "center":
		return HCenter, nil
	case "right":
		return HRight, nil
	}
	return HCenter, dcperr.New(dcperr.KindXML, "unknown Halign "+strconv.Quote(s))
}

// Direction is the subtitle writing direction.
type Direction int

const (
	DirLTR Direction = iota
	DirRTL
	DirTTB
	DirBTT
)

func (d Direction) String() string {
	switch d {
	case DirRTL:
		return "rtl"
	case DirTTB:
		return "ttb"
	case DirBTT:
		return "btt"
	}
	return "ltr"
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ltr", "horizontal":
		return DirLTR, nil
	case "rtl":
		return DirRTL, nil
	case "ttb", "vertical":
		return DirTTB, nil
	case "btt":
		return DirBTT, nil
	}
	return DirLTR, dcperr.New(dcperr.KindXML, "unknown Direction "+strconv.Quote(s))
}

// Effect is the subtitle text effect.
type Effect int

const (
	EffectNone Effect = iota
	EffectBorder
	EffectShadow
)

func (e Effect) String() string {
	switch e {
	case EffectBorder:
		return "border"
	case EffectShadow:
		return "shadow"
	}
	return "none"
}

func ParseEffect(s string) (Effect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return EffectNone, nil
	case "border":
		return EffectBorder, nil
	case "shadow":
		return EffectShadow, nil
	}
	return EffectNone, dcperr.New(dcperr.KindXML, "unknown Effect "+strconv.Quote(s))
}

// Marker is a CPL marker label (SMPTE 429-7 table 9).
type Marker int

const (
	MarkerFFOC Marker = iota // first frame of composition
	MarkerLFOC               // last frame of composition
	MarkerFFTC               // first frame of title credits
	MarkerLFTC               // last frame of title credits
	MarkerFFOI               // first frame of intermission
	MarkerLFOI               // last frame of intermission
	MarkerFFEC               // first frame of end credits
	MarkerLFEC               // last frame of end credits
	MarkerFFMC               // first frame of moving credits
	MarkerLFMC               // last frame of moving credits
)

var markerNames = map[Marker]string{
	MarkerFFOC: "FFOC",
	MarkerLFOC: "LFOC",
	MarkerFFTC: "FFTC",
	MarkerLFTC: "LFTC",
	MarkerFFOI: "FFOI",
	MarkerLFOI: "LFOI",
	MarkerFFEC: "FFEC",
	MarkerLFEC: "LFEC",
	MarkerFFMC: "FFMC",
	MarkerLFMC: "LFMC",
}

func (m Marker) String() string {
	return markerNames[m]
}

func ParseMarker(s string) (Marker, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	for m, n := range markerNames {
		if n == t {
			return m, nil
		}
	}
	return MarkerFFOC, dcperr.New(dcperr.KindXML, "unknown marker "+strconv.Quote(s))
}
