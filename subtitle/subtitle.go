// Package subtitle models timed text: the ordered subtitle list shared
// by both dialects, the style-stack XML parser, and the grouping
// writer. Interop subtitles are standalone XML with sidecar PNGs and
// fonts; their SMPTE counterparts are wrapped in MXF.
package subtitle

import "cinekit.dev/dcp/value"

// Item is one entry of the ordered subtitle list, either a String or an
// Image.
type Item interface {
	isItem()
}

// Placement positions an item on screen. Positions are fractions of
// the relevant screen dimension measured from the anchor edge; the XML
// attributes carry them as percentages.
type Placement struct {
	HAlign    value.HAlign
	HPosition float64
	VAlign    value.VAlign
	VPosition float64
	ZPosition float64
}

// Timing is the on/off schedule of an item. Fade times share the tick
// rate of In and Out.
type Timing struct {
	In       value.Time
	Out      value.Time
	FadeUp   value.Time
	FadeDown value.Time
}

// String is one run of styled text. A displayed line may be built from
// several Strings with different styles at the same position.
type String struct {
	Timing
	Placement
	// SpotNumber is the number of the <Subtitle> group the run was
	// parsed from. Writers keep it; when empty, spots are numbered
	// sequentially. It is ignored by equality.
	SpotNumber   string
	FontID       string
	Bold         bool
	Italic       bool
	Underline    bool
	Colour       value.Colour
	Size         int
	AspectAdjust float64
	Direction    value.Direction
	Effect       value.Effect
	EffectColour value.Colour
	Text         string
	// SpaceBefore is extra space in ems inserted before this run.
	SpaceBefore float64
}

func (String) isItem() {}

// DefaultSize is the point size assumed when a document does not give
// one.
const DefaultSize = 42

// NewString fills in the style defaults.
func NewString(text string) String {
	return String{
		Colour:       value.Colour{R: 255, G: 255, B: 255},
		Size:         DefaultSize,
		AspectAdjust: 1,
		EffectColour: value.Colour{R: 0, G: 0, B: 0},
		Text:         text,
	}
}

// style is the inheritable subset of String, threaded through the
// parser's stack and factored out by the writer.
type style struct {
	fontID       string
	bold         bool
	italic       bool
	underline    bool
	colour       value.Colour
	size         int
	aspectAdjust float64
	effect       value.Effect
	effectColour value.Colour
}

func defaultStyle() style {
	return style{
		colour:       value.Colour{R: 255, G: 255, B: 255},
		size:         DefaultSize,
		aspectAdjust: 1,
		effectColour: value.Colour{R: 0, G: 0, B: 0},
	}
}

func (s style) apply(str *String) {
	str.FontID = s.fontID
	str.Bold = s.bold
	str.Italic = s.italic
	str.Underline = s.underline
	str.Colour = s.colour
	str.Size = s.size
	str.AspectAdjust = s.aspectAdjust
	str.Effect = s.effect
	str.EffectColour = s.effectColour
}

func styleOf(str String) style {
	return style{
		fontID:       str.FontID,
		bold:         str.Bold,
		italic:       str.Italic,
		underline:    str.Underline,
		colour:       str.Colour,
		size:         str.Size,
		aspectAdjust: str.AspectAdjust,
		effect:       str.Effect,
		effectColour: str.EffectColour,
	}
}

// Image is a bitmap subtitle. PNG may be empty until the sidecar file
// or ancillary resource has been loaded.
type Image struct {
	Timing
	Placement
	SpotNumber string
	ID         string
	PNG        []byte
}

func (Image) isItem() {}

// ItemsEqual compares two subtitle lists item by item, in order.
func ItemsEqual(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !itemEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func itemEqual(a, b Item) bool {
	switch x := a.(type) {
	case String:
		y, ok := b.(String)
		if !ok {
			return false
		}
		return stringEqual(x, y)
	case Image:
		y, ok := b.(Image)
		if !ok {
			return false
		}
		return imageEqual(x, y)
	}
	return false
}

func stringEqual(a, b String) bool {
	return timingEqual(a.Timing, b.Timing) &&
		a.Placement == b.Placement &&
		styleOf(a) == styleOf(b) &&
		a.Direction == b.Direction &&
		a.Text == b.Text &&
		a.SpaceBefore == b.SpaceBefore
}

func imageEqual(a, b Image) bool {
	if !timingEqual(a.Timing, b.Timing) || a.Placement != b.Placement {
		return false
	}
	if len(a.PNG) != len(b.PNG) {
		return false
	}
	for i := range a.PNG {
		if a.PNG[i] != b.PNG[i] {
			return false
		}
	}
	return true
}

func timingEqual(a, b Timing) bool {
	return a.In.Equal(b.In) && a.Out.Equal(b.Out) &&
		a.FadeUp.Equal(b.FadeUp) && a.FadeDown.Equal(b.FadeDown)
}
