package subtitle

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"cinekit.dev/dcp/value"
)

// spot is one <Subtitle> element: every item sharing a timing.
type spot struct {
	number  string
	timing  Timing
	strings []String
	images  []Image
}

// writeItems renders the subtitle list under parent, grouping by timing
// into numbered spots and factoring shared style into a spot-level
// <Font>.
func writeItems(parent *etree.Element, items []Item, standard value.Standard) {
	var spots []*spot
	byTiming := map[string]*spot{}
	for _, it := range items {
		var tm Timing
		var num string
		switch v := it.(type) {
		case String:
			tm, num = v.Timing, v.SpotNumber
		case Image:
			tm, num = v.Timing, v.SpotNumber
		}
		key := num + "|" + timingKey(tm)
		sp, ok := byTiming[key]
		if !ok {
			sp = &spot{number: num, timing: tm}
			byTiming[key] = sp
			spots = append(spots, sp)
		}
		switch v := it.(type) {
		case String:
			sp.strings = append(sp.strings, v)
		case Image:
			sp.images = append(sp.images, v)
		}
	}

	for i, sp := range spots {
		num := sp.number
		if num == "" {
			num = strconv.Itoa(i + 1)
		}
		e := parent.CreateElement("Subtitle")
		e.CreateAttr("SpotNumber", num)
		e.CreateAttr("TimeIn", sp.timing.In.String())
		e.CreateAttr("TimeOut", sp.timing.Out.String())
		if !sp.timing.FadeUp.IsZero() {
			e.CreateAttr("FadeUpTime", sp.timing.FadeUp.String())
		}
		if !sp.timing.FadeDown.IsZero() {
			e.CreateAttr("FadeDownTime", sp.timing.FadeDown.String())
		}
		writeSpot(e, sp, standard)
	}
}

func timingKey(tm Timing) string {
	return fmt.Sprintf("%d/%d|%d/%d|%d/%d|%d/%d",
		tm.In.Ticks(), tm.In.TCR, tm.Out.Ticks(), tm.Out.TCR,
		tm.FadeUp.Ticks(), tm.FadeUp.TCR, tm.FadeDown.Ticks(), tm.FadeDown.TCR)
}

func writeSpot(e *etree.Element, sp *spot, standard value.Standard) {
	for _, img := range sp.images {
		ie := e.CreateElement("Image")
		writePlacement(ie, img.Placement, standard)
		ie.SetText(img.ID)
	}
	if len(sp.strings) == 0 {
		return
	}

	common := commonStyle(sp.strings)
	fe := e.CreateElement("Font")
	writeStyleAttrs(fe, common, fullStyleMask(), standard)

	// One <Text> per distinct placement, in on-screen vertical order.
	type line struct {
		pl   Placement
		dir  value.Direction
		runs []String
	}
	var lines []*line
	find := func(pl Placement, dir value.Direction) *line {
		for _, l := range lines {
			if l.pl == pl && l.dir == dir {
				return l
			}
		}
		l := &line{pl: pl, dir: dir}
		lines = append(lines, l)
		return l
	}
	for _, s := range sp.strings {
		l := find(s.Placement, s.Direction)
		l.runs = append(l.runs, s)
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return screenOrder(lines[i].pl) < screenOrder(lines[j].pl)
	})

	for _, l := range lines {
		te := fe.CreateElement("Text")
		writePlacement(te, l.pl, standard)
		if l.dir != value.DirLTR {
			te.CreateAttr("Direction", l.dir.String())
		}
		for _, run := range l.runs {
			if run.SpaceBefore > 0 {
				se := te.CreateElement("Space")
				se.CreateAttr("Size", trimFloat(run.SpaceBefore)+"em")
			}
			mask := diffMask(common, styleOf(run))
			if mask == 0 {
				te.CreateCharData(run.Text)
			} else {
				re := te.CreateElement("Font")
				writeStyleAttrs(re, styleOf(run), mask, standard)
				re.SetText(run.Text)
			}
		}
	}
}

// screenOrder approximates the vertical screen position so that top
// anchored lines sort ascending and bottom anchored ones descending.
func screenOrder(pl Placement) float64 {
	switch pl.VAlign {
	case value.VTop:
		return pl.VPosition
	case value.VBottom:
		return 2 - pl.VPosition
	}
	return 1 + pl.VPosition
}

const (
	maskFont = 1 << iota
	maskSize
	maskWeight
	maskItalic
	maskUnderline
	maskColour
	maskEffect
	maskEffectColour
	maskAspect
)

func fullStyleMask() int {
	return maskFont | maskSize | maskWeight | maskItalic | maskUnderline |
		maskColour | maskEffect | maskEffectColour | maskAspect
}

// commonStyle takes the first run's style; attributes on which the runs
// disagree are pushed down to nested fonts by diffMask.
func commonStyle(runs []String) style {
	return styleOf(runs[0])
}

func diffMask(base, st style) int {
	var m int
	if st.fontID != base.fontID {
		m |= maskFont
	}
	if st.size != base.size {
		m |= maskSize
	}
	if st.bold != base.bold {
		m |= maskWeight
	}
	if st.italic != base.italic {
		m |= maskItalic
	}
	if st.underline != base.underline {
		m |= maskUnderline
	}
	if st.colour != base.colour {
		m |= maskColour
	}
	if st.effect != base.effect {
		m |= maskEffect
	}
	if st.effectColour != base.effectColour {
		m |= maskEffectColour
	}
	if st.aspectAdjust != base.aspectAdjust {
		m |= maskAspect
	}
	return m
}

func writeStyleAttrs(e *etree.Element, st style, mask int, standard value.Standard) {
	if mask&maskFont != 0 && st.fontID != "" {
		e.CreateAttr("Id", st.fontID)
	}
	if mask&maskSize != 0 {
		e.CreateAttr("Size", strconv.Itoa(st.size))
	}
	if mask&maskWeight != 0 {
		e.CreateAttr("Weight", boolAttr(st.bold, "bold", "normal"))
	}
	if mask&maskItalic != 0 {
		e.CreateAttr("Italic", boolAttr(st.italic, "yes", "no"))
	}
	if mask&maskUnderline != 0 {
		name := "Underline"
		if standard == value.Interop {
			name = "Underlined"
		}
		e.CreateAttr(name, boolAttr(st.underline, "yes", "no"))
	}
	if mask&maskColour != 0 {
		e.CreateAttr("Color", st.colour.String())
	}
	if mask&maskEffect != 0 {
		e.CreateAttr("Effect", st.effect.String())
	}
	if mask&maskEffectColour != 0 {
		e.CreateAttr("EffectColor", st.effectColour.String())
	}
	if mask&maskAspect != 0 && st.aspectAdjust != 1 {
		e.CreateAttr("AspectAdjust", trimFloat(st.aspectAdjust))
	}
}

// writePlacement emits positions on the percent scale the schemas use;
// the model keeps them as fractions of the screen dimension.
func writePlacement(e *etree.Element, pl Placement, standard value.Standard) {
	h, hp, v, vp, z := "Halign", "Hposition", "Valign", "Vposition", "Zposition"
	if standard == value.Interop {
		h, hp, v, vp, z = "HAlign", "HPosition", "VAlign", "VPosition", "ZPosition"
	}
	e.CreateAttr(h, pl.HAlign.String())
	e.CreateAttr(hp, trimFloat(pl.HPosition*100))
	e.CreateAttr(v, pl.VAlign.String())
	e.CreateAttr(vp, trimFloat(pl.VPosition*100))
	if pl.ZPosition != 0 {
		e.CreateAttr(z, trimFloat(pl.ZPosition*100))
	}
}

func boolAttr(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}

// trimFloat formats with six decimals and strips trailing zeros so a
// fraction scaled to percent prints cleanly.
func trimFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// indentXML pretty-prints the document but leaves any element holding
// character data untouched, so text content survives a round trip.
func indentXML(doc *etree.Document) {
	root := doc.Root()
	if root == nil {
		return
	}
	indentElement(root, 0)
	doc.InsertChildAt(root.Index(), etree.NewText("\n"))
}

func indentElement(e *etree.Element, depth int) {
	if len(e.ChildElements()) == 0 {
		return
	}
	for _, tok := range e.Child {
		if cd, ok := tok.(*etree.CharData); ok && strings.TrimSpace(cd.Data) != "" {
			return
		}
	}
	for _, c := range e.ChildElements() {
		indentElement(c, depth+1)
	}
	inner := "\n" + strings.Repeat("  ", depth+1)
	for i := len(e.Child) - 1; i >= 0; i-- {
		if _, ok := e.Child[i].(*etree.Element); ok {
			e.InsertChildAt(i, etree.NewText(inner))
		}
	}
	e.CreateCharData("\n" + strings.Repeat("  ", depth))
}
