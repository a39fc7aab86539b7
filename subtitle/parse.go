package subtitle

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/value"
)

// parser walks a subtitle document, threading the inherited style down
// through nested <Font> elements.
type parser struct {
	tcr   int
	items []Item
	// space accumulated from <Space> elements, applied to the next
	// string.
	pendingSpace float64
}

// collect gathers every subtitle under e. Container elements such as
// <SubtitleList> are traversed transparently.
func (p *parser) collect(e *etree.Element, st style) error {
	for _, child := range e.ChildElements() {
		switch child.Tag {
		case "Font":
			next, err := applyFontAttrs(st, child)
			if err != nil {
				return err
			}
			if err := p.collect(child, next); err != nil {
				return err
			}
		case "Subtitle":
			if err := p.subtitle(child, st); err != nil {
				return err
			}
		case "SubtitleList":
			if err := p.collect(child, st); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *parser) subtitle(e *etree.Element, st style) error {
	var tm Timing
	var err error
	if tm.In, err = p.timeAttr(e, "TimeIn"); err != nil {
		return err
	}
	if tm.Out, err = p.timeAttr(e, "TimeOut"); err != nil {
		return err
	}
	if tm.FadeUp, err = p.timeAttr(e, "FadeUpTime"); err != nil {
		return err
	}
	if tm.FadeDown, err = p.timeAttr(e, "FadeDownTime"); err != nil {
		return err
	}
	return p.subtitleBody(e, st, tm, e.SelectAttrValue("SpotNumber", ""))
}

func (p *parser) subtitleBody(e *etree.Element, st style, tm Timing, spot string) error {
	for _, child := range e.ChildElements() {
		switch child.Tag {
		case "Font":
			next, err := applyFontAttrs(st, child)
			if err != nil {
				return err
			}
			if err := p.subtitleBody(child, next, tm, spot); err != nil {
				return err
			}
		case "Text":
			if err := p.text(child, st, tm, spot); err != nil {
				return err
			}
		case "Image":
			if err := p.image(child, tm, spot); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *parser) text(e *etree.Element, st style, tm Timing, spot string) error {
	pl, err := placementAttrs(e)
	if err != nil {
		return err
	}
	dir := value.DirLTR
	if d := e.SelectAttrValue("Direction", ""); d != "" {
		if dir, err = value.ParseDirection(d); err != nil {
			return err
		}
	}
	p.pendingSpace = 0
	return p.textRuns(e, st, tm, pl, dir, spot)
}

// textRuns emits one String per text leaf, composing nested <Font>
// styles and accumulating <Space> into the next run.
func (p *parser) textRuns(e *etree.Element, st style, tm Timing, pl Placement, dir value.Direction, spot string) error {
	for _, tok := range e.Child {
		switch c := tok.(type) {
		case *etree.CharData:
			txt := c.Data
			if strings.TrimSpace(txt) == "" {
				continue
			}
			s := String{Timing: tm, Placement: pl, SpotNumber: spot, Direction: dir, Text: txt, SpaceBefore: p.pendingSpace}
			st.apply(&s)
			p.pendingSpace = 0
			p.items = append(p.items, s)
		case *etree.Element:
			switch c.Tag {
			case "Font":
				next, err := applyFontAttrs(st, c)
				if err != nil {
					return err
				}
				if err := p.textRuns(c, next, tm, pl, dir, spot); err != nil {
					return err
				}
			case "Space":
				sz, err := parseEm(c.SelectAttrValue("Size", "0.5"))
				if err != nil {
					return err
				}
				p.pendingSpace += sz
			case "Ruby":
				// ruby annotations are not modelled
			}
		}
	}
	return nil
}

func (p *parser) image(e *etree.Element, tm Timing, spot string) error {
	pl, err := placementAttrs(e)
	if err != nil {
		return err
	}
	ref := strings.TrimSpace(e.Text())
	p.items = append(p.items, Image{Timing: tm, Placement: pl, SpotNumber: spot, ID: ref})
	return nil
}

func (p *parser) timeAttr(e *etree.Element, name string) (value.Time, error) {
	v := e.SelectAttrValue(name, "")
	if v == "" {
		return value.Time{TCR: p.tcr}, nil
	}
	return parseTimeValue(v, p.tcr)
}

// parseTimeValue accepts "HH:MM:SS:FF" and a bare tick count, both
// interpreted at tcr.
func parseTimeValue(v string, tcr int) (value.Time, error) {
	if strings.Contains(v, ":") {
		return value.ParseTime(v, tcr)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return value.Time{}, dcperr.Wrap(dcperr.KindXML, "bad time "+strconv.Quote(v), err)
	}
	return value.NewTimeFromFrames(n, tcr), nil
}

// placementAttrs accepts both attribute spellings; newer documents
// write Valign, older ones VAlign. Attribute values are percentages and
// are scaled to the model's fractions.
func placementAttrs(e *etree.Element) (Placement, error) {
	pl := Placement{HAlign: value.HCenter, VAlign: value.VCenter}
	var err error
	if v := attrEither(e, "Halign", "HAlign"); v != "" {
		if pl.HAlign, err = value.ParseHAlign(v); err != nil {
			return pl, err
		}
	}
	if v := attrEither(e, "Hposition", "HPosition"); v != "" {
		if pl.HPosition, err = parsePercent(v); err != nil {
			return pl, err
		}
	}
	if v := attrEither(e, "Valign", "VAlign"); v != "" {
		if pl.VAlign, err = value.ParseVAlign(v); err != nil {
			return pl, err
		}
	}
	if v := attrEither(e, "Vposition", "VPosition"); v != "" {
		if pl.VPosition, err = parsePercent(v); err != nil {
			return pl, err
		}
	}
	if v := attrEither(e, "Zposition", "ZPosition"); v != "" {
		if pl.ZPosition, err = parsePercent(v); err != nil {
			return pl, err
		}
	}
	return pl, nil
}

func parsePercent(v string) (float64, error) {
	f, err := parseFloat(v)
	if err != nil {
		return 0, err
	}
	return f / 100, nil
}

func applyFontAttrs(st style, e *etree.Element) (style, error) {
	var err error
	if v := attrEither(e, "Id", "ID"); v != "" {
		st.fontID = v
	}
	if v := e.SelectAttrValue("Size", ""); v != "" {
		if st.size, err = strconv.Atoi(v); err != nil {
			return st, dcperr.Wrap(dcperr.KindXML, "bad font size "+strconv.Quote(v), err)
		}
	}
	if v := attrEither(e, "Color", "Colour"); v != "" {
		if st.colour, err = value.ParseColour(v); err != nil {
			return st, err
		}
	}
	if v := e.SelectAttrValue("Italic", ""); v != "" {
		st.italic = yes(v)
	}
	if v := e.SelectAttrValue("Weight", ""); v != "" {
		st.bold = strings.EqualFold(v, "bold")
	}
	if v := attrEither(e, "Underline", "Underlined"); v != "" {
		st.underline = yes(v)
	}
	if v := e.SelectAttrValue("Effect", ""); v != "" {
		if st.effect, err = value.ParseEffect(v); err != nil {
			return st, err
		}
	}
	if v := attrEither(e, "EffectColor", "EffectColour"); v != "" {
		if st.effectColour, err = value.ParseColour(v); err != nil {
			return st, err
		}
	}
	if v := e.SelectAttrValue("AspectAdjust", ""); v != "" {
		if st.aspectAdjust, err = parseFloat(v); err != nil {
			return st, err
		}
	}
	return st, nil
}

func attrEither(e *etree.Element, a, b string) string {
	if v := e.SelectAttrValue(a, ""); v != "" {
		return v
	}
	return e.SelectAttrValue(b, "")
}

func yes(v string) bool {
	return strings.EqualFold(v, "yes") || v == "1" || strings.EqualFold(v, "true")
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, dcperr.Wrap(dcperr.KindXML, "bad number "+strconv.Quote(v), err)
	}
	return f, nil
}

func parseEm(v string) (float64, error) {
	v = strings.TrimSuffix(strings.TrimSpace(v), "em")
	return parseFloat(v)
}
