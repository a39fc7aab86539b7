package cpl

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"

	"cinekit.dev/dcp/asset"
	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/subtitle"
	"cinekit.dev/dcp/urnutil"
	"cinekit.dev/dcp/value"
)

// ReelAsset carries the fields shared by every asset reference inside a
// reel.
type ReelAsset struct {
	Ref            Ref
	AnnotationText string
	EditRate       value.Fraction
	// IntrinsicDuration is the full length of the underlying essence.
	IntrinsicDuration int64
	// EntryPoint and Duration trim playback; nil omits the element.
	EntryPoint *int64
	Duration   *int64
	// Hash is the PKL hash copied into the CPL, empty if absent.
	Hash string
	// KeyID marks the reference as encrypted essence.
	KeyID string
}

// ActualDuration is the number of edit units actually played.
func (r *ReelAsset) ActualDuration() int64 {
	if r.Duration != nil {
		return *r.Duration
	}
	if r.EntryPoint != nil {
		return r.IntrinsicDuration - *r.EntryPoint
	}
	return r.IntrinsicDuration
}

// Encrypted reports whether the referenced essence carries a key ID.
func (r *ReelAsset) Encrypted() bool { return r.KeyID != "" }

// writeCommon emits the shared children in schema order. KeyId sits
// immediately before Hash. An empty AnnotationText is omitted entirely;
// some servers refuse a present-but-empty element.
func (r *ReelAsset) writeCommon(e *etree.Element, standard value.Standard) {
	e.CreateElement("Id").SetText(urnutil.AddPrefix(r.Ref.ID()))
	if r.AnnotationText != "" {
		e.CreateElement("AnnotationText").SetText(r.AnnotationText)
	}
	e.CreateElement("EditRate").SetText(r.EditRate.String())
	e.CreateElement("IntrinsicDuration").SetText(strconv.FormatInt(r.IntrinsicDuration, 10))
	if r.EntryPoint != nil {
		e.CreateElement("EntryPoint").SetText(strconv.FormatInt(*r.EntryPoint, 10))
	}
	if r.Duration != nil {
		e.CreateElement("Duration").SetText(strconv.FormatInt(*r.Duration, 10))
	}
	if r.KeyID != "" && standard == value.SMPTE {
		e.CreateElement("KeyId").SetText(urnutil.AddPrefix(r.KeyID))
	}
	if r.Hash != "" {
		e.CreateElement("Hash").SetText(r.Hash)
	}
}

func readCommon(e *etree.Element) (ReelAsset, error) {
	var r ReelAsset
	id := childText(e, "Id")
	if id == "" {
		return r, dcperr.New(dcperr.KindXML, "reel asset has no Id")
	}
	r.Ref = UnresolvedRef(id)
	r.AnnotationText = childText(e, "AnnotationText")
	if v := childText(e, "EditRate"); v != "" {
		f, err := value.ParseFraction(v)
		if err != nil {
			return r, err
		}
		r.EditRate = f
	}
	if v := childText(e, "IntrinsicDuration"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return r, dcperr.Wrap(dcperr.KindXML, "bad IntrinsicDuration", err)
		}
		r.IntrinsicDuration = n
	}
	if v := childText(e, "EntryPoint"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return r, dcperr.Wrap(dcperr.KindXML, "bad EntryPoint", err)
		}
		r.EntryPoint = &n
	}
	if v := childText(e, "Duration"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return r, dcperr.Wrap(dcperr.KindXML, "bad Duration", err)
		}
		r.Duration = &n
	}
	r.KeyID = urnutil.TrimPrefix(childText(e, "KeyId"))
	r.Hash = childText(e, "Hash")
	return r, nil
}

// ReelPicture references picture essence, flat or stereoscopic.
type ReelPicture struct {
	ReelAsset
	Stereo            bool
	FrameRate         value.Fraction
	ScreenAspectRatio value.Fraction
}

// PictureFromAsset builds a reference from probed mono picture essence.
func PictureFromAsset(a *asset.MonoPicture) *ReelPicture {
	p := &ReelPicture{
		ReelAsset: reelAssetFromMXF(&a.MXF),
		FrameRate: a.EditRate(),
	}
	sz := a.PictureSize()
	p.ScreenAspectRatio = value.Fraction{Numerator: sz.Width, Denominator: sz.Height}
	return p
}

// PictureFromStereoAsset builds a stereoscopic reference.
func PictureFromStereoAsset(a *asset.StereoPicture) *ReelPicture {
	p := &ReelPicture{
		ReelAsset: reelAssetFromMXF(&a.MXF),
		Stereo:    true,
		FrameRate: a.EditRate(),
	}
	sz := a.PictureSize()
	p.ScreenAspectRatio = value.Fraction{Numerator: sz.Width, Denominator: sz.Height}
	return p
}

func reelAssetFromMXF(m *asset.MXF) ReelAsset {
	r := ReelAsset{
		Ref:               Ref{id: m.ID(), a: m},
		EditRate:          m.EditRate(),
		IntrinsicDuration: m.IntrinsicDuration(),
	}
	if kid, ok := m.KeyID(); ok {
		r.KeyID = kid
	}
	return r
}

func (p *ReelPicture) elementName(standard value.Standard) string {
	if p.Stereo {
		if standard == value.SMPTE {
			return "msp:MainStereoscopicPicture"
		}
		return "MainStereoscopicPicture"
	}
	return "MainPicture"
}

func (p *ReelPicture) toXML(parent *etree.Element, standard value.Standard) {
	e := parent.CreateElement(p.elementName(standard))
	p.writeCommon(e, standard)
	e.CreateElement("FrameRate").SetText(p.FrameRate.String())
	if standard == value.SMPTE {
		e.CreateElement("ScreenAspectRatio").SetText(p.ScreenAspectRatio.String())
	} else {
		e.CreateElement("ScreenAspectRatio").SetText(fmt.Sprintf("%.2f", p.ScreenAspectRatio.Float()))
	}
}

func pictureFromXML(e *etree.Element, stereo bool) (*ReelPicture, error) {
	common, err := readCommon(e)
	if err != nil {
		return nil, err
	}
	p := &ReelPicture{ReelAsset: common, Stereo: stereo}
	if v := childText(e, "FrameRate"); v != "" {
		if p.FrameRate, err = value.ParseFraction(v); err != nil {
			return nil, err
		}
	}
	if v := childText(e, "ScreenAspectRatio"); v != "" {
		if f, err := value.ParseFraction(v); err == nil {
			p.ScreenAspectRatio = f
		}
		// Interop writes a decimal ratio; keep it as hundredths.
		if p.ScreenAspectRatio == (value.Fraction{}) {
			if fl, err := strconv.ParseFloat(v, 64); err == nil {
				p.ScreenAspectRatio = value.Fraction{Numerator: int(fl * 100), Denominator: 100}
			}
		}
	}
	return p, nil
}

// ReelSound references sound essence.
type ReelSound struct {
	ReelAsset
	Language string
}

func SoundFromAsset(a *asset.Sound) *ReelSound {
	return &ReelSound{ReelAsset: reelAssetFromMXF(&a.MXF), Language: a.Language}
}

func (s *ReelSound) toXML(parent *etree.Element, standard value.Standard) {
	e := parent.CreateElement("MainSound")
	s.writeCommon(e, standard)
	if s.Language != "" {
		e.CreateElement("Language").SetText(s.Language)
	}
}

func soundFromXML(e *etree.Element) (*ReelSound, error) {
	common, err := readCommon(e)
	if err != nil {
		return nil, err
	}
	return &ReelSound{ReelAsset: common, Language: childText(e, "Language")}, nil
}

// ReelSubtitle references a main subtitle asset of either dialect.
type ReelSubtitle struct {
	ReelAsset
	Language string
}

// SubtitleFromSMPTE wraps an MXF timed text asset. Duration comes from
// the reel since the wrapper does not know the picture length.
func SubtitleFromSMPTE(a *subtitle.SMPTEAsset, intrinsicDuration int64) *ReelSubtitle {
	r := ReelAsset{
		Ref:               NewRef(a),
		EditRate:          a.EditRate,
		IntrinsicDuration: intrinsicDuration,
	}
	if kid, ok := a.KeyID(); ok {
		r.KeyID = kid
	}
	return &ReelSubtitle{ReelAsset: r, Language: a.Language.String()}
}

// SubtitleFromInterop wraps a standalone subtitle document.
func SubtitleFromInterop(a *subtitle.InteropAsset, editRate value.Fraction, intrinsicDuration int64) *ReelSubtitle {
	return &ReelSubtitle{
		ReelAsset: ReelAsset{
			Ref:               NewRef(a),
			EditRate:          editRate,
			IntrinsicDuration: intrinsicDuration,
		},
		Language: a.Language,
	}
}

func (s *ReelSubtitle) toXML(parent *etree.Element, standard value.Standard) {
	e := parent.CreateElement("MainSubtitle")
	s.writeCommon(e, standard)
	if s.Language != "" {
		e.CreateElement("Language").SetText(s.Language)
	}
}

func subtitleFromXML(e *etree.Element) (*ReelSubtitle, error) {
	common, err := readCommon(e)
	if err != nil {
		return nil, err
	}
	return &ReelSubtitle{ReelAsset: common, Language: childText(e, "Language")}, nil
}

// ReelClosedCaption references a closed caption asset; a reel may carry
// several.
type ReelClosedCaption struct {
	ReelAsset
	Language string
}

func ClosedCaptionFromSMPTE(a *subtitle.SMPTEAsset, intrinsicDuration int64) *ReelClosedCaption {
	r := ReelAsset{
		Ref:               NewRef(a),
		EditRate:          a.EditRate,
		IntrinsicDuration: intrinsicDuration,
	}
	if kid, ok := a.KeyID(); ok {
		r.KeyID = kid
	}
	return &ReelClosedCaption{ReelAsset: r, Language: a.Language.String()}
}

func (c *ReelClosedCaption) toXML(parent *etree.Element, standard value.Standard) {
	name := "cc:MainClosedCaption"
	if standard == value.Interop {
		name = "ccap:MainClosedCaption"
	}
	e := parent.CreateElement(name)
	c.writeCommon(e, standard)
	if c.Language != "" {
		e.CreateElement("Language").SetText(c.Language)
	}
}

func closedCaptionFromXML(e *etree.Element) (*ReelClosedCaption, error) {
	common, err := readCommon(e)
	if err != nil {
		return nil, err
	}
	return &ReelClosedCaption{ReelAsset: common, Language: childText(e, "Language")}, nil
}

// ReelAtmos references immersive audio essence.
type ReelAtmos struct {
	ReelAsset
}

func AtmosFromAsset(a *asset.Atmos) *ReelAtmos {
	return &ReelAtmos{ReelAsset: reelAssetFromMXF(&a.MXF)}
}

func (a *ReelAtmos) toXML(parent *etree.Element, standard value.Standard) {
	e := parent.CreateElement("axd:AuxData")
	a.writeCommon(e, standard)
	e.CreateElement("axd:DataType").SetText(atmosDataType)
}

// Dolby ATMOS aux data type label.
const atmosDataType = "urn:smpte:ul:060E2B34.04010105.0E090604.00000000"

func atmosFromXML(e *etree.Element) (*ReelAtmos, error) {
	common, err := readCommon(e)
	if err != nil {
		return nil, err
	}
	return &ReelAtmos{ReelAsset: common}, nil
}
