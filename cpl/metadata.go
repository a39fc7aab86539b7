package cpl

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"

	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/urnutil"
	"cinekit.dev/dcp/value"
)

const (
	metadataNS            = "http://www.smpte-ra.org/schemas/429-16/2014/CPL-Metadata"
	releaseTerritoryScope = "http://www.smpte-ra.org/schemas/429-16/2014/CPL-Metadata#scope/release-territory/UNM49"
	appScope              = "http://isdcf.com/ns/cplmd/app"
	// Bv21Profile is the application property value marking a
	// composition as conforming to SMPTE RDD 52.
	Bv21Profile = "SMPTE-RDD-52:2020-Bv2.1"
)

// Luminance is a screen luminance with its unit.
type Luminance struct {
	Value float64
	// Unit is "candela-per-square-metre" or "foot-lambert".
	Unit string
}

// CompositionMetadata is the 429-16 metadata block written into the
// first reel of a composition.
type CompositionMetadata struct {
	ID                       string
	FullContentTitleText     string
	FullContentTitleLanguage string
	// ReleaseTerritory is a UN M49 region subtag.
	ReleaseTerritory string
	versionNumber    int
	Status           string
	Chain            string
	Distributor      string
	Facility         string
	Luminance        *Luminance
	// MainSoundConfiguration e.g. "51/L,R,C,LFE,Ls,Rs".
	MainSoundConfiguration string
	MainSoundSampleRate    int
	MainPictureStoredArea  value.Size
	MainPictureActiveArea  value.Size
	// AdditionalSubtitleLanguages lists subtitle languages beyond the
	// first; the first is taken from the main subtitle asset itself.
	AdditionalSubtitleLanguages []string
	// ApplicationProfile fills the extension metadata application
	// property; Bv21Profile for a Bv2.1 composition.
	ApplicationProfile string
}

func NewCompositionMetadata() *CompositionMetadata {
	return &CompositionMetadata{
		ID:                 urnutil.NewUUID(),
		versionNumber:      1,
		Status:             "final",
		ApplicationProfile: Bv21Profile,
	}
}

// SetVersionNumber rejects negative versions.
func (m *CompositionMetadata) SetVersionNumber(v int) error {
	if v < 0 {
		return dcperr.New(dcperr.KindBadSetting, fmt.Sprintf("version number %d cannot be negative", v))
	}
	m.versionNumber = v
	return nil
}

func (m *CompositionMetadata) VersionNumber() int { return m.versionNumber }

func (m *CompositionMetadata) toXML(parent *etree.Element) {
	e := parent.CreateElement("meta:CompositionMetadataAsset")
	e.CreateElement("Id").SetText(urnutil.AddPrefix(m.ID))
	ft := e.CreateElement("meta:FullContentTitleText")
	ft.SetText(m.FullContentTitleText)
	if m.FullContentTitleLanguage != "" {
		ft.CreateAttr("language", m.FullContentTitleLanguage)
	}
	if m.ReleaseTerritory != "" {
		rt := e.CreateElement("meta:ReleaseTerritory")
		rt.CreateAttr("scope", releaseTerritoryScope)
		rt.SetText(m.ReleaseTerritory)
	}
	e.CreateElement("meta:VersionNumber").SetText(strconv.Itoa(m.versionNumber))
	if m.Status != "" {
		e.CreateElement("meta:Status").SetText(m.Status)
	}
	if m.Chain != "" {
		e.CreateElement("meta:Chain").SetText(m.Chain)
	}
	if m.Distributor != "" {
		e.CreateElement("meta:Distributor").SetText(m.Distributor)
	}
	if m.Facility != "" {
		e.CreateElement("meta:Facility").SetText(m.Facility)
	}
	if m.Luminance != nil {
		le := e.CreateElement("meta:Luminance")
		le.CreateAttr("units", m.Luminance.Unit)
		le.SetText(strconv.FormatFloat(m.Luminance.Value, 'f', -1, 64))
	}
	if m.MainSoundConfiguration != "" {
		e.CreateElement("meta:MainSoundConfiguration").SetText(m.MainSoundConfiguration)
	}
	if m.MainSoundSampleRate != 0 {
		e.CreateElement("meta:MainSoundSampleRate").SetText(fmt.Sprintf("%d 1", m.MainSoundSampleRate))
	}
	if m.MainPictureStoredArea != (value.Size{}) {
		se := e.CreateElement("meta:MainPictureStoredArea")
		se.CreateElement("meta:Width").SetText(strconv.Itoa(m.MainPictureStoredArea.Width))
		se.CreateElement("meta:Height").SetText(strconv.Itoa(m.MainPictureStoredArea.Height))
	}
	if m.MainPictureActiveArea != (value.Size{}) {
		ae := e.CreateElement("meta:MainPictureActiveArea")
		ae.CreateElement("meta:Width").SetText(strconv.Itoa(m.MainPictureActiveArea.Width))
		ae.CreateElement("meta:Height").SetText(strconv.Itoa(m.MainPictureActiveArea.Height))
	}
	if len(m.AdditionalSubtitleLanguages) > 0 {
		sl := e.CreateElement("meta:MainSubtitleLanguageList")
		for _, l := range m.AdditionalSubtitleLanguages {
			sl.CreateElement("meta:SubtitleLanguage").SetText(l)
		}
	}
	if m.ApplicationProfile != "" {
		xl := e.CreateElement("meta:ExtensionMetadataList")
		xm := xl.CreateElement("meta:ExtensionMetadata")
		xm.CreateAttr("scope", appScope)
		xm.CreateElement("meta:Name").SetText("Application")
		pl := xm.CreateElement("meta:PropertyList")
		p := pl.CreateElement("meta:Property")
		p.CreateElement("meta:Name").SetText("DCP Constraints Profile")
		p.CreateElement("meta:Value").SetText(m.ApplicationProfile)
	}
}

func metadataFromXML(e *etree.Element) (*CompositionMetadata, error) {
	m := &CompositionMetadata{ID: urnutil.TrimPrefix(childText(e, "Id"))}
	if ft := e.SelectElement("FullContentTitleText"); ft != nil {
		m.FullContentTitleText = ft.Text()
		m.FullContentTitleLanguage = ft.SelectAttrValue("language", "")
	}
	m.ReleaseTerritory = childText(e, "ReleaseTerritory")
	if v := childText(e, "VersionNumber"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, dcperr.Wrap(dcperr.KindXML, "bad VersionNumber", err)
		}
		if err := m.SetVersionNumber(n); err != nil {
			return nil, err
		}
	}
	m.Status = childText(e, "Status")
	m.Chain = childText(e, "Chain")
	m.Distributor = childText(e, "Distributor")
	m.Facility = childText(e, "Facility")
	if le := e.SelectElement("Luminance"); le != nil {
		v, err := strconv.ParseFloat(le.Text(), 64)
		if err != nil {
			return nil, dcperr.Wrap(dcperr.KindXML, "bad Luminance", err)
		}
		m.Luminance = &Luminance{Value: v, Unit: le.SelectAttrValue("units", "")}
	}
	m.MainSoundConfiguration = childText(e, "MainSoundConfiguration")
	if v := childText(e, "MainSoundSampleRate"); v != "" {
		f, err := value.ParseFraction(v)
		if err != nil {
			return nil, err
		}
		m.MainSoundSampleRate = f.Numerator / f.Denominator
	}
	if se := e.SelectElement("MainPictureStoredArea"); se != nil {
		m.MainPictureStoredArea = sizeFromXML(se)
	}
	if ae := e.SelectElement("MainPictureActiveArea"); ae != nil {
		m.MainPictureActiveArea = sizeFromXML(ae)
	}
	if sl := e.SelectElement("MainSubtitleLanguageList"); sl != nil {
		for _, l := range sl.SelectElements("SubtitleLanguage") {
			m.AdditionalSubtitleLanguages = append(m.AdditionalSubtitleLanguages, l.Text())
		}
	}
	if xl := e.SelectElement("ExtensionMetadataList"); xl != nil {
		for _, xm := range xl.SelectElements("ExtensionMetadata") {
			if childText(xm, "Name") != "Application" {
				continue
			}
			if pl := xm.SelectElement("PropertyList"); pl != nil {
				for _, p := range pl.SelectElements("Property") {
					if childText(p, "Name") == "DCP Constraints Profile" {
						m.ApplicationProfile = childText(p, "Value")
					}
				}
			}
		}
	}
	return m, nil
}

func sizeFromXML(e *etree.Element) value.Size {
	w, _ := strconv.Atoi(childText(e, "Width"))
	h, _ := strconv.Atoi(childText(e, "Height"))
	return value.Size{Width: w, Height: h}
}
