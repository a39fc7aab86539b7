package subtitle

import (
	"strconv"

	"github.com/beevik/etree"

	"cinekit.dev/dcp/asset"
	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/mxf"
	"cinekit.dev/dcp/urnutil"
	"cinekit.dev/dcp/value"
)

const smpteSubtitleNS = "http://www.smpte-ra.org/schemas/428-7/2010/DCST"

// SMPTEAsset is a timed text asset wrapped in MXF. The document carries
// its own <Id>, distinct from the asset identifier used by the PKL and
// ASSETMAP.
type SMPTEAsset struct {
	asset.Common
	// XMLID identifies the document inside the wrapper.
	XMLID            string
	ContentTitleText string
	AnnotationText   string
	IssueDate        value.LocalTime
	ReelNumber       int
	Language         value.LanguageTag
	EditRate         value.Fraction
	TimeCodeRate     int
	// StartTime is optional; nil omits the element.
	StartTime *value.Time
	// LoadFonts reference fonts: ID is the name <Font Id=...> refers
	// to, URI the urn:uuid of the wrapped resource.
	LoadFonts []LoadFont
	fonts     map[string][]byte
	Items     []Item

	keyID string
}

func NewSMPTEAsset() *SMPTEAsset {
	start := value.Time{TCR: 24}
	return &SMPTEAsset{
		Common:       asset.NewCommon("", ""),
		XMLID:        urnutil.NewUUID(),
		IssueDate:    value.NowLocalTime(),
		ReelNumber:   1,
		EditRate:     value.Fraction{Numerator: 24, Denominator: 1},
		TimeCodeRate: 24,
		StartTime:    &start,
	}
}

func (a *SMPTEAsset) PKLType(value.Standard) string { return "application/mxf" }

// Encrypted reports whether the wrapper carried a cryptographic key ID.
func (a *SMPTEAsset) Encrypted() bool { return a.keyID != "" }

func (a *SMPTEAsset) KeyID() (string, bool) { return a.keyID, a.keyID != "" }

// AddFont stores font bytes under the given identifier and records the
// LoadFont reference.
func (a *SMPTEAsset) AddFont(id string, data []byte) {
	if a.fonts == nil {
		a.fonts = map[string][]byte{}
	}
	a.fonts[id] = data
	for _, f := range a.LoadFonts {
		if f.ID == id {
			return
		}
	}
	a.LoadFonts = append(a.LoadFonts, LoadFont{ID: id, URI: urnutil.NewUUID()})
}

// Font returns stored font bytes.
func (a *SMPTEAsset) Font(id string) ([]byte, bool) {
	data, ok := a.fonts[id]
	return data, ok
}

// FontSizes returns the byte size of each stored font.
func (a *SMPTEAsset) FontSizes() map[string]int {
	out := map[string]int{}
	for id, data := range a.fonts {
		out[id] = len(data)
	}
	return out
}

// ParseSMPTEDocument reads a SubtitleReel document.
func ParseSMPTEDocument(data []byte) (*SMPTEAsset, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, dcperr.Wrap(dcperr.KindXML, "cannot parse subtitle document", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "SubtitleReel" {
		return nil, dcperr.New(dcperr.KindXML, "document is not a SubtitleReel")
	}

	a := &SMPTEAsset{Common: asset.NewCommon("", "")}
	a.XMLID = urnutil.TrimPrefix(childText(root, "Id"))
	a.ContentTitleText = childText(root, "ContentTitleText")
	a.AnnotationText = childText(root, "AnnotationText")
	if v := childText(root, "IssueDate"); v != "" {
		d, err := value.ParseLocalTime(v)
		if err != nil {
			return nil, err
		}
		a.IssueDate = d
	}
	if v := childText(root, "ReelNumber"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, dcperr.Wrap(dcperr.KindXML, "bad ReelNumber", err)
		}
		a.ReelNumber = n
	}
	if v := childText(root, "Language"); v != "" {
		l, err := value.ParseLanguageTag(v)
		if err != nil {
			return nil, err
		}
		a.Language = l
	}
	if v := childText(root, "EditRate"); v != "" {
		f, err := value.ParseFraction(v)
		if err != nil {
			return nil, err
		}
		a.EditRate = f
	}
	a.TimeCodeRate = 24
	if v := childText(root, "TimeCodeRate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, dcperr.Wrap(dcperr.KindXML, "bad TimeCodeRate", err)
		}
		a.TimeCodeRate = n
	}
	if v := childText(root, "StartTime"); v != "" {
		t, err := value.ParseTime(v, a.TimeCodeRate)
		if err != nil {
			return nil, err
		}
		a.StartTime = &t
	}
	for _, lf := range root.SelectElements("LoadFont") {
		a.LoadFonts = append(a.LoadFonts, LoadFont{
			ID:  attrEither(lf, "ID", "Id"),
			URI: urnutil.TrimPrefix(lf.Text()),
		})
	}

	p := &parser{tcr: a.TimeCodeRate}
	if err := p.collect(root, defaultStyle()); err != nil {
		return nil, err
	}
	a.Items = p.items
	return a, nil
}

// ReadSMPTE unwraps the document from the MXF at path. An empty id
// allocates a fresh asset identifier.
func ReadSMPTE(id, path string) (*SMPTEAsset, error) {
	d, err := mxf.Default.Probe(path)
	if err != nil {
		return nil, err
	}
	if d.Kind != mxf.KindTimedText {
		return nil, dcperr.InFile(dcperr.KindMXFFile, "not a timed text asset", path)
	}
	r, err := mxf.Default.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := r.ReadTimedText()
	if err != nil {
		return nil, err
	}
	a, err := ParseSMPTEDocument(data)
	if err != nil {
		return nil, err
	}
	a.Common = asset.NewCommon(id, path)
	a.keyID = d.KeyID
	return a, nil
}

// Document renders the SubtitleReel XML.
func (a *SMPTEAsset) Document() ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("SubtitleReel")
	root.CreateAttr("xmlns", smpteSubtitleNS)
	root.CreateElement("Id").SetText(urnutil.AddPrefix(a.XMLID))
	root.CreateElement("ContentTitleText").SetText(a.ContentTitleText)
	if a.AnnotationText != "" {
		root.CreateElement("AnnotationText").SetText(a.AnnotationText)
	}
	root.CreateElement("IssueDate").SetText(a.IssueDate.String())
	root.CreateElement("ReelNumber").SetText(strconv.Itoa(a.ReelNumber))
	if !a.Language.IsZero() {
		root.CreateElement("Language").SetText(a.Language.String())
	}
	root.CreateElement("EditRate").SetText(a.EditRate.String())
	root.CreateElement("TimeCodeRate").SetText(strconv.Itoa(a.TimeCodeRate))
	if a.StartTime != nil {
		root.CreateElement("StartTime").SetText(a.StartTime.String())
	}
	for _, lf := range a.LoadFonts {
		e := root.CreateElement("LoadFont")
		if lf.ID != "" {
			e.CreateAttr("ID", lf.ID)
		}
		e.SetText(urnutil.AddPrefix(lf.URI))
	}
	list := root.CreateElement("SubtitleList")
	writeItems(list, a.Items, value.SMPTE)
	indentXML(doc)
	return doc.WriteToBytes()
}

// Write wraps the document in MXF at path through the installed
// backend.
func (a *SMPTEAsset) Write(path string) error {
	data, err := a.Document()
	if err != nil {
		return err
	}
	w, err := mxf.Default.CreateWriter(path, mxf.Descriptor{
		Kind:     mxf.KindTimedText,
		EditRate: a.EditRate,
		KeyID:    a.keyID,
	})
	if err != nil {
		return err
	}
	if err := w.WriteFrame(data); err != nil {
		return err
	}
	if err := w.Finalize(); err != nil {
		return err
	}
	a.SetFile(path)
	a.SetHash("")
	return nil
}

// Equal compares header fields and the full subtitle list. The asset
// and document identifiers are excluded so that a written copy compares
// equal to its source.
func (a *SMPTEAsset) Equal(b *SMPTEAsset) bool {
	if a.ContentTitleText != b.ContentTitleText ||
		a.AnnotationText != b.AnnotationText ||
		a.ReelNumber != b.ReelNumber ||
		!a.Language.Equal(b.Language) ||
		a.EditRate != b.EditRate ||
		a.TimeCodeRate != b.TimeCodeRate {
		return false
	}
	if (a.StartTime == nil) != (b.StartTime == nil) {
		return false
	}
	if a.StartTime != nil && !a.StartTime.Equal(*b.StartTime) {
		return false
	}
	if len(a.LoadFonts) != len(b.LoadFonts) {
		return false
	}
	for i := range a.LoadFonts {
		if a.LoadFonts[i] != b.LoadFonts[i] {
			return false
		}
	}
	return ItemsEqual(a.Items, b.Items)
}
