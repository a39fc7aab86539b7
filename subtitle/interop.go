package subtitle

import (
	"os"
	"path/filepath"

	"github.com/beevik/etree"

	"cinekit.dev/dcp/asset"
	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/value"
)

// Interop subtitle times count 4ms ticks.
const interopTCR = 250

// LoadFont is a font reference: the identifier used by <Font> elements
// and, depending on the dialect, the URI of the sidecar font file or
// the urn:uuid of the wrapped resource.
type LoadFont struct {
	ID  string
	URI string
}

// InteropAsset is a standalone DCSubtitle document with sidecar fonts
// and PNGs.
type InteropAsset struct {
	asset.Common
	MovieTitle string
	ReelNumber string
	// Language is a free-form name in this dialect, e.g. "French".
	Language  string
	LoadFonts []LoadFont
	Items     []Item
}

func NewInteropAsset() *InteropAsset {
	return &InteropAsset{Common: asset.NewCommon("", "")}
}

func (a *InteropAsset) PKLType(value.Standard) string { return "text/xml" }

// ParseInterop reads a DCSubtitle document.
func ParseInterop(data []byte) (*InteropAsset, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, dcperr.Wrap(dcperr.KindXML, "cannot parse subtitle document", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "DCSubtitle" {
		return nil, dcperr.New(dcperr.KindXML, "document is not a DCSubtitle")
	}

	a := &InteropAsset{}
	id := childText(root, "SubtitleID")
	a.Common = asset.NewCommon(id, "")
	a.MovieTitle = childText(root, "MovieTitle")
	a.ReelNumber = childText(root, "ReelNumber")
	a.Language = childText(root, "Language")
	for _, lf := range root.SelectElements("LoadFont") {
		a.LoadFonts = append(a.LoadFonts, LoadFont{
			ID:  attrEither(lf, "Id", "ID"),
			URI: lf.SelectAttrValue("URI", ""),
		})
	}

	p := &parser{tcr: interopTCR}
	if err := p.collect(root, defaultStyle()); err != nil {
		return nil, err
	}
	a.Items = p.items
	return a, nil
}

// ReadInteropFile parses the document at path and loads referenced
// PNG images from its directory.
func ReadInteropFile(path string) (*InteropAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dcperr.Wrap(dcperr.KindRead, "cannot read subtitle file", err)
	}
	a, err := ParseInterop(data)
	if err != nil {
		return nil, err
	}
	a.SetFile(path)
	dir := filepath.Dir(path)
	for i, it := range a.Items {
		img, ok := it.(Image)
		if !ok || img.ID == "" {
			continue
		}
		if png, err := os.ReadFile(filepath.Join(dir, img.ID)); err == nil {
			img.PNG = png
			a.Items[i] = img
		}
	}
	return a, nil
}

// Document renders the DCSubtitle XML.
func (a *InteropAsset) Document() ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("DCSubtitle")
	root.CreateAttr("Version", "1.0")
	root.CreateElement("SubtitleID").SetText(a.ID())
	root.CreateElement("MovieTitle").SetText(a.MovieTitle)
	root.CreateElement("ReelNumber").SetText(a.ReelNumber)
	root.CreateElement("Language").SetText(a.Language)
	for _, lf := range a.LoadFonts {
		e := root.CreateElement("LoadFont")
		e.CreateAttr("Id", lf.ID)
		e.CreateAttr("URI", lf.URI)
	}
	writeItems(root, a.Items, value.Interop)
	indentXML(doc)
	return doc.WriteToBytes()
}

// WriteXML writes the document to path and records it as the asset
// file.
func (a *InteropAsset) WriteXML(path string) error {
	data, err := a.Document()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return dcperr.Wrap(dcperr.KindMisc, "cannot write subtitle file", err)
	}
	a.SetFile(path)
	a.SetHash("")
	return nil
}

// Equal compares header fields and the full subtitle list.
func (a *InteropAsset) Equal(b *InteropAsset) bool {
	if a.MovieTitle != b.MovieTitle || a.ReelNumber != b.ReelNumber || a.Language != b.Language {
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

func childText(e *etree.Element, tag string) string {
	if c := e.SelectElement(tag); c != nil {
		return c.Text()
	}
	return ""
}
