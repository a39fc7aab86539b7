// Package pkl models packing lists: the signed inventory of files in a
// package, with their hashes, sizes and types.
package pkl

import (
	"os"
	"strconv"

	"github.com/beevik/etree"

	"cinekit.dev/dcp/asset"
	"cinekit.dev/dcp/certs"
	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/urnutil"
	"cinekit.dev/dcp/value"
)

const (
	interopNS = "http://www.digicine.com/PROTO-ASDCP-PKL-20040311#"
	smpteNS   = "http://www.smpte-ra.org/schemas/429-8/2007/PKL"
)

// Asset is one packing list entry.
type Asset struct {
	ID             string
	AnnotationText string
	Hash           string
	Size           int64
	Type           string
	// OriginalFileName is optional and SMPTE only.
	OriginalFileName string
}

// PKL is a packing list.
type PKL struct {
	asset.Common
	AnnotationText string
	IssueDate      string
	Issuer         string
	Creator        string
	Standard       value.Standard
	assets         []Asset
}

func New(standard value.Standard, annotation, issuer, creator string) *PKL {
	return &PKL{
		Common:         asset.NewCommon(urnutil.NewUUID(), ""),
		AnnotationText: annotation,
		IssueDate:      value.NowLocalTime().String(),
		Issuer:         issuer,
		Creator:        creator,
		Standard:       standard,
	}
}

func (p *PKL) Assets() []Asset { return p.assets }

// Add appends an entry verbatim.
func (p *PKL) Add(a Asset) {
	a.ID = urnutil.TrimPrefix(a.ID)
	p.assets = append(p.assets, a)
}

// AddPackable hashes and measures pk and appends its entry. progress
// may be nil.
func (p *PKL) AddPackable(pk asset.Packable, annotation string, progress func(float64)) error {
	hash, err := pk.Hash(progress)
	if err != nil {
		return err
	}
	size, err := pk.Size()
	if err != nil {
		return err
	}
	var original string
	if p.Standard == value.SMPTE {
		original = baseName(pk.File())
	}
	p.assets = append(p.assets, Asset{
		ID:               urnutil.TrimPrefix(pk.ID()),
		AnnotationText:   annotation,
		Hash:             hash,
		Size:             size,
		Type:             pk.PKLType(p.Standard),
		OriginalFileName: original,
	})
	return nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

func (p *PKL) find(id string) (Asset, bool) {
	for _, a := range p.assets {
		if urnutil.Equal(a.ID, id) {
			return a, true
		}
	}
	return Asset{}, false
}

// TypeOf returns the <Type> recorded for the asset.
func (p *PKL) TypeOf(id string) (string, bool) {
	a, ok := p.find(id)
	return a.Type, ok
}

// HashOf returns the recorded hash.
func (p *PKL) HashOf(id string) (string, bool) {
	a, ok := p.find(id)
	return a.Hash, ok
}

// SizeOf returns the recorded size.
func (p *PKL) SizeOf(id string) (int64, bool) {
	a, ok := p.find(id)
	return a.Size, ok
}

// Document renders the packing list, unsigned.
func (p *PKL) Document() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("PackingList")
	if p.Standard == value.Interop {
		root.CreateAttr("xmlns", interopNS)
	} else {
		root.CreateAttr("xmlns", smpteNS)
	}
	root.CreateElement("Id").SetText(urnutil.AddPrefix(p.ID()))
	if p.AnnotationText != "" {
		root.CreateElement("AnnotationText").SetText(p.AnnotationText)
	}
	root.CreateElement("IssueDate").SetText(p.IssueDate)
	root.CreateElement("Issuer").SetText(p.Issuer)
	root.CreateElement("Creator").SetText(p.Creator)
	list := root.CreateElement("AssetList")
	for _, a := range p.assets {
		e := list.CreateElement("Asset")
		e.CreateElement("Id").SetText(urnutil.AddPrefix(a.ID))
		if a.AnnotationText != "" {
			e.CreateElement("AnnotationText").SetText(a.AnnotationText)
		}
		e.CreateElement("Hash").SetText(a.Hash)
		e.CreateElement("Size").SetText(strconv.FormatInt(a.Size, 10))
		e.CreateElement("Type").SetText(a.Type)
		if a.OriginalFileName != "" && p.Standard == value.SMPTE {
			e.CreateElement("OriginalFileName").SetText(a.OriginalFileName)
		}
	}
	return doc
}

// WriteXML writes the packing list, signing when a chain is given, and
// records path as the list's file.
func (p *PKL) WriteXML(path string, signer *certs.Chain) error {
	doc := p.Document()
	if signer != nil {
		if err := certs.SignDocument(doc, signer, p.Standard); err != nil {
			return err
		}
	}
	data, err := doc.WriteToBytes()
	if err != nil {
		return dcperr.Wrap(dcperr.KindMisc, "cannot serialize PKL", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return dcperr.Wrap(dcperr.KindMisc, "cannot write PKL", err)
	}
	p.SetFile(path)
	p.SetHash("")
	return nil
}

// Parse reads a packing list of either dialect.
func Parse(data []byte) (*PKL, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, dcperr.Wrap(dcperr.KindXML, "cannot parse PKL", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "PackingList" {
		return nil, dcperr.New(dcperr.KindXML, "document is not a PackingList")
	}
	p := &PKL{}
	switch root.SelectAttrValue("xmlns", "") {
	case interopNS:
		p.Standard = value.Interop
	case smpteNS:
		p.Standard = value.SMPTE
	default:
		return nil, dcperr.New(dcperr.KindXML, "unrecognised PackingList namespace")
	}
	p.Common = asset.NewCommon(childText(root, "Id"), "")
	p.AnnotationText = childText(root, "AnnotationText")
	p.IssueDate = childText(root, "IssueDate")
	p.Issuer = childText(root, "Issuer")
	p.Creator = childText(root, "Creator")
	list := root.SelectElement("AssetList")
	if list == nil {
		return nil, dcperr.New(dcperr.KindXML, "PackingList has no AssetList")
	}
	for _, e := range list.SelectElements("Asset") {
		size, err := strconv.ParseInt(childText(e, "Size"), 10, 64)
		if err != nil {
			return nil, dcperr.Wrap(dcperr.KindXML, "bad asset Size", err)
		}
		p.assets = append(p.assets, Asset{
			ID:               urnutil.TrimPrefix(childText(e, "Id")),
			AnnotationText:   childText(e, "AnnotationText"),
			Hash:             childText(e, "Hash"),
			Size:             size,
			Type:             childText(e, "Type"),
			OriginalFileName: childText(e, "OriginalFileName"),
		})
	}
	return p, nil
}

// ReadFile parses the packing list at path.
func ReadFile(path string) (*PKL, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dcperr.Wrap(dcperr.KindRead, "cannot read PKL", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, err
	}
	p.SetFile(path)
	return p, nil
}

func childText(e *etree.Element, tag string) string {
	if c := e.SelectElement(tag); c != nil {
		return c.Text()
	}
	return ""
}
