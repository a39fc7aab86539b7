package cpl

import (
	"fmt"
	"os"

	"github.com/beevik/etree"

	"cinekit.dev/dcp/asset"
	"cinekit.dev/dcp/certs"
	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/urnutil"
	"cinekit.dev/dcp/value"
)

const (
	interopNS = "http://www.digicine.com/PROTO-ASDCP-CPL-20040511#"
	smpteNS   = "http://www.smpte-ra.org/schemas/429-7/2006/CPL"
	stereoNS  = "http://www.smpte-ra.org/schemas/429-10/2008/Main-Stereo-Picture-CPL"
	ccNS      = "http://www.smpte-ra.org/schemas/429-12/2008/TT"
	ccapNS    = "http://www.digicine.com/PROTO-ASDCP-CC-CPL-20070926#"
	atmosNS   = "http://www.dolby.com/schemas/2012/AD"
)

// ContentVersion labels one version of the content.
type ContentVersion struct {
	ID        string
	LabelText string
}

// Rating is an agency rating, round-tripped verbatim.
type Rating struct {
	Agency string
	Label  string
}

// CPL is a composition playlist.
type CPL struct {
	asset.Common
	AnnotationText   string
	IssueDate        string
	Issuer           string
	Creator          string
	ContentTitleText string
	ContentKind      value.ContentKind
	contentVersions  []ContentVersion
	Ratings          []Rating
	Reels            []*Reel
	Standard         value.Standard
	// Metadata is the 429-16 block, SMPTE only.
	Metadata *CompositionMetadata
}

// New builds an empty composition with one default content version.
func New(title string, kind value.ContentKind, standard value.Standard) *CPL {
	c := &CPL{
		Common:           asset.NewCommon(urnutil.NewUUID(), ""),
		IssueDate:        value.NowLocalTime().String(),
		ContentTitleText: title,
		ContentKind:      kind,
		Standard:         standard,
	}
	c.contentVersions = []ContentVersion{{
		ID:        urnutil.NewUUID(),
		LabelText: title,
	}}
	if standard == value.SMPTE {
		c.Metadata = NewCompositionMetadata()
		c.Metadata.FullContentTitleText = title
	}
	return c
}

// ContentVersions returns the version list in order.
func (c *CPL) ContentVersions() []ContentVersion {
	return c.contentVersions
}

// SetContentVersions replaces the list, rejecting duplicate
// identifiers.
func (c *CPL) SetContentVersions(versions []ContentVersion) error {
	seen := map[string]bool{}
	for _, v := range versions {
		key := urnutil.Normalize(v.ID)
		if seen[key] {
			return dcperr.New(dcperr.KindDuplicateID, "duplicate content version id "+v.ID)
		}
		seen[key] = true
	}
	c.contentVersions = versions
	return nil
}

func (c *CPL) PKLType(s value.Standard) string {
	if s == value.Interop {
		return "text/xml;asdcpKind=CPL"
	}
	return "text/xml"
}

// ReelAssets returns every file asset reference across all reels.
func (c *CPL) ReelAssets() []*ReelAsset {
	var out []*ReelAsset
	for _, r := range c.Reels {
		out = append(out, r.FileAssets()...)
	}
	return out
}

func (c *CPL) Encrypted() bool {
	for _, r := range c.Reels {
		if r.Encrypted() {
			return true
		}
	}
	return false
}

// ResolveRefs binds all reel references against the pool, returning the
// identifiers that stayed unresolved.
func (c *CPL) ResolveRefs(pool []asset.Packable) []string {
	var missing []string
	for _, r := range c.Reels {
		missing = append(missing, r.ResolveRefs(pool)...)
	}
	return missing
}

// AddKeys attaches content keys, indexed by key ID, to the matching
// encrypted assets. Keys for unknown IDs are ignored; attaching the
// same key twice is harmless.
func (c *CPL) AddKeys(keys map[string][]byte) {
	for _, ra := range c.ReelAssets() {
		if ra.KeyID == "" {
			continue
		}
		key, ok := keys[urnutil.Normalize(ra.KeyID)]
		if !ok {
			continue
		}
		if a, resolved := ra.Ref.Asset(); resolved {
			if ak, ok := a.(interface{ AttachKey([]byte) error }); ok {
				_ = ak.AttachKey(key)
			}
		}
	}
}

// Document renders the playlist, unsigned.
func (c *CPL) Document() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("CompositionPlaylist")
	if c.Standard == value.Interop {
		root.CreateAttr("xmlns", interopNS)
	} else {
		root.CreateAttr("xmlns", smpteNS)
	}
	c.declareExtraNamespaces(root)

	root.CreateElement("Id").SetText(urnutil.AddPrefix(c.ID()))
	if c.AnnotationText != "" {
		root.CreateElement("AnnotationText").SetText(c.AnnotationText)
	}
	root.CreateElement("IssueDate").SetText(c.IssueDate)
	if c.Issuer != "" {
		root.CreateElement("Issuer").SetText(c.Issuer)
	}
	root.CreateElement("Creator").SetText(c.Creator)
	root.CreateElement("ContentTitleText").SetText(c.ContentTitleText)
	root.CreateElement("ContentKind").SetText(c.ContentKind.String())
	for _, cv := range c.contentVersions {
		e := root.CreateElement("ContentVersion")
		e.CreateElement("Id").SetText(urnutil.AddPrefix(cv.ID))
		e.CreateElement("LabelText").SetText(cv.LabelText)
	}
	rl := root.CreateElement("RatingList")
	for _, r := range c.Ratings {
		e := rl.CreateElement("Rating")
		e.CreateElement("Agency").SetText(r.Agency)
		e.CreateElement("Label").SetText(r.Label)
	}
	reels := root.CreateElement("ReelList")
	for i, r := range c.Reels {
		var meta *CompositionMetadata
		if i == 0 {
			meta = c.Metadata
		}
		r.toXML(reels, c.Standard, meta)
	}
	return doc
}

func (c *CPL) declareExtraNamespaces(root *etree.Element) {
	var stereo, cc, atmos bool
	for _, r := range c.Reels {
		if r.Picture != nil && r.Picture.Stereo {
			stereo = true
		}
		if len(r.ClosedCaptions) > 0 {
			cc = true
		}
		if r.Atmos != nil {
			atmos = true
		}
	}
	if c.Standard != value.SMPTE {
		if cc {
			root.CreateAttr("xmlns:ccap", ccapNS)
		}
		return
	}
	if c.Metadata != nil {
		root.CreateAttr("xmlns:meta", metadataNS)
	}
	if stereo {
		root.CreateAttr("xmlns:msp", stereoNS)
	}
	if cc {
		root.CreateAttr("xmlns:cc", ccNS)
	}
	if atmos {
		root.CreateAttr("xmlns:axd", atmosNS)
	}
}

// WriteXML writes the playlist to path, signing it when a chain is
// given, and records path as the asset file.
func (c *CPL) WriteXML(path string, signer *certs.Chain) error {
	doc := c.Document()
	if signer != nil {
		if err := certs.SignDocument(doc, signer, c.Standard); err != nil {
			return err
		}
	}
	data, err := doc.WriteToBytes()
	if err != nil {
		return dcperr.Wrap(dcperr.KindMisc, "cannot serialize CPL", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return dcperr.Wrap(dcperr.KindMisc, "cannot write CPL", err)
	}
	c.SetFile(path)
	c.SetHash("")
	return nil
}

// Parse reads a playlist of either dialect.
func Parse(data []byte) (*CPL, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, dcperr.Wrap(dcperr.KindXML, "cannot parse CPL", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "CompositionPlaylist" {
		return nil, dcperr.New(dcperr.KindXML, "document is not a CompositionPlaylist")
	}

	c := &CPL{}
	switch root.SelectAttrValue("xmlns", "") {
	case interopNS:
		c.Standard = value.Interop
	case smpteNS:
		c.Standard = value.SMPTE
	default:
		return nil, dcperr.New(dcperr.KindXML, "unrecognised CompositionPlaylist namespace")
	}

	c.Common = asset.NewCommon(childText(root, "Id"), "")
	c.AnnotationText = childText(root, "AnnotationText")
	c.IssueDate = childText(root, "IssueDate")
	c.Issuer = childText(root, "Issuer")
	c.Creator = childText(root, "Creator")
	c.ContentTitleText = childText(root, "ContentTitleText")
	if v := childText(root, "ContentKind"); v != "" {
		k, err := value.ParseContentKind(v)
		if err != nil {
			return nil, err
		}
		c.ContentKind = k
	}
	var versions []ContentVersion
	for _, cv := range root.SelectElements("ContentVersion") {
		versions = append(versions, ContentVersion{
			ID:        urnutil.TrimPrefix(childText(cv, "Id")),
			LabelText: childText(cv, "LabelText"),
		})
	}
	if err := c.SetContentVersions(versions); err != nil {
		return nil, err
	}
	if rl := root.SelectElement("RatingList"); rl != nil {
		for _, r := range rl.SelectElements("Rating") {
			c.Ratings = append(c.Ratings, Rating{
				Agency: childText(r, "Agency"),
				Label:  childText(r, "Label"),
			})
		}
	}
	reels := root.SelectElement("ReelList")
	if reels == nil {
		return nil, dcperr.New(dcperr.KindXML, "CompositionPlaylist has no ReelList")
	}
	for _, re := range reels.SelectElements("Reel") {
		r, meta, err := reelFromXML(re)
		if err != nil {
			return nil, err
		}
		if meta != nil && c.Metadata == nil {
			c.Metadata = meta
		}
		c.Reels = append(c.Reels, r)
	}
	return c, nil
}

// ReadFile parses the playlist at path.
func ReadFile(path string) (*CPL, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dcperr.Wrap(dcperr.KindRead, "cannot read CPL", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	c.SetFile(path)
	return c, nil
}

// Equal compares two compositions structurally. Differences are
// reported through note, which may be nil.
func (c *CPL) Equal(o *CPL, note func(string)) bool {
	say := func(format string, args ...any) bool {
		if note != nil {
			note(fmt.Sprintf(format, args...))
		}
		return false
	}
	if c.ContentTitleText != o.ContentTitleText {
		return say("content title %q differs from %q", c.ContentTitleText, o.ContentTitleText)
	}
	if c.ContentKind != o.ContentKind {
		return say("content kind %s differs from %s", c.ContentKind, o.ContentKind)
	}
	if c.AnnotationText != o.AnnotationText {
		return say("annotation %q differs from %q", c.AnnotationText, o.AnnotationText)
	}
	if len(c.Ratings) != len(o.Ratings) {
		return say("rating counts differ")
	}
	for i := range c.Ratings {
		if c.Ratings[i] != o.Ratings[i] {
			return say("rating %d differs", i)
		}
	}
	if len(c.Reels) != len(o.Reels) {
		return say("reel counts differ: %d vs %d", len(c.Reels), len(o.Reels))
	}
	for i := range c.Reels {
		if !reelEqual(c.Reels[i], o.Reels[i]) {
			return say("reel %d differs", i)
		}
	}
	return true
}

func reelEqual(a, b *Reel) bool {
	aa, ba := a.FileAssets(), b.FileAssets()
	if len(aa) != len(ba) {
		return false
	}
	for i := range aa {
		x, y := aa[i], ba[i]
		if !urnutil.Equal(x.Ref.ID(), y.Ref.ID()) ||
			x.EditRate != y.EditRate ||
			x.IntrinsicDuration != y.IntrinsicDuration ||
			x.ActualDuration() != y.ActualDuration() ||
			x.KeyID != y.KeyID {
			return false
		}
	}
	return true
}
