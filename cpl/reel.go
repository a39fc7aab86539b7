package cpl

import (
	"github.com/beevik/etree"

	"cinekit.dev/dcp/asset"
	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/urnutil"
	"cinekit.dev/dcp/value"
)

// Reel is one playback segment of a composition. It holds at most one
// of each main asset type plus any number of closed captions.
type Reel struct {
	ID             string
	AnnotationText string
	Picture        *ReelPicture
	Sound          *ReelSound
	Subtitle       *ReelSubtitle
	ClosedCaptions []*ReelClosedCaption
	Atmos          *ReelAtmos
	Markers        *ReelMarkers
}

func NewReel() *Reel {
	return &Reel{ID: urnutil.NewUUID()}
}

// Duration is the played length of the reel in edit units, taken from
// the picture track.
func (r *Reel) Duration() int64 {
	if r.Picture == nil {
		return 0
	}
	return r.Picture.ActualDuration()
}

// FileAssets returns every file-backed asset reference in the reel.
func (r *Reel) FileAssets() []*ReelAsset {
	var out []*ReelAsset
	if r.Picture != nil {
		out = append(out, &r.Picture.ReelAsset)
	}
	if r.Sound != nil {
		out = append(out, &r.Sound.ReelAsset)
	}
	if r.Subtitle != nil {
		out = append(out, &r.Subtitle.ReelAsset)
	}
	for _, cc := range r.ClosedCaptions {
		out = append(out, &cc.ReelAsset)
	}
	if r.Atmos != nil {
		out = append(out, &r.Atmos.ReelAsset)
	}
	return out
}

// Encrypted reports whether any asset in the reel is encrypted.
func (r *Reel) Encrypted() bool {
	for _, a := range r.FileAssets() {
		if a.Encrypted() {
			return true
		}
	}
	return false
}

// ResolveRefs binds unresolved references against the pool. Unmatched
// identifiers are returned.
func (r *Reel) ResolveRefs(pool []asset.Packable) []string {
	var missing []string
	for _, a := range r.FileAssets() {
		if !a.Ref.Resolve(pool) {
			missing = append(missing, a.Ref.ID())
		}
	}
	return missing
}

// toXML writes the reel. meta is non-nil only for the first reel of a
// SMPTE composition.
func (r *Reel) toXML(parent *etree.Element, standard value.Standard, meta *CompositionMetadata) {
	e := parent.CreateElement("Reel")
	e.CreateElement("Id").SetText(urnutil.AddPrefix(r.ID))
	if r.AnnotationText != "" {
		e.CreateElement("AnnotationText").SetText(r.AnnotationText)
	}
	list := e.CreateElement("AssetList")
	if r.Markers != nil && standard == value.SMPTE {
		r.Markers.toXML(list)
	}
	if meta != nil && standard == value.SMPTE {
		meta.toXML(list)
	}
	if r.Picture != nil {
		r.Picture.toXML(list, standard)
	}
	if r.Sound != nil {
		r.Sound.toXML(list, standard)
	}
	if r.Subtitle != nil {
		r.Subtitle.toXML(list, standard)
	}
	for _, cc := range r.ClosedCaptions {
		cc.toXML(list, standard)
	}
	if r.Atmos != nil {
		r.Atmos.toXML(list, standard)
	}
}

// reelFromXML also returns the composition metadata block when the reel
// carries one.
func reelFromXML(e *etree.Element) (*Reel, *CompositionMetadata, error) {
	r := &Reel{ID: urnutil.TrimPrefix(childText(e, "Id"))}
	r.AnnotationText = childText(e, "AnnotationText")
	list := e.SelectElement("AssetList")
	if list == nil {
		return nil, nil, dcperr.New(dcperr.KindXML, "reel has no AssetList")
	}
	var meta *CompositionMetadata
	for _, child := range list.ChildElements() {
		var err error
		switch child.Tag {
		case "MainPicture":
			r.Picture, err = pictureFromXML(child, false)
		case "MainStereoscopicPicture":
			r.Picture, err = pictureFromXML(child, true)
		case "MainSound":
			r.Sound, err = soundFromXML(child)
		case "MainSubtitle":
			r.Subtitle, err = subtitleFromXML(child)
		case "MainClosedCaption", "ClosedCaption":
			var cc *ReelClosedCaption
			if cc, err = closedCaptionFromXML(child); err == nil {
				r.ClosedCaptions = append(r.ClosedCaptions, cc)
			}
		case "AuxData":
			r.Atmos, err = atmosFromXML(child)
		case "MainMarkers":
			r.Markers, err = markersFromXML(child)
		case "CompositionMetadataAsset":
			meta, err = metadataFromXML(child)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return r, meta, nil
}

func childText(e *etree.Element, tag string) string {
	if c := e.SelectElement(tag); c != nil {
		return c.Text()
	}
	return ""
}
