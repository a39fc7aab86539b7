// Package dcp is the package container: it locates the asset map,
// loads packing lists and compositions, resolves every reference
// between them, and writes complete packages back out.
package dcp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"

	"cinekit.dev/dcp/asset"
	"cinekit.dev/dcp/cpl"
	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/kdm"
	"cinekit.dev/dcp/pkl"
	"cinekit.dev/dcp/subtitle"
	"cinekit.dev/dcp/urnutil"
	"cinekit.dev/dcp/value"
)

const (
	assetMapInteropNS = "http://www.digicine.com/PROTO-ASDCP-AM-20040311#"
	assetMapSMPTENS   = "http://www.smpte-ra.org/schemas/429-9/2007/AM"
	volIndexInteropNS = "http://www.digicine.com/PROTO-ASDCP-VL-20040311#"
	volIndexSMPTENS   = "http://www.smpte-ra.org/schemas/429-9/2007/AM"
)

// ReadNote flags a non-fatal problem found while loading a package.
// Code values match the verifier's note codes so callers can merge
// them into a verification report.
type ReadNote struct {
	Code string
	File string
}

const (
	NoteEmptyAssetPath     = "EMPTY_ASSET_PATH"
	NoteMissingAsset       = "MISSING_ASSET"
	NoteMismatchedStandard = "MISMATCHED_STANDARD"
	NoteExternalAsset      = "EXTERNAL_ASSET"
)

// DCP is one package on disk.
type DCP struct {
	dir          string
	standard     value.Standard
	hasStandard  bool
	cpls         []*cpl.CPL
	pkls         []*pkl.PKL
	assets       []asset.Packable
	assetMapPath string
}

// New opens a package directory, creating it if needed. Nothing is
// read until Read is called.
func New(dir string) (*DCP, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dcperr.Wrap(dcperr.KindRead, "cannot create package directory", err)
	}
	return &DCP{dir: dir}, nil
}

func (d *DCP) Dir() string { return d.dir }

// AssetMapPath is the asset map located by Read or written by WriteXML.
func (d *DCP) AssetMapPath() string { return d.assetMapPath }

// Standard reports the dialect detected by Read.
func (d *DCP) Standard() (value.Standard, bool) { return d.standard, d.hasStandard }

func (d *DCP) CPLs() []*cpl.CPL { return d.cpls }
func (d *DCP) PKLs() []*pkl.PKL { return d.pkls }

// Add registers a composition for a later WriteXML.
func (d *DCP) Add(c *cpl.CPL) { d.cpls = append(d.cpls, c) }

// Read loads the package. Problems severe enough to make the rest of
// the package unreadable, a missing asset map above all, come back as
// errors; everything recoverable is appended to notes when notes is
// non-nil.
func (d *DCP) Read(notes *[]ReadNote) error {
	amPath, err := d.findAssetMap()
	if err != nil {
		return err
	}
	d.assetMapPath = amPath

	doc := etree.NewDocument()
	if err := doc.ReadFromFile(amPath); err != nil {
		return dcperr.Wrap(dcperr.KindXML, "cannot parse asset map", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "AssetMap" {
		return dcperr.New(dcperr.KindXML, "document is not an AssetMap")
	}
	switch root.SelectAttrValue("xmlns", "") {
	case assetMapInteropNS:
		d.standard = value.Interop
	case assetMapSMPTENS:
		d.standard = value.SMPTE
	default:
		return dcperr.New(dcperr.KindXML, "unrecognised AssetMap namespace")
	}
	d.hasStandard = true

	paths, pklPaths, err := d.assetMapEntries(root)
	if err != nil {
		return err
	}
	if len(pklPaths) == 0 {
		return dcperr.New(dcperr.KindXML, "no packing lists found in asset map")
	}
	for _, p := range pklPaths {
		pk, err := pkl.ReadFile(filepath.Join(d.dir, p))
		if err != nil {
			return err
		}
		if pk.Standard != d.standard {
			addNote(notes, NoteMismatchedStandard, pk.File())
		}
		d.pkls = append(d.pkls, pk)
	}

	if err := d.loadAssets(paths, notes); err != nil {
		return err
	}

	for _, c := range d.cpls {
		c.ResolveRefs(d.assets)
	}

	// References to assets outside this package.
	if notes != nil {
		for _, c := range d.cpls {
			for _, ra := range c.ReelAssets() {
				if _, ok := paths[urnutil.Normalize(ra.Ref.ID())]; !ra.Ref.Resolved() && !ok {
					addNote(notes, NoteExternalAsset, ra.Ref.ID())
				}
			}
		}
	}
	return nil
}

func (d *DCP) findAssetMap() (string, error) {
	for _, name := range []string{"ASSETMAP", "ASSETMAP.xml"} {
		p := filepath.Join(d.dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", dcperr.New(dcperr.KindRead,
		fmt.Sprintf("could not find ASSETMAP nor ASSETMAP.xml in %q", d.dir))
}

// assetMapEntries splits the asset list into plain files (id to path)
// and packing list paths.
func (d *DCP) assetMapEntries(root *etree.Element) (map[string]string, []string, error) {
	list := root.SelectElement("AssetList")
	if list == nil {
		return nil, nil, dcperr.New(dcperr.KindXML, "asset map has no AssetList")
	}
	paths := map[string]string{}
	var pklPaths []string
	for _, e := range list.SelectElements("Asset") {
		chunks := e.SelectElement("ChunkList")
		if chunks == nil || len(chunks.SelectElements("Chunk")) != 1 {
			return nil, nil, dcperr.New(dcperr.KindXML, "unsupported asset chunk count")
		}
		p := childText(chunks.SelectElement("Chunk"), "Path")
		p = strings.TrimPrefix(p, "file://")

		isPKL := false
		if pl := e.SelectElement("PackingList"); pl != nil {
			if d.standard == value.Interop {
				isPKL = true
			} else {
				isPKL = pl.Text() == "true"
			}
		}
		if isPKL {
			pklPaths = append(pklPaths, p)
		} else {
			paths[urnutil.Normalize(childText(e, "Id"))] = p
		}
	}
	return paths, pklPaths, nil
}

// loadAssets instantiates a typed asset for every non-PKL entry, using
// the PKL <Type> to choose the constructor.
func (d *DCP) loadAssets(paths map[string]string, notes *[]ReadNote) error {
	for id, rel := range paths {
		if rel == "" {
			// Seen in the wild; there is nothing to load.
			addNote(notes, NoteEmptyAssetPath, "")
			continue
		}
		path := filepath.Join(d.dir, rel)
		if _, err := os.Stat(path); err != nil {
			addNote(notes, NoteMissingAsset, path)
			continue
		}

		var pklType string
		for _, pk := range d.pkls {
			if t, ok := pk.TypeOf(id); ok {
				pklType = t
				break
			}
		}
		if pklType == "" {
			// In the asset map but in no PKL; not ours to load.
			continue
		}

		switch pklType {
		case "text/xml", "text/xml;asdcpKind=CPL":
			if err := d.loadXML(id, path, notes); err != nil {
				return err
			}
		case "application/mxf":
			a, _, err := asset.FromMXF(id, path)
			if err != nil {
				return err
			}
			if a == nil {
				// Timed text essence.
				sub, err := subtitle.ReadSMPTE(id, path)
				if err != nil {
					return err
				}
				d.assets = append(d.assets, sub)
			} else {
				d.assets = append(d.assets, a)
			}
		case "application/x-font-opentype", "application/ttf":
			d.assets = append(d.assets, asset.NewFont(id, path))
		case "image/png":
			// Interop subtitle sidecar; loaded with its subtitle.
		default:
			return dcperr.New(dcperr.KindRead,
				fmt.Sprintf("unknown asset type %q in PKL", pklType))
		}
	}
	return nil
}

// loadXML sniffs the root element of a text/xml asset; the type alone
// cannot distinguish a composition from an Interop subtitle or font.
func (d *DCP) loadXML(id, path string, notes *[]ReadNote) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return dcperr.Wrap(dcperr.KindRead, "cannot read asset", err)
	}
	probe := etree.NewDocument()
	if err := probe.ReadFromBytes(data); err != nil {
		// Interop fonts share the text/xml type but hold raw font data.
		d.assets = append(d.assets, asset.NewFont(id, path))
		return nil
	}
	root := probe.Root()
	if root == nil {
		return dcperr.New(dcperr.KindXML, fmt.Sprintf("XML error in %q", path))
	}
	switch root.Tag {
	case "CompositionPlaylist":
		c, err := cpl.ReadFile(path)
		if err != nil {
			return err
		}
		if c.Standard != d.standard {
			addNote(notes, NoteMismatchedStandard, path)
		}
		d.cpls = append(d.cpls, c)
	case "DCSubtitle":
		if d.standard == value.SMPTE {
			addNote(notes, NoteMismatchedStandard, path)
		}
		sub, err := subtitle.ReadInteropFile(path)
		if err != nil {
			return err
		}
		sub.SetID(id)
		d.assets = append(d.assets, sub)
	}
	return nil
}

// Assets returns every asset of the package including the CPLs
// themselves. With ignoreUnresolved false an unresolved reel reference
// is an error.
func (d *DCP) Assets(ignoreUnresolved bool) ([]asset.Packable, error) {
	var out []asset.Packable
	seen := map[string]bool{}
	add := func(a asset.Packable) {
		key := urnutil.Normalize(a.ID())
		if !seen[key] {
			seen[key] = true
			out = append(out, a)
		}
	}
	for _, c := range d.cpls {
		add(c)
		for _, ra := range c.ReelAssets() {
			a, resolved := ra.Ref.Asset()
			if !resolved {
				if ignoreUnresolved {
					continue
				}
				return nil, dcperr.New(dcperr.KindMisc,
					fmt.Sprintf("unresolved asset %s", ra.Ref.ID()))
			}
			add(a)
			if sub, ok := a.(*subtitle.InteropAsset); ok {
				dir := filepath.Dir(sub.File())
				for _, lf := range sub.LoadFonts {
					add(asset.NewFont(lf.ID, filepath.Join(dir, lf.URI)))
				}
			}
		}
	}
	return out, nil
}

func (d *DCP) Encrypted() bool {
	for _, c := range d.cpls {
		if c.Encrypted() {
			return true
		}
	}
	return false
}

// AddKDM attaches the keys of a decrypted message to the matching
// composition's assets. Keys for other compositions are ignored and
// applying the same message twice changes nothing.
func (d *DCP) AddKDM(k *kdm.DecryptedKDM) {
	keys := map[string][]byte{}
	for _, key := range k.Keys {
		keys[urnutil.Normalize(key.ID)] = key.Value
	}
	for _, c := range d.cpls {
		for _, key := range k.Keys {
			if urnutil.Equal(key.CPLID, c.ID()) {
				c.AddKeys(keys)
				break
			}
		}
	}
}

// Equal compares the compositions of two packages; every CPL must have
// an equal counterpart, in any order.
func (d *DCP) Equal(o *DCP, note func(string)) bool {
	if note == nil {
		note = func(string) {}
	}
	if len(d.cpls) != len(o.cpls) {
		note(fmt.Sprintf("CPL counts differ: %d vs %d", len(d.cpls), len(o.cpls)))
		return false
	}
	ok := true
	for _, a := range d.cpls {
		found := false
		for _, b := range o.cpls {
			if a.Equal(b, note) {
				found = true
				break
			}
		}
		if !found {
			ok = false
		}
	}
	return ok
}

// DirectoriesFromFiles maps a set of files belonging to one or more
// packages to the package directories, recognised by their asset maps.
func DirectoriesFromFiles(files []string) []string {
	var dirs []string
	for _, f := range files {
		base := filepath.Base(f)
		if base == "ASSETMAP" || base == "ASSETMAP.xml" {
			dirs = append(dirs, filepath.Dir(f))
		}
	}
	return dirs
}

func addNote(notes *[]ReadNote, code, file string) {
	if notes != nil {
		*notes = append(*notes, ReadNote{Code: code, File: file})
	}
}

func childText(e *etree.Element, tag string) string {
	if e == nil {
		return ""
	}
	if c := e.SelectElement(tag); c != nil {
		return c.Text()
	}
	return ""
}
