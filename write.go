package dcp

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"cinekit.dev/dcp/certs"
	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/pkl"
	"cinekit.dev/dcp/urnutil"
	"cinekit.dev/dcp/value"
)

// NameFormat shapes the file names of written playlists. %t expands to
// the document type ("cpl" or "pkl") and %i to the document ID.
type NameFormat string

const DefaultNameFormat NameFormat = "%t_%i.xml"

func (f NameFormat) Filename(docType, id string) string {
	s := strings.ReplaceAll(string(f), "%t", docType)
	return strings.ReplaceAll(s, "%i", id)
}

// WriteXML writes every XML file of the package: the CPLs, then the
// PKL, then VOLINDEX, and the asset map last. The asset map names the
// PKL by path and size, so a reader that finds it finds a complete
// package. signer may be nil for an unsigned package.
func (d *DCP) WriteXML(
	standard value.Standard,
	issuer, creator, issueDate, annotation string,
	signer *certs.Chain,
	nameFormat NameFormat,
) error {
	if nameFormat == "" {
		nameFormat = DefaultNameFormat
	}

	for _, c := range d.cpls {
		path := filepath.Join(d.dir, nameFormat.Filename("cpl", c.ID()))
		if err := c.WriteXML(path, signer); err != nil {
			return err
		}
	}

	var pk *pkl.PKL
	if len(d.pkls) == 0 {
		pk = pkl.New(standard, annotation, issuer, creator)
		pk.IssueDate = issueDate
		assets, err := d.Assets(false)
		if err != nil {
			return err
		}
		for _, a := range assets {
			if err := pk.AddPackable(a, "", nil); err != nil {
				return err
			}
		}
		d.pkls = append(d.pkls, pk)
	} else {
		pk = d.pkls[0]
	}

	pklPath := filepath.Join(d.dir, nameFormat.Filename("pkl", pk.ID()))
	if err := pk.WriteXML(pklPath, signer); err != nil {
		return err
	}

	if err := d.writeVolIndex(standard); err != nil {
		return err
	}
	if err := d.writeAssetMap(standard, pk, pklPath, issuer, creator, issueDate, annotation); err != nil {
		return err
	}
	d.standard = standard
	d.hasStandard = true
	return nil
}

func (d *DCP) writeVolIndex(standard value.Standard) error {
	name, ns := "VOLINDEX", volIndexInteropNS
	if standard == value.SMPTE {
		name, ns = "VOLINDEX.xml", volIndexSMPTENS
	}
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("VolumeIndex")
	root.CreateAttr("xmlns", ns)
	root.CreateElement("Index").SetText("1")
	doc.Indent(2)
	return writeDoc(doc, filepath.Join(d.dir, name))
}

func (d *DCP) writeAssetMap(
	standard value.Standard,
	pk *pkl.PKL,
	pklPath string,
	issuer, creator, issueDate, annotation string,
) error {
	name, ns := "ASSETMAP", assetMapInteropNS
	if standard == value.SMPTE {
		name, ns = "ASSETMAP.xml", assetMapSMPTENS
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("AssetMap")
	root.CreateAttr("xmlns", ns)
	root.CreateElement("Id").SetText(urnutil.AddPrefix(urnutil.NewUUID()))
	root.CreateElement("AnnotationText").SetText(annotation)
	// The header order differs between the dialects.
	if standard == value.Interop {
		root.CreateElement("VolumeCount").SetText("1")
		root.CreateElement("IssueDate").SetText(issueDate)
		root.CreateElement("Issuer").SetText(issuer)
		root.CreateElement("Creator").SetText(creator)
	} else {
		root.CreateElement("Creator").SetText(creator)
		root.CreateElement("VolumeCount").SetText("1")
		root.CreateElement("IssueDate").SetText(issueDate)
		root.CreateElement("Issuer").SetText(issuer)
	}

	list := root.CreateElement("AssetList")

	pklInfo, err := os.Stat(pklPath)
	if err != nil {
		return dcperr.Wrap(dcperr.KindRead, "cannot stat PKL", err)
	}
	e := list.CreateElement("Asset")
	e.CreateElement("Id").SetText(urnutil.AddPrefix(pk.ID()))
	e.CreateElement("PackingList").SetText("true")
	writeChunk(e, filepath.Base(pklPath), pklInfo.Size())

	assets, err := d.Assets(false)
	if err != nil {
		return err
	}
	for _, a := range assets {
		size, err := a.Size()
		if err != nil {
			return err
		}
		e := list.CreateElement("Asset")
		e.CreateElement("Id").SetText(urnutil.AddPrefix(a.ID()))
		rel, err := filepath.Rel(d.dir, a.File())
		if err != nil {
			rel = filepath.Base(a.File())
		}
		writeChunk(e, rel, size)
	}

	doc.Indent(2)
	path := filepath.Join(d.dir, name)
	if err := writeDoc(doc, path); err != nil {
		return err
	}
	d.assetMapPath = path
	return nil
}

func writeChunk(e *etree.Element, path string, length int64) {
	cl := e.CreateElement("ChunkList")
	c := cl.CreateElement("Chunk")
	c.CreateElement("Path").SetText(path)
	c.CreateElement("VolumeIndex").SetText("1")
	c.CreateElement("Offset").SetText("0")
	c.CreateElement("Length").SetText(strconv.FormatInt(length, 10))
}

func writeDoc(doc *etree.Document, path string) error {
	data, err := doc.WriteToBytes()
	if err != nil {
		return dcperr.Wrap(dcperr.KindMisc, "cannot serialize document", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return dcperr.Wrap(dcperr.KindMisc, "cannot write document", err)
	}
	return nil
}
