package verify

import (
	"os"
	"path/filepath"

	"github.com/beevik/etree"
	"github.com/lestrrat-go/libxml2"
	"github.com/lestrrat-go/libxml2/xsd"
)

// Validator checks one XML document. path names the source file for
// reporting only; the data has already been read.
type Validator interface {
	Validate(data []byte, path string) []Note
}

// schemaFiles maps a document's root namespace to its schema file.
var schemaFiles = map[string]string{
	"http://www.smpte-ra.org/schemas/429-7/2006/CPL":    "SMPTE-429-7-2006-CPL.xsd",
	"http://www.smpte-ra.org/schemas/429-8/2007/PKL":    "SMPTE-429-8-2006-PKL.xsd",
	"http://www.smpte-ra.org/schemas/429-9/2007/AM":     "SMPTE-429-9-2007-AM.xsd",
	"http://www.smpte-ra.org/schemas/428-7/2010/DCST":   "SMPTE-428-7-2010-DCST.xsd",
	"http://www.digicine.com/PROTO-ASDCP-CPL-20040511#": "PROTO-ASDCP-CPL-20040511.xsd",
	"http://www.digicine.com/PROTO-ASDCP-PKL-20040311#": "PROTO-ASDCP-PKL-20040311.xsd",
	"http://www.digicine.com/PROTO-ASDCP-AM-20040311#":  "PROTO-ASDCP-AM-20040311.xsd",
}

// Interop subtitle files carry no namespace; they are recognised by
// their root element instead.
const interopSubtitleSchema = "DCSubtitle.v1.mattsson.xsd"

// XSDValidator validates documents against the XML schemas found in
// Dir. A document whose schema file is absent from Dir is skipped, so a
// partial schema set narrows validation rather than breaking it. Not
// safe for concurrent use.
type XSDValidator struct {
	Dir     string
	schemas map[string]*xsd.Schema
}

func (v *XSDValidator) Validate(data []byte, path string) []Note {
	// Sniff the root first; well-formedness problems surface here too.
	probe := etree.NewDocument()
	if err := probe.ReadFromBytes(data); err != nil {
		return []Note{{Severity: SeverityError, Code: InvalidXML, Detail: err.Error(), File: path}}
	}
	root := probe.Root()
	if root == nil {
		return []Note{{Severity: SeverityError, Code: InvalidXML, Detail: "document has no root element", File: path}}
	}

	name, ok := schemaFiles[root.SelectAttrValue("xmlns", "")]
	if !ok {
		if root.Tag == "DCSubtitle" {
			name = interopSubtitleSchema
		} else {
			return nil
		}
	}

	schema, notes := v.schema(name, path)
	if schema == nil {
		return notes
	}

	doc, err := libxml2.Parse(data)
	if err != nil {
		return []Note{{Severity: SeverityError, Code: InvalidXML, Detail: err.Error(), File: path}}
	}
	defer doc.Free()

	if err := schema.Validate(doc); err != nil {
		if sv, ok := err.(xsd.SchemaValidationError); ok {
			for _, e := range sv.Errors() {
				notes = append(notes, Note{Severity: SeverityError, Code: InvalidXML, Detail: e.Error(), File: path})
			}
			return notes
		}
		notes = append(notes, Note{Severity: SeverityError, Code: InvalidXML, Detail: err.Error(), File: path})
	}
	return notes
}

// schema loads and caches one schema. A missing file skips validation;
// a file that fails to parse is itself reported.
func (v *XSDValidator) schema(name, docPath string) (*xsd.Schema, []Note) {
	if s, ok := v.schemas[name]; ok {
		return s, nil
	}
	full := filepath.Join(v.Dir, name)
	if _, err := os.Stat(full); err != nil {
		return nil, nil
	}
	s, err := xsd.ParseFromFile(full)
	if err != nil {
		return nil, []Note{{
			Severity: SeverityError,
			Code:     InvalidXML,
			Detail:   "cannot load schema " + name + ": " + err.Error(),
			File:     docPath,
		}}
	}
	if v.schemas == nil {
		v.schemas = map[string]*xsd.Schema{}
	}
	v.schemas[name] = s
	return s, nil
}
