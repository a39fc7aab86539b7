package cpl

import (
	"sort"
	"strconv"

	"github.com/beevik/etree"

	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/urnutil"
	"cinekit.dev/dcp/value"
)

// ReelMarkers holds the marker track of a reel: labelled offsets in
// edit units.
type ReelMarkers struct {
	ID                string
	EditRate          value.Fraction
	IntrinsicDuration int64
	markers           map[value.Marker]int64
}

func NewReelMarkers(editRate value.Fraction, intrinsicDuration int64) *ReelMarkers {
	return &ReelMarkers{
		ID:                urnutil.NewUUID(),
		EditRate:          editRate,
		IntrinsicDuration: intrinsicDuration,
		markers:           map[value.Marker]int64{},
	}
}

// Set places a marker at the given edit unit offset.
func (m *ReelMarkers) Set(label value.Marker, offset int64) {
	if m.markers == nil {
		m.markers = map[value.Marker]int64{}
	}
	m.markers[label] = offset
}

func (m *ReelMarkers) Get(label value.Marker) (int64, bool) {
	off, ok := m.markers[label]
	return off, ok
}

// All returns a copy of the marker table.
func (m *ReelMarkers) All() map[value.Marker]int64 {
	out := make(map[value.Marker]int64, len(m.markers))
	for k, v := range m.markers {
		out[k] = v
	}
	return out
}

func (m *ReelMarkers) toXML(parent *etree.Element) {
	e := parent.CreateElement("MainMarkers")
	e.CreateElement("Id").SetText(urnutil.AddPrefix(m.ID))
	e.CreateElement("EditRate").SetText(m.EditRate.String())
	e.CreateElement("IntrinsicDuration").SetText(strconv.FormatInt(m.IntrinsicDuration, 10))
	list := e.CreateElement("MarkerList")

	labels := make([]value.Marker, 0, len(m.markers))
	for l := range m.markers {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return m.markers[labels[i]] < m.markers[labels[j]] })
	for _, l := range labels {
		me := list.CreateElement("Marker")
		me.CreateElement("Label").SetText(l.String())
		me.CreateElement("Offset").SetText(strconv.FormatInt(m.markers[l], 10))
	}
}

func markersFromXML(e *etree.Element) (*ReelMarkers, error) {
	m := &ReelMarkers{
		ID:      urnutil.TrimPrefix(childText(e, "Id")),
		markers: map[value.Marker]int64{},
	}
	if v := childText(e, "EditRate"); v != "" {
		f, err := value.ParseFraction(v)
		if err != nil {
			return nil, err
		}
		m.EditRate = f
	}
	if v := childText(e, "IntrinsicDuration"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, dcperr.Wrap(dcperr.KindXML, "bad IntrinsicDuration", err)
		}
		m.IntrinsicDuration = n
	}
	list := e.SelectElement("MarkerList")
	if list == nil {
		return m, nil
	}
	for _, me := range list.SelectElements("Marker") {
		label, err := value.ParseMarker(childText(me, "Label"))
		if err != nil {
			return nil, err
		}
		off, err := strconv.ParseInt(childText(me, "Offset"), 10, 64)
		if err != nil {
			return nil, dcperr.Wrap(dcperr.KindXML, "bad marker Offset", err)
		}
		m.markers[label] = off
	}
	return m, nil
}
