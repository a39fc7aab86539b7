package cpl

import (
	"path/filepath"
	"strings"
	"testing"

	"cinekit.dev/dcp/asset"
	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/mxf"
	"cinekit.dev/dcp/mxf/mxftest"
	"cinekit.dev/dcp/value"
)

func makePicture(t *testing.T, dir string, keyID string) *asset.MonoPicture {
	t.Helper()
	path := filepath.Join(dir, "picture.mxf")
	mxftest.MustWrite(t, path, mxf.Descriptor{
		Kind:        mxf.KindMonoPicture,
		EditRate:    value.Fraction{Numerator: 24, Denominator: 1},
		PictureSize: value.Size{Width: 1998, Height: 1080},
		KeyID:       keyID,
	}, [][]byte{{1}, {2}, {3}})
	a, _, err := asset.FromMXF("", path)
	if err != nil {
		t.Fatal(err)
	}
	return a.(*asset.MonoPicture)
}

func makeSound(t *testing.T, dir string) *asset.Sound {
	t.Helper()
	path := filepath.Join(dir, "sound.mxf")
	mxftest.MustWrite(t, path, mxf.Descriptor{
		Kind:         mxf.KindSound,
		EditRate:     value.Fraction{Numerator: 24, Denominator: 1},
		SampleRate:   48000,
		ChannelCount: 6,
	}, [][]byte{{1}, {2}, {3}})
	a, _, err := asset.FromMXF("", path)
	if err != nil {
		t.Fatal(err)
	}
	return a.(*asset.Sound)
}

func buildCPL(t *testing.T, dir string, standard value.Standard) *CPL {
	t.Helper()
	c := New("Test Film", value.Feature, standard)
	c.Creator = "cinekit"
	reel := NewReel()
	reel.Picture = PictureFromAsset(makePicture(t, dir, ""))
	reel.Sound = SoundFromAsset(makeSound(t, dir))
	c.Reels = append(c.Reels, reel)
	return c
}

func TestRoundTripSMPTE(t *testing.T) {
	mxftest.Install(t)
	dir := t.TempDir()
	c := buildCPL(t, dir, value.SMPTE)
	path := filepath.Join(dir, "cpl.xml")
	if err := c.WriteXML(path, nil); err != nil {
		t.Fatal(err)
	}

	back, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Standard != value.SMPTE {
		t.Errorf("standard = %v", back.Standard)
	}
	var why string
	if !c.Equal(back, func(s string) { why = s }) {
		t.Errorf("round trip changed the composition: %s", why)
	}
	if back.Metadata == nil {
		t.Fatal("metadata lost")
	}
	if back.Metadata.ApplicationProfile != Bv21Profile {
		t.Errorf("profile = %q", back.Metadata.ApplicationProfile)
	}
}

func TestRoundTripInterop(t *testing.T) {
	mxftest.Install(t)
	dir := t.TempDir()
	c := buildCPL(t, dir, value.Interop)
	c.Ratings = []Rating{{Agency: "http://www.mpaa.org/2003-ratings", Label: "PG-13"}}
	path := filepath.Join(dir, "cpl.xml")
	if err := c.WriteXML(path, nil); err != nil {
		t.Fatal(err)
	}
	back, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Standard != value.Interop {
		t.Errorf("standard = %v", back.Standard)
	}
	if len(back.Ratings) != 1 || back.Ratings[0] != c.Ratings[0] {
		t.Errorf("ratings = %+v", back.Ratings)
	}
	if back.PKLType(back.Standard) != "text/xml;asdcpKind=CPL" {
		t.Errorf("PKLType = %q", back.PKLType(back.Standard))
	}
}

func TestInteropClosedCaptionNamespace(t *testing.T) {
	c := New("CC", value.Feature, value.Interop)
	reel := NewReel()
	reel.ClosedCaptions = []*ReelClosedCaption{{
		ReelAsset: ReelAsset{
			Ref:               UnresolvedRef("01234567-89ab-cdef-0123-456789abcdef"),
			EditRate:          value.Fraction{Numerator: 24, Denominator: 1},
			IntrinsicDuration: 24,
		},
	}}
	c.Reels = append(c.Reels, reel)

	data, err := c.Document().WriteToBytes()
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if !strings.Contains(s, "<ccap:MainClosedCaption>") {
		t.Fatal("closed caption element missing")
	}
	if !strings.Contains(s, `xmlns:ccap="http://www.digicine.com/PROTO-ASDCP-CC-CPL-20070926#"`) {
		t.Error("ccap namespace not declared on the root")
	}
}

func TestKeyIdPrecedesHash(t *testing.T) {
	mxftest.Install(t)
	dir := t.TempDir()
	c := New("Enc", value.Feature, value.SMPTE)
	reel := NewReel()
	pic := PictureFromAsset(makePicture(t, dir, "01234567-89ab-cdef-0123-456789abcdef"))
	pic.Hash = "somehash"
	reel.Picture = pic
	c.Reels = append(c.Reels, reel)

	data, err := c.Document().WriteToBytes()
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	ki := strings.Index(s, "<KeyId>")
	h := strings.Index(s, "<Hash>")
	if ki == -1 || h == -1 || ki > h {
		t.Errorf("KeyId/Hash order wrong: KeyId at %d, Hash at %d", ki, h)
	}
	if !c.Encrypted() {
		t.Error("composition with key id should report encrypted")
	}
}

func TestEmptyAnnotationOmitted(t *testing.T) {
	mxftest.Install(t)
	dir := t.TempDir()
	c := buildCPL(t, dir, value.SMPTE)
	data, err := c.Document().WriteToBytes()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "<AnnotationText></AnnotationText>") ||
		strings.Contains(string(data), "<AnnotationText/>") {
		t.Error("empty AnnotationText was written")
	}
}

func TestDuplicateContentVersion(t *testing.T) {
	c := New("Dup", value.Feature, value.SMPTE)
	err := c.SetContentVersions([]ContentVersion{
		{ID: "01234567-89ab-cdef-0123-456789abcdef", LabelText: "a"},
		{ID: "urn:uuid:01234567-89AB-CDEF-0123-456789abcdef", LabelText: "b"},
	})
	if !dcperr.IsKind(err, dcperr.KindDuplicateID) {
		t.Errorf("got %v", err)
	}
}

func TestNegativeVersionNumber(t *testing.T) {
	m := NewCompositionMetadata()
	if err := m.SetVersionNumber(-1); !dcperr.IsKind(err, dcperr.KindBadSetting) {
		t.Errorf("got %v", err)
	}
	if err := m.SetVersionNumber(0); err != nil {
		t.Errorf("zero rejected: %v", err)
	}
}

func TestMetadataSampleRateForm(t *testing.T) {
	mxftest.Install(t)
	dir := t.TempDir()
	c := buildCPL(t, dir, value.SMPTE)
	c.Metadata.MainSoundSampleRate = 48000
	data, err := c.Document().WriteToBytes()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<meta:MainSoundSampleRate>48000 1</meta:MainSoundSampleRate>") {
		t.Error("sample rate not written as a fraction")
	}
}

func TestUnknownNamespaceRejected(t *testing.T) {
	_, err := Parse([]byte(`<CompositionPlaylist xmlns="http://example.com/bogus"><Id>x</Id></CompositionPlaylist>`))
	if !dcperr.IsKind(err, dcperr.KindXML) {
		t.Errorf("got %v", err)
	}
}

func TestResolveRefs(t *testing.T) {
	mxftest.Install(t)
	dir := t.TempDir()
	pic := makePicture(t, dir, "")

	c := New("Refs", value.Feature, value.SMPTE)
	reel := NewReel()
	p := PictureFromAsset(pic)
	p.Ref = UnresolvedRef(pic.ID())
	reel.Picture = p
	reel.Sound = &ReelSound{ReelAsset: ReelAsset{Ref: UnresolvedRef("99999999-0000-0000-0000-000000000000")}}
	c.Reels = append(c.Reels, reel)

	missing := c.ResolveRefs([]asset.Packable{pic})
	if len(missing) != 1 || missing[0] != "99999999-0000-0000-0000-000000000000" {
		t.Errorf("missing = %v", missing)
	}
	if !reel.Picture.Ref.Resolved() {
		t.Error("picture ref not resolved")
	}
}

func TestMarkers(t *testing.T) {
	m := NewReelMarkers(value.Fraction{Numerator: 24, Denominator: 1}, 240)
	m.Set(value.MarkerFFOC, 1)
	m.Set(value.MarkerLFOC, 239)
	if off, ok := m.Get(value.MarkerLFOC); !ok || off != 239 {
		t.Errorf("LFOC = %d, %v", off, ok)
	}

	c := New("Marked", value.Feature, value.SMPTE)
	reel := NewReel()
	reel.Markers = m
	c.Reels = append(c.Reels, reel)
	data, err := c.Document().WriteToBytes()
	if err != nil {
		t.Fatal(err)
	}
	back, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	bm := back.Reels[0].Markers
	if bm == nil {
		t.Fatal("markers lost")
	}
	if off, ok := bm.Get(value.MarkerFFOC); !ok || off != 1 {
		t.Errorf("FFOC = %d, %v", off, ok)
	}
}
