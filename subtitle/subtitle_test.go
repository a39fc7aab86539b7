package subtitle

import (
	"path/filepath"
	"strings"
	"testing"

	"cinekit.dev/dcp/mxf"
	"cinekit.dev/dcp/mxf/mxftest"
	"cinekit.dev/dcp/value"
)

func tc(t *testing.T, s string, tcr int) value.Time {
	t.Helper()
	tm, err := value.ParseTime(s, tcr)
	if err != nil {
		t.Fatal(err)
	}
	return tm
}

func TestParseInteropStyles(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<DCSubtitle Version="1.0">
  <SubtitleID>4a9cbd51-ad92-4e8b-9298-9c04b1fd2a53</SubtitleID>
  <MovieTitle>Test Film</MovieTitle>
  <ReelNumber>1</ReelNumber>
  <Language>French</Language>
  <LoadFont Id="theFont" URI="font.ttf"/>
  <Font Id="theFont" Size="39" Color="#FFFFFFFF" Effect="border" EffectColor="#FF000000" Italic="no">
    <Subtitle SpotNumber="1" TimeIn="00:00:05:000" TimeOut="00:00:07:125">
      <Text VAlign="bottom" VPosition="15">Hello <Font Italic="yes">world</Font></Text>
    </Subtitle>
  </Font>
</DCSubtitle>`
	a, err := ParseInterop([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if a.ID() != "4a9cbd51-ad92-4e8b-9298-9c04b1fd2a53" {
		t.Errorf("ID = %q", a.ID())
	}
	if a.MovieTitle != "Test Film" || a.Language != "French" {
		t.Errorf("header = %q %q", a.MovieTitle, a.Language)
	}
	if len(a.LoadFonts) != 1 || a.LoadFonts[0] != (LoadFont{"theFont", "font.ttf"}) {
		t.Errorf("LoadFonts = %+v", a.LoadFonts)
	}
	if len(a.Items) != 2 {
		t.Fatalf("items = %d", len(a.Items))
	}
	first := a.Items[0].(String)
	second := a.Items[1].(String)
	if first.Text != "Hello " || first.Italic {
		t.Errorf("first = %+v", first)
	}
	if second.Text != "world" || !second.Italic {
		t.Errorf("second = %+v", second)
	}
	if first.FontID != "theFont" || first.Size != 39 || first.Effect != value.EffectBorder {
		t.Errorf("inherited style = %+v", first)
	}
	if first.VAlign != value.VBottom || first.VPosition != 0.15 {
		t.Errorf("placement = %+v", first.Placement)
	}
	if first.SpotNumber != "1" {
		t.Errorf("SpotNumber = %q", first.SpotNumber)
	}
	if !first.In.Equal(tc(t, "00:00:05:000", 250)) || !first.Out.Equal(tc(t, "00:00:07:125", 250)) {
		t.Errorf("timing = %v %v", first.In, first.Out)
	}
}

func TestInteropRoundTrip(t *testing.T) {
	a := NewInteropAsset()
	a.MovieTitle = "Round Trip"
	a.ReelNumber = "1"
	a.Language = "German"
	a.LoadFonts = []LoadFont{{"f1", "arial.ttf"}}

	s1 := NewString("Erste Zeile")
	s1.In = tc(t, "00:00:04:000", 250)
	s1.Out = tc(t, "00:00:06:000", 250)
	s1.VAlign = value.VBottom
	s1.VPosition = 0.14
	s1.FontID = "f1"
	s2 := s1
	s2.Text = "kursiv"
	s2.Italic = true
	s2.SpaceBefore = 0.5
	a.Items = []Item{s1, s2}

	data, err := a.Document()
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseInterop(data)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Errorf("round trip changed the asset\n%s", data)
	}
	if got := b.Items[0].(String).Text; got != "Erste Zeile" {
		t.Errorf("text came back as %q", got)
	}
}

func TestPositionPercentScale(t *testing.T) {
	a := NewSMPTEAsset()
	a.ContentTitleText = "Scale"
	s := NewString("hoch")
	s.In = tc(t, "00:00:01:00", 24)
	s.Out = tc(t, "00:00:02:00", 24)
	s.VAlign = value.VTop
	s.VPosition = 0.8
	a.Items = []Item{s}

	data, err := a.Document()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `Vposition="80"`) {
		t.Errorf("position not written as a percentage:\n%s", data)
	}
	b, err := ParseSMPTEDocument(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Items[0].(String).VPosition; got != 0.8 {
		t.Errorf("VPosition = %v, want 0.8", got)
	}
}

func TestSpotNumberPreserved(t *testing.T) {
	doc := `<DCSubtitle Version="1.0">
  <SubtitleID>x</SubtitleID>
  <Subtitle SpotNumber="7" TimeIn="00:00:01:000" TimeOut="00:00:02:000">
    <Text VAlign="bottom" VPosition="10">sieben</Text>
  </Subtitle>
</DCSubtitle>`
	a, err := ParseInterop([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if got := a.Items[0].(String).SpotNumber; got != "7" {
		t.Fatalf("SpotNumber = %q", got)
	}
	data, err := a.Document()
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseInterop(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Items[0].(String).SpotNumber; got != "7" {
		t.Errorf("SpotNumber after rewrite = %q", got)
	}
}

func TestTextVerticalOrdering(t *testing.T) {
	mk := func(valign value.VAlign, vpos float64, text string) String {
		s := NewString(text)
		s.In = tc(t, "00:00:01:00", 24)
		s.Out = tc(t, "00:00:02:00", 24)
		s.VAlign = valign
		s.VPosition = vpos
		return s
	}

	// Top aligned lines come out in ascending position order.
	a := NewSMPTEAsset()
	a.ContentTitleText = "Order"
	a.Items = []Item{mk(value.VTop, 0.9, "lower"), mk(value.VTop, 0.8, "upper")}
	data, err := a.Document()
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseSMPTEDocument(data)
	if err != nil {
		t.Fatal(err)
	}
	if b.Items[0].(String).VPosition != 0.8 || b.Items[1].(String).VPosition != 0.9 {
		t.Errorf("top order = %v, %v", b.Items[0].(String).VPosition, b.Items[1].(String).VPosition)
	}

	// Bottom aligned lines come out in descending position order.
	a.Items = []Item{mk(value.VBottom, 0.7, "lower"), mk(value.VBottom, 0.8, "upper")}
	data, err = a.Document()
	if err != nil {
		t.Fatal(err)
	}
	b, err = ParseSMPTEDocument(data)
	if err != nil {
		t.Fatal(err)
	}
	if b.Items[0].(String).VPosition != 0.8 || b.Items[1].(String).VPosition != 0.7 {
		t.Errorf("bottom order = %v, %v", b.Items[0].(String).VPosition, b.Items[1].(String).VPosition)
	}
}

func TestSMPTERoundTripThroughMXF(t *testing.T) {
	mxftest.Install(t)

	a := NewSMPTEAsset()
	a.ContentTitleText = "Wrapped"
	a.Language = value.MustLanguageTag("de-DE")
	a.EditRate = value.Fraction{Numerator: 24, Denominator: 1}
	a.TimeCodeRate = 24

	s := NewString("Hallo")
	s.In = tc(t, "00:00:05:00", 24)
	s.Out = tc(t, "00:00:07:00", 24)
	s.VAlign = value.VBottom
	s.VPosition = 0.12
	a.Items = []Item{s}

	path := filepath.Join(t.TempDir(), "sub.mxf")
	if err := a.Write(path); err != nil {
		t.Fatal(err)
	}

	b, err := ReadSMPTE("", path)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Error("round trip changed the asset")
	}
	if b.XMLID != a.XMLID {
		t.Errorf("XMLID = %q, want %q", b.XMLID, a.XMLID)
	}
	if b.ID() == b.XMLID {
		t.Error("asset ID should be distinct from the document ID")
	}
}

func TestReadSMPTERejectsOtherEssence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pic.mxf")
	mxftest.MustWrite(t, path, mxf.Descriptor{
		Kind:     mxf.KindMonoPicture,
		EditRate: value.Fraction{Numerator: 24, Denominator: 1},
	}, [][]byte{{1}})
	if _, err := ReadSMPTE("", path); err == nil {
		t.Error("expected error for non timed text essence")
	}
}

func TestSpaceAccumulation(t *testing.T) {
	doc := `<DCSubtitle Version="1.0">
  <SubtitleID>x</SubtitleID>
  <Subtitle SpotNumber="1" TimeIn="00:00:01:000" TimeOut="00:00:02:000">
    <Text VAlign="bottom" VPosition="10">one<Space Size="0.5em"/><Space Size="0.25em"/>two</Text>
  </Subtitle>
</DCSubtitle>`
	a, err := ParseInterop([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Items) != 2 {
		t.Fatalf("items = %d", len(a.Items))
	}
	if got := a.Items[1].(String).SpaceBefore; got != 0.75 {
		t.Errorf("SpaceBefore = %v", got)
	}
}

func TestFontStorage(t *testing.T) {
	a := NewSMPTEAsset()
	a.AddFont("font-1", []byte{1, 2, 3})
	a.AddFont("font-1", []byte{1, 2, 3, 4})
	if len(a.LoadFonts) != 1 || a.LoadFonts[0].ID != "font-1" || a.LoadFonts[0].URI == "" {
		t.Errorf("LoadFonts = %+v", a.LoadFonts)
	}
	data, ok := a.Font("font-1")
	if !ok || len(data) != 4 {
		t.Errorf("Font = %v %v", data, ok)
	}
	if a.FontSizes()["font-1"] != 4 {
		t.Errorf("FontSizes = %v", a.FontSizes())
	}
}

func TestLoadFontIDSurvivesRoundTrip(t *testing.T) {
	a := NewSMPTEAsset()
	a.ContentTitleText = "Fonts"
	a.AddFont("theFont", []byte{1})

	data, err := a.Document()
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseSMPTEDocument(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.LoadFonts) != 1 {
		t.Fatalf("LoadFonts = %+v", b.LoadFonts)
	}
	if b.LoadFonts[0] != a.LoadFonts[0] {
		t.Errorf("LoadFont = %+v, want %+v", b.LoadFonts[0], a.LoadFonts[0])
	}
}
