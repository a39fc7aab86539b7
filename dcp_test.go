package dcp

import (
	"os"
	"path/filepath"
	"testing"

	"cinekit.dev/dcp/asset"
	"cinekit.dev/dcp/cpl"
	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/kdm"
	"cinekit.dev/dcp/mxf"
	"cinekit.dev/dcp/mxf/mxftest"
	"cinekit.dev/dcp/value"
)

func pictureAsset(t *testing.T, dir, keyID string) *asset.MonoPicture {
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

func soundAsset(t *testing.T, dir string) *asset.Sound {
	t.Helper()
	path := filepath.Join(dir, "sound.mxf")
	mxftest.MustWrite(t, path, mxf.Descriptor{
		Kind:       mxf.KindSound,
		EditRate:   value.Fraction{Numerator: 24, Denominator: 1},
		SampleRate: 48000,
	}, [][]byte{{4}, {5}, {6}})
	a, _, err := asset.FromMXF("", path)
	if err != nil {
		t.Fatal(err)
	}
	return a.(*asset.Sound)
}

func writePackage(t *testing.T, dir, keyID string) *DCP {
	t.Helper()
	d, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	c := cpl.New("Round Trip", value.Feature, value.SMPTE)
	reel := cpl.NewReel()
	reel.Picture = cpl.PictureFromAsset(pictureAsset(t, dir, keyID))
	reel.Sound = cpl.SoundFromAsset(soundAsset(t, dir))
	c.Reels = append(c.Reels, reel)
	d.Add(c)
	err = d.WriteXML(value.SMPTE, "cinekit", "cinekit 0.1",
		"2026-01-01T00:00:00+00:00", "round trip test", nil, DefaultNameFormat)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestWriteAndRead(t *testing.T) {
	mxftest.Install(t)
	dir := t.TempDir()
	written := writePackage(t, dir, "")

	if _, err := os.Stat(filepath.Join(dir, "ASSETMAP.xml")); err != nil {
		t.Fatal("no ASSETMAP.xml written")
	}
	if _, err := os.Stat(filepath.Join(dir, "VOLINDEX.xml")); err != nil {
		t.Fatal("no VOLINDEX.xml written")
	}

	back, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	var notes []ReadNote
	if err := back.Read(&notes); err != nil {
		t.Fatal(err)
	}
	for _, n := range notes {
		t.Errorf("unexpected note %s (%s)", n.Code, n.File)
	}
	if s, ok := back.Standard(); !ok || s != value.SMPTE {
		t.Errorf("standard = %v, %v", s, ok)
	}
	if len(back.CPLs()) != 1 || len(back.PKLs()) != 1 {
		t.Fatalf("cpls = %d, pkls = %d", len(back.CPLs()), len(back.PKLs()))
	}

	var why string
	if !written.Equal(back, func(s string) { why = s }) {
		t.Errorf("round trip changed the package: %s", why)
	}

	assets, err := back.Assets(false)
	if err != nil {
		t.Fatal(err)
	}
	// CPL, picture, sound.
	if len(assets) != 3 {
		t.Errorf("asset count = %d", len(assets))
	}
}

func TestReadWithoutAssetMap(t *testing.T) {
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Read(nil); !dcperr.IsKind(err, dcperr.KindRead) {
		t.Errorf("got %v", err)
	}
}

func TestMissingAssetNoted(t *testing.T) {
	mxftest.Install(t)
	dir := t.TempDir()
	writePackage(t, dir, "")
	if err := os.Remove(filepath.Join(dir, "sound.mxf")); err != nil {
		t.Fatal(err)
	}

	back, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	var notes []ReadNote
	if err := back.Read(&notes); err != nil {
		t.Fatal(err)
	}
	var missing, external bool
	for _, n := range notes {
		switch n.Code {
		case NoteMissingAsset:
			missing = true
		case NoteExternalAsset:
			external = true
		}
	}
	if !missing {
		t.Error("no MISSING_ASSET note")
	}
	// The reel still names the asset and it is in the asset map, so it
	// is not external.
	if external {
		t.Error("unexpected EXTERNAL_ASSET note")
	}
}

func TestAddKDMIdempotent(t *testing.T) {
	mxftest.Install(t)
	dir := t.TempDir()
	keyID := "01234567-89ab-cdef-0123-456789abcdef"
	writePackage(t, dir, keyID)

	back, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := back.Read(nil); err != nil {
		t.Fatal(err)
	}
	if !back.Encrypted() {
		t.Fatal("package with key id not encrypted")
	}

	c := back.CPLs()[0]
	msg := &kdm.DecryptedKDM{
		CPLID: c.ID(),
		Keys: []kdm.Key{{
			CPLID: c.ID(),
			ID:    keyID,
			Type:  "MDIK",
			Value: []byte("0123456789abcdef"),
		}},
	}
	back.AddKDM(msg)
	back.AddKDM(msg)

	ra := c.ReelAssets()[0]
	a, ok := ra.Ref.Asset()
	if !ok {
		t.Fatal("picture ref unresolved")
	}
	pic, ok := a.(*asset.MonoPicture)
	if !ok {
		t.Fatalf("asset type %T", a)
	}
	key, ok := pic.Key()
	if !ok || string(key) != "0123456789abcdef" {
		t.Errorf("key = %q, %v", key, ok)
	}
}

func TestDirectoriesFromFiles(t *testing.T) {
	dirs := DirectoriesFromFiles([]string{
		"/a/b/ASSETMAP.xml",
		"/a/b/cpl_x.xml",
		"/c/ASSETMAP",
	})
	if len(dirs) != 2 || dirs[0] != "/a/b" || dirs[1] != "/c" {
		t.Errorf("dirs = %v", dirs)
	}
}

func TestNameFormat(t *testing.T) {
	if got := NameFormat("%t-%i.xml").Filename("cpl", "abc"); got != "cpl-abc.xml" {
		t.Errorf("got %q", got)
	}
	if got := DefaultNameFormat.Filename("pkl", "abc"); got != "pkl_abc.xml" {
		t.Errorf("got %q", got)
	}
}
