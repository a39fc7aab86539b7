package asset

import (
	"os"
	"path/filepath"
	"testing"

	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/mxf"
	"cinekit.dev/dcp/value"
)

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	var last float64
	h, err := HashFile(path, func(p float64) { last = p })
	if err != nil {
		t.Fatal(err)
	}
	if h != "Kq5sNclPz7QV2+lfQIuc6R7oRu0=" {
		t.Errorf("hash = %q", h)
	}
	if last != 1 {
		t.Errorf("final progress = %v", last)
	}
}

func TestCommonHashCaching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewCommon("", path)
	h1, err := c.Hash(nil)
	if err != nil {
		t.Fatal(err)
	}
	// A cached hash survives the file changing underneath.
	if err := os.WriteFile(path, []byte("different"), 0o644); err != nil {
		t.Fatal(err)
	}
	h2, err := c.Hash(nil)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("hash was recomputed")
	}
}

func TestSetHashSkipsRead(t *testing.T) {
	c := NewCommon("", filepath.Join(t.TempDir(), "missing"))
	c.SetHash("precomputed")
	h, err := c.Hash(nil)
	if err != nil {
		t.Fatal(err)
	}
	if h != "precomputed" {
		t.Errorf("hash = %q", h)
	}
}

func TestFromMXFDispatch(t *testing.T) {
	dir := t.TempDir()

	pic := filepath.Join(dir, "pic.mxf")
	if err := mxf.WriteKLVFile(pic, mxf.Descriptor{
		Kind:        mxf.KindMonoPicture,
		EditRate:    value.Fraction{Numerator: 24, Denominator: 1},
		PictureSize: value.Size{Width: 1998, Height: 1080},
	}, [][]byte{{1}, {2}}); err != nil {
		t.Fatal(err)
	}
	a, _, err := FromMXF("", pic)
	if err != nil {
		t.Fatal(err)
	}
	mp, ok := a.(*MonoPicture)
	if !ok {
		t.Fatalf("got %T", a)
	}
	if mp.PictureSize() != (value.Size{Width: 1998, Height: 1080}) {
		t.Errorf("size = %v", mp.PictureSize())
	}
	if mp.IntrinsicDuration() != 2 {
		t.Errorf("duration = %d", mp.IntrinsicDuration())
	}
	if mp.PKLType(value.SMPTE) != "application/mxf" {
		t.Errorf("PKLType = %q", mp.PKLType(value.SMPTE))
	}

	snd := filepath.Join(dir, "snd.mxf")
	if err := mxf.WriteKLVFile(snd, mxf.Descriptor{
		Kind:         mxf.KindSound,
		EditRate:     value.Fraction{Numerator: 24, Denominator: 1},
		SampleRate:   48000,
		ChannelCount: 6,
	}, [][]byte{{1}}); err != nil {
		t.Fatal(err)
	}
	b, _, err := FromMXF("", snd)
	if err != nil {
		t.Fatal(err)
	}
	s, ok := b.(*Sound)
	if !ok {
		t.Fatalf("got %T", b)
	}
	if s.SampleRate() != 48000 || s.ChannelCount() != 6 {
		t.Errorf("sound = %d Hz, %d ch", s.SampleRate(), s.ChannelCount())
	}
}

func TestEncryptedAsset(t *testing.T) {
	dir := t.TempDir()
	keyID := "01234567-89ab-cdef-0123-456789abcdef"
	path := filepath.Join(dir, "enc.mxf")
	if err := mxf.WriteKLVFile(path, mxf.Descriptor{
		Kind:     mxf.KindMonoPicture,
		EditRate: value.Fraction{Numerator: 24, Denominator: 1},
		KeyID:    keyID,
	}, [][]byte{{1}}); err != nil {
		t.Fatal(err)
	}

	a, _, err := FromMXF("", path)
	if err != nil {
		t.Fatal(err)
	}
	mp := a.(*MonoPicture)
	if !mp.Encrypted() {
		t.Fatal("asset should be encrypted")
	}
	if got, ok := mp.KeyID(); !ok || got != keyID {
		t.Errorf("KeyID = %q, %v", got, ok)
	}
	if err := mp.AttachKey([]byte("short")); !dcperr.IsKind(err, dcperr.KindMisc) {
		t.Errorf("short key: got %v", err)
	}
	if err := mp.AttachKey(make([]byte, 16)); err != nil {
		t.Errorf("AttachKey: %v", err)
	}
}

func TestFontPKLType(t *testing.T) {
	f := NewFont("", "font.otf")
	if f.PKLType(value.SMPTE) != "application/x-font-opentype" {
		t.Errorf("SMPTE type = %q", f.PKLType(value.SMPTE))
	}
	if f.PKLType(value.Interop) != "text/xml" {
		t.Errorf("Interop type = %q", f.PKLType(value.Interop))
	}
}
