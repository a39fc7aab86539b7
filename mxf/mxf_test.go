package mxf

import (
	"os"
	"path/filepath"
	"testing"

	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/value"
)

func testFrames(n, size int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		f := make([]byte, size)
		for j := range f {
			f[j] = byte(i)
		}
		out[i] = f
	}
	return out
}

func writeTemp(t *testing.T, d Descriptor, frames [][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "essence.mxf")
	if err := WriteKLVFile(path, d, frames); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProbePicture(t *testing.T) {
	d := Descriptor{
		Kind:        KindMonoPicture,
		EditRate:    value.Fraction{Numerator: 24, Denominator: 1},
		PictureSize: value.Size{Width: 1998, Height: 1080},
	}
	path := writeTemp(t, d, [][]byte{{1, 2, 3}, {4, 5, 6}})

	got, err := KLV.Probe(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != KindMonoPicture {
		t.Errorf("Kind = %v", got.Kind)
	}
	if got.EditRate != d.EditRate {
		t.Errorf("EditRate = %v", got.EditRate)
	}
	if got.PictureSize != d.PictureSize {
		t.Errorf("PictureSize = %v", got.PictureSize)
	}
	if got.IntrinsicDuration != 2 {
		t.Errorf("IntrinsicDuration = %d", got.IntrinsicDuration)
	}
	if got.KeyID != "" {
		t.Errorf("unexpected KeyID %q", got.KeyID)
	}
}

func TestProbeSound(t *testing.T) {
	d := Descriptor{
		Kind:         KindSound,
		EditRate:     value.Fraction{Numerator: 24, Denominator: 1},
		SampleRate:   48000,
		ChannelCount: 6,
	}
	path := writeTemp(t, d, testFrames(3, 100))

	got, err := KLV.Probe(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.SampleRate != 48000 || got.ChannelCount != 6 {
		t.Errorf("sound descriptor = %+v", got)
	}
}

func TestProbeEncrypted(t *testing.T) {
	d := Descriptor{
		Kind:     KindMonoPicture,
		EditRate: value.Fraction{Numerator: 24, Denominator: 1},
		KeyID:    "01234567-89ab-cdef-0123-456789abcdef",
	}
	path := writeTemp(t, d, testFrames(1, 8))

	got, err := KLV.Probe(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.KeyID != d.KeyID {
		t.Errorf("KeyID = %q, want %q", got.KeyID, d.KeyID)
	}
}

func TestReaderFrames(t *testing.T) {
	frames := [][]byte{{0xAA, 0xBB}, {0xCC}}
	path := writeTemp(t, Descriptor{Kind: KindMonoPicture, EditRate: value.Fraction{Numerator: 24, Denominator: 1}}, frames)

	r, err := KLV.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for i, want := range frames {
		got, err := r.Frame(int64(i))
		if err != nil {
			t.Fatalf("Frame(%d): %v", i, err)
		}
		if string(got) != string(want) {
			t.Errorf("Frame(%d) = %x, want %x", i, got, want)
		}
	}
	if _, err := r.Frame(2); !dcperr.IsKind(err, dcperr.KindMXFFile) {
		t.Errorf("out of range frame: got %v", err)
	}
}

func TestReaderStereo(t *testing.T) {
	frames := [][]byte{{1}, {2}, {3}, {4}}
	path := writeTemp(t, Descriptor{Kind: KindStereoPicture, EditRate: value.Fraction{Numerator: 24, Denominator: 1}}, frames)

	r, err := KLV.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	l, rr, err := r.LeftRight(1)
	if err != nil {
		t.Fatal(err)
	}
	if l[0] != 3 || rr[0] != 4 {
		t.Errorf("LeftRight(1) = %x %x", l, rr)
	}

	d, err := KLV.Probe(path)
	if err != nil {
		t.Fatal(err)
	}
	if d.IntrinsicDuration != 2 {
		t.Errorf("stereo duration = %d", d.IntrinsicDuration)
	}
}

func TestReaderTimedText(t *testing.T) {
	doc := []byte("<SubtitleReel/>")
	path := writeTemp(t, Descriptor{Kind: KindTimedText, EditRate: value.Fraction{Numerator: 24, Denominator: 1}}, [][]byte{doc})

	r, err := KLV.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := r.ReadTimedText()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(doc) {
		t.Errorf("ReadTimedText = %q", got)
	}
}

func TestProbeRoundTripsEveryKind(t *testing.T) {
	kinds := []EssenceKind{KindMonoPicture, KindStereoPicture, KindSound, KindAtmos, KindTimedText}
	for _, k := range kinds {
		path := writeTemp(t, Descriptor{Kind: k, EditRate: value.Fraction{Numerator: 24, Denominator: 1}}, testFrames(2, 16))
		got, err := KLV.Probe(path)
		if err != nil {
			t.Errorf("%v: %v", k, err)
			continue
		}
		if got.Kind != k {
			t.Errorf("probed kind = %v, want %v", got.Kind, k)
		}
	}
}

func TestProbeRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.mxf")
	if err := os.WriteFile(path, []byte("this is not klv at all, far too short anyway"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := KLV.Probe(path); !dcperr.IsKind(err, dcperr.KindMXFFile) {
		t.Errorf("garbage probe: got %v", err)
	}
}

func TestFrameSizes(t *testing.T) {
	path := writeTemp(t, Descriptor{Kind: KindMonoPicture, EditRate: value.Fraction{Numerator: 24, Denominator: 1}}, testFrames(4, 1024))
	sizes, err := FrameSizes(KLV, path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sizes) != 4 {
		t.Fatalf("len = %d", len(sizes))
	}
	for _, s := range sizes {
		if s != 1024 {
			t.Errorf("size = %d", s)
		}
	}
}
