// Package mxftest provides an essence backend for tests. It writes the
// minimal KLV form understood by the built-in reader, so write/read
// round trips work without a real wrapping library.
package mxftest

import (
	"testing"

	"cinekit.dev/dcp/mxf"
)

// Backend writes via the KLV synthesiser and reads via the built-in
// parser.
type Backend struct{}

func (Backend) Probe(path string) (mxf.Descriptor, error) {
	return mxf.KLV.Probe(path)
}

func (Backend) OpenReader(path string) (mxf.FrameReader, error) {
	return mxf.KLV.OpenReader(path)
}

func (Backend) CreateWriter(path string, d mxf.Descriptor) (mxf.FrameWriter, error) {
	return &writer{path: path, desc: d}, nil
}

type writer struct {
	path   string
	desc   mxf.Descriptor
	frames [][]byte
	done   bool
}

func (w *writer) WriteFrame(data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	w.frames = append(w.frames, buf)
	return nil
}

func (w *writer) Finalize() error {
	w.done = true
	return mxf.WriteKLVFile(w.path, w.desc, w.frames)
}

// Install makes the fake the process-wide backend for the duration of
// the test.
func Install(t *testing.T) Backend {
	t.Helper()
	old := mxf.Default
	mxf.Default = Backend{}
	t.Cleanup(func() { mxf.Default = old })
	return Backend{}
}

// Frames returns n identical frames of the given byte size.
func Frames(n int, size int) [][]byte {
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

// MustWrite synthesises an essence file or fails the test.
func MustWrite(t *testing.T, path string, d mxf.Descriptor, frames [][]byte) {
	t.Helper()
	if err := mxf.WriteKLVFile(path, d, frames); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}
