package mxf

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"cinekit.dev/dcp/dcperr"
)

// Generic container essence element key prefix. The trailing four bytes
// carry the track number.
var ulEssencePrefix = []byte{0x06, 0x0E, 0x2B, 0x34, 0x01, 0x02, 0x01, 0x01, 0x0D, 0x01, 0x03, 0x01}

type frameSpan struct {
	off int64
	len int64
}

type klvReader struct {
	f      *os.File
	path   string
	desc   Descriptor
	frames []frameSpan
	key    []byte
}

func (klvBackend) OpenReader(path string) (FrameReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dcperr.Wrap(dcperr.KindMXFFile, "cannot open MXF file", err)
	}
	r := &klvReader{f: f, path: path}
	if err := r.index(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// CreateWriter on the probing backend always fails. Writing conformant
// essence needs a full wrapping implementation; install one as Default
// or use the test backend.
func (klvBackend) CreateWriter(path string, d Descriptor) (FrameWriter, error) {
	return nil, dcperr.New(dcperr.KindMXFFile, "no MXF writing backend installed")
}

// index records the offset and length of every essence element so Frame
// can seek directly.
func (r *klvReader) index() error {
	d, err := probe(r.f, r.path)
	if err != nil {
		return err
	}
	r.desc = d
	pos, err := r.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return dcperr.Wrap(dcperr.KindMXFFile, "seek failed", err)
	}
	br := &countingReader{r: r.f, n: pos}
	for {
		key, l, err := readKL(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return dcperr.InFile(dcperr.KindMXFFile, "malformed essence stream", r.path)
		}
		valOff := br.n
		if _, err := r.f.Seek(valOff+l, io.SeekStart); err != nil {
			return dcperr.Wrap(dcperr.KindMXFFile, "seek failed", err)
		}
		br.n = valOff + l
		switch {
		case bytes.HasPrefix(key, ulFooterPrefix):
			return nil
		case bytes.HasPrefix(key, ulEssencePrefix):
			r.frames = append(r.frames, frameSpan{off: valOff, len: l})
		case bytes.Equal(key, ulKLVFill):
		case bytes.HasPrefix(key, ulPartitionPrefix):
			// body partition; essence continues after it
		}
	}
	return nil
}

func (r *klvReader) Frame(i int64) ([]byte, error) {
	per := int64(1)
	if r.desc.Kind == KindStereoPicture {
		per = 2
	}
	if i < 0 || i*per >= int64(len(r.frames)) {
		return nil, dcperr.InFile(dcperr.KindMXFFile, fmt.Sprintf("frame %d out of range", i), r.path)
	}
	return r.readSpan(r.frames[i*per])
}

func (r *klvReader) LeftRight(i int64) ([]byte, []byte, error) {
	if r.desc.Kind != KindStereoPicture {
		return nil, nil, dcperr.InFile(dcperr.KindMXFFile, "not a stereoscopic asset", r.path)
	}
	if i < 0 || i*2+1 >= int64(len(r.frames)) {
		return nil, nil, dcperr.InFile(dcperr.KindMXFFile, fmt.Sprintf("frame %d out of range", i), r.path)
	}
	left, err := r.readSpan(r.frames[i*2])
	if err != nil {
		return nil, nil, err
	}
	right, err := r.readSpan(r.frames[i*2+1])
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (r *klvReader) ReadTimedText() ([]byte, error) {
	if r.desc.Kind != KindTimedText {
		return nil, dcperr.InFile(dcperr.KindMXFFile, "not a timed text asset", r.path)
	}
	if len(r.frames) == 0 {
		return nil, dcperr.InFile(dcperr.KindMXFFile, "no timed text payload", r.path)
	}
	return r.readSpan(r.frames[0])
}

func (r *klvReader) AttachKey(key []byte) error {
	if len(key) != 16 {
		return dcperr.New(dcperr.KindMisc, fmt.Sprintf("content key must be 16 bytes, got %d", len(key)))
	}
	if r.desc.KeyID == "" {
		return dcperr.InFile(dcperr.KindMXFFile, "asset is not encrypted", r.path)
	}
	r.key = key
	return nil
}

func (r *klvReader) Close() error {
	return r.f.Close()
}

func (r *klvReader) readSpan(s frameSpan) ([]byte, error) {
	buf := make([]byte, s.len)
	if _, err := r.f.ReadAt(buf, s.off); err != nil {
		return nil, dcperr.Wrap(dcperr.KindMXFFile, "short read", err)
	}
	return buf, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// readKL reads a key and BER length without consuming the value.
func readKL(r io.Reader) ([]byte, int64, error) {
	key := make([]byte, 16)
	if _, err := io.ReadFull(r, key); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, 0, err
	}
	l, err := readBER(r)
	if err != nil {
		return nil, 0, err
	}
	return key, l, nil
}

// FrameSizes returns the byte length of every edit unit without reading
// the payloads. The verifier uses this for bitrate checks.
func FrameSizes(b Backend, path string) ([]int64, error) {
	kr, ok := b.(interface{ frameSizes(string) ([]int64, error) })
	if ok {
		return kr.frameSizes(path)
	}
	r, err := b.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	d, err := b.Probe(path)
	if err != nil {
		return nil, err
	}
	var sizes []int64
	for i := int64(0); i < d.IntrinsicDuration; i++ {
		f, err := r.Frame(i)
		if err != nil {
			return nil, err
		}
		sizes = append(sizes, int64(len(f)))
	}
	return sizes, nil
}
