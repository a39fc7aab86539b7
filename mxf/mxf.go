// Package mxf is the seam between the package model and MXF essence
// files. The library never decodes essence itself; it probes wrapper
// metadata and streams frames through the Backend interface so that a
// real wrapping library, or a test double, can be plugged in.
package mxf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/value"
)

// EssenceKind classifies the payload of an MXF file.
type EssenceKind int

const (
	KindUnknown EssenceKind = iota
	KindMonoPicture
	KindStereoPicture
	KindSound
	KindAtmos
	KindTimedText
)

func (k EssenceKind) String() string {
	switch k {
	case KindMonoPicture:
		return "mono picture"
	case KindStereoPicture:
		return "stereo picture"
	case KindSound:
		return "sound"
	case KindAtmos:
		return "atmos"
	case KindTimedText:
		return "timed text"
	}
	return "unknown"
}

// Descriptor summarises the wrapper metadata of an essence file.
type Descriptor struct {
	Kind              EssenceKind
	EditRate          value.Fraction
	IntrinsicDuration int64
	// KeyID is the urn-less cryptographic key UUID, empty for
	// plaintext essence.
	KeyID        string
	SampleRate   int
	ChannelCount int
	PictureSize  value.Size
}

// FrameReader streams edit units out of an essence file.
type FrameReader interface {
	// Frame returns the bytes of edit unit i.
	Frame(i int64) ([]byte, error)
	// LeftRight returns both eyes of a stereoscopic edit unit.
	LeftRight(i int64) (left, right []byte, err error)
	// ReadTimedText returns the wrapped subtitle document.
	ReadTimedText() ([]byte, error)
	// AttachKey supplies the 16-byte content key for encrypted essence.
	AttachKey(key []byte) error
	Close() error
}

// FrameWriter appends edit units to a new essence file.
type FrameWriter interface {
	WriteFrame(data []byte) error
	// Finalize writes the footer and closes the file.
	Finalize() error
}

// Backend wraps and unwraps essence files.
type Backend interface {
	Probe(path string) (Descriptor, error)
	OpenReader(path string) (FrameReader, error)
	CreateWriter(path string, d Descriptor) (FrameWriter, error)
}

// KLV is the built-in backend. It parses wrapper metadata and essence
// elements directly but cannot write new files.
var KLV Backend = klvBackend{}

// Default is the backend used by the asset and verify packages. Tests
// swap in a fake; production callers install a full wrapping library.
var Default = KLV

// SMPTE universal labels. Only the labels this library dispatches on
// are listed.
var (
	ulPartitionPrefix = []byte{0x06, 0x0E, 0x2B, 0x34, 0x02, 0x05, 0x01, 0x01, 0x0D, 0x01, 0x02, 0x01, 0x01}
	ulPrimerPack      = []byte{0x06, 0x0E, 0x2B, 0x34, 0x02, 0x05, 0x01, 0x01, 0x0D, 0x01, 0x02, 0x01, 0x01, 0x05, 0x01, 0x00}
	ulKLVFill         = []byte{0x06, 0x0E, 0x2B, 0x34, 0x01, 0x01, 0x01, 0x02, 0x03, 0x01, 0x02, 0x10, 0x01, 0x00, 0x00, 0x00}

	// Essence container labels, partition pack batch.
	ulContainerJPEG2000  = []byte{0x06, 0x0E, 0x2B, 0x34, 0x04, 0x01, 0x01, 0x07, 0x0D, 0x01, 0x03, 0x01, 0x02, 0x0C, 0x01, 0x00}
	ulContainerStereo    = []byte{0x06, 0x0E, 0x2B, 0x34, 0x04, 0x01, 0x01, 0x0A, 0x0D, 0x01, 0x03, 0x01, 0x02, 0x11, 0x01, 0x00}
	ulContainerPCM       = []byte{0x06, 0x0E, 0x2B, 0x34, 0x04, 0x01, 0x01, 0x01, 0x0D, 0x01, 0x03, 0x01, 0x02, 0x06, 0x01, 0x00}
	ulContainerAtmos     = []byte{0x06, 0x0E, 0x2B, 0x34, 0x04, 0x01, 0x01, 0x0D, 0x0D, 0x01, 0x03, 0x01, 0x02, 0x1D, 0x01, 0x00}
	ulContainerTimedText = []byte{0x06, 0x0E, 0x2B, 0x34, 0x04, 0x01, 0x01, 0x0A, 0x0D, 0x01, 0x03, 0x01, 0x02, 0x13, 0x01, 0x01}

	// Metadata set keys. Byte 14 selects the set within the structural
	// metadata group.
	ulSetPrefix = []byte{0x06, 0x0E, 0x2B, 0x34, 0x02, 0x53, 0x01, 0x01, 0x0D, 0x01, 0x01, 0x01, 0x01, 0x01}

	ulCryptoContext = []byte{0x06, 0x0E, 0x2B, 0x34, 0x02, 0x53, 0x01, 0x01, 0x0D, 0x01, 0x04, 0x01, 0x02, 0x02, 0x00, 0x00}
	ulCryptoKeyID   = []byte{0x06, 0x0E, 0x2B, 0x34, 0x01, 0x01, 0x01, 0x09, 0x06, 0x01, 0x01, 0x06, 0x02, 0x00, 0x00, 0x00}

	ulFooterPrefix = []byte{0x06, 0x0E, 0x2B, 0x34, 0x02, 0x05, 0x01, 0x01, 0x0D, 0x01, 0x02, 0x01, 0x01, 0x04}
)

// Descriptor set byte-14 values.
const (
	setGenericPicture  = 0x27
	setCDCIPicture     = 0x28
	setRGBAPicture     = 0x29
	setGenericSound    = 0x42
	setWaveAudio       = 0x48
	setJPEG2000SubDesc = 0x5A
)

// Descriptor local tags.
const (
	tagSampleRate        = 0x3001
	tagContainerDuration = 0x3002
	tagStoredHeight      = 0x3202
	tagStoredWidth       = 0x3203
	tagAudioSamplingRate = 0x3D03
	tagChannelCount      = 0x3D07
)

type klvBackend struct{}

func (klvBackend) Probe(path string) (Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return Descriptor{}, dcperr.Wrap(dcperr.KindMXFFile, "cannot open MXF file", err)
	}
	defer f.Close()
	return probe(f, path)
}

func probe(r io.Reader, path string) (Descriptor, error) {
	key, val, err := readKLV(r)
	if err != nil {
		return Descriptor{}, dcperr.InFile(dcperr.KindMXFFile, "no KLV header partition", path)
	}
	if !bytes.HasPrefix(key, ulPartitionPrefix) {
		return Descriptor{}, dcperr.InFile(dcperr.KindMXFFile, "file does not start with a partition pack", path)
	}
	if len(val) < 88 {
		return Descriptor{}, dcperr.InFile(dcperr.KindMXFFile, "short partition pack", path)
	}

	headerByteCount := binary.BigEndian.Uint64(val[32:40])

	var d Descriptor
	d.Kind, err = kindFromContainers(val[80:], path)
	if err != nil {
		return Descriptor{}, err
	}

	// Header metadata follows the partition pack.
	meta := make([]byte, headerByteCount)
	if _, err := io.ReadFull(r, meta); err != nil {
		return Descriptor{}, dcperr.InFile(dcperr.KindMXFFile, "truncated header metadata", path)
	}
	if err := parseMetadata(meta, &d, path); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

func kindFromContainers(batch []byte, path string) (EssenceKind, error) {
	if len(batch) < 8 {
		return KindUnknown, dcperr.InFile(dcperr.KindMXFFile, "partition pack has no essence container batch", path)
	}
	count := binary.BigEndian.Uint32(batch[0:4])
	itemLen := binary.BigEndian.Uint32(batch[4:8])
	if itemLen != 16 || len(batch) < int(8+count*16) {
		return KindUnknown, dcperr.InFile(dcperr.KindMXFFile, "malformed essence container batch", path)
	}
	for i := uint32(0); i < count; i++ {
		ul := batch[8+i*16 : 8+(i+1)*16]
		switch {
		case bytes.Equal(ul, ulContainerStereo):
			return KindStereoPicture, nil
		case bytes.Equal(ul, ulContainerJPEG2000):
			return KindMonoPicture, nil
		case bytes.Equal(ul, ulContainerPCM):
			return KindSound, nil
		case bytes.Equal(ul, ulContainerAtmos):
			return KindAtmos, nil
		case bytes.Equal(ul, ulContainerTimedText):
			return KindTimedText, nil
		}
	}
	return KindUnknown, dcperr.InFile(dcperr.KindMXFFile, "unknown essence container label", path)
}

func parseMetadata(meta []byte, d *Descriptor, path string) error {
	primer := map[uint16][]byte{}
	r := bytes.NewReader(meta)
	for {
		key, val, err := readKLV(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return dcperr.InFile(dcperr.KindMXFFile, "malformed header metadata", path)
		}
		switch {
		case bytes.Equal(key, ulPrimerPack):
			parsePrimer(val, primer)
		case bytes.Equal(key, ulKLVFill):
			// padding
		case bytes.Equal(key, ulCryptoContext):
			forEachLocal(val, func(tag uint16, v []byte) {
				if ul, ok := primer[tag]; ok && bytes.Equal(ul, ulCryptoKeyID) && len(v) == 16 {
					d.KeyID = formatUUID(v)
				}
			})
		case bytes.HasPrefix(key, ulSetPrefix):
			parseDescriptorSet(key[14], val, d)
		}
	}
}

func parsePrimer(val []byte, primer map[uint16][]byte) {
	if len(val) < 8 {
		return
	}
	count := binary.BigEndian.Uint32(val[0:4])
	itemLen := binary.BigEndian.Uint32(val[4:8])
	if itemLen != 18 || len(val) < int(8+count*18) {
		return
	}
	for i := uint32(0); i < count; i++ {
		entry := val[8+i*18 : 8+(i+1)*18]
		primer[binary.BigEndian.Uint16(entry[0:2])] = entry[2:18]
	}
}

func parseDescriptorSet(set byte, val []byte, d *Descriptor) {
	switch set {
	case setGenericPicture, setCDCIPicture, setRGBAPicture, setJPEG2000SubDesc,
		setGenericSound, setWaveAudio:
	default:
		return
	}
	forEachLocal(val, func(tag uint16, v []byte) {
		switch tag {
		case tagSampleRate:
			if len(v) == 8 {
				d.EditRate = value.Fraction{
					Numerator:   int(binary.BigEndian.Uint32(v[0:4])),
					Denominator: int(binary.BigEndian.Uint32(v[4:8])),
				}
			}
		case tagContainerDuration:
			if len(v) == 8 {
				d.IntrinsicDuration = int64(binary.BigEndian.Uint64(v))
			}
		case tagStoredWidth:
			if len(v) == 4 {
				d.PictureSize.Width = int(binary.BigEndian.Uint32(v))
			}
		case tagStoredHeight:
			if len(v) == 4 {
				d.PictureSize.Height = int(binary.BigEndian.Uint32(v))
			}
		case tagAudioSamplingRate:
			if len(v) == 8 {
				d.SampleRate = int(binary.BigEndian.Uint32(v[0:4]))
			}
		case tagChannelCount:
			if len(v) == 4 {
				d.ChannelCount = int(binary.BigEndian.Uint32(v))
			}
		}
	})
}

// forEachLocal walks the 2-byte-tag, 2-byte-length local set encoding.
func forEachLocal(val []byte, fn func(tag uint16, v []byte)) {
	for len(val) >= 4 {
		tag := binary.BigEndian.Uint16(val[0:2])
		l := int(binary.BigEndian.Uint16(val[2:4]))
		if len(val) < 4+l {
			return
		}
		fn(tag, val[4:4+l])
		val = val[4+l:]
	}
}

// readKLV reads one key-length-value triplet with a BER length.
func readKLV(r io.Reader) (key, val []byte, err error) {
	key = make([]byte, 16)
	if _, err = io.ReadFull(r, key); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, nil, err
	}
	l, err := readBER(r)
	if err != nil {
		return nil, nil, err
	}
	val = make([]byte, l)
	if _, err = io.ReadFull(r, val); err != nil {
		return nil, nil, err
	}
	return key, val, nil
}

func readBER(r io.Reader) (int64, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	if b[0] < 0x80 {
		return int64(b[0]), nil
	}
	n := int(b[0] & 0x7F)
	if n == 0 || n > 8 {
		return 0, fmt.Errorf("bad BER length byte %#x", b[0])
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	var l int64
	for _, c := range buf {
		l = l<<8 | int64(c)
	}
	return l, nil
}

func formatUUID(b []byte) string {
	return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7],
		b[8], b[9], b[10], b[11], b[12], b[13], b[14], b[15])
}
