package mxf

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"os"
	"strings"

	"cinekit.dev/dcp/dcperr"
)

// OP-Atom operational pattern label.
var ulOPAtom = []byte{0x06, 0x0E, 0x2B, 0x34, 0x04, 0x01, 0x01, 0x02, 0x0D, 0x01, 0x02, 0x01, 0x10, 0x00, 0x00, 0x00}

// WriteKLVFile synthesises a minimal but well-formed file that Probe and
// OpenReader accept: header partition, primer, descriptor set, optional
// cryptographic context, one essence element per frame, footer. The test
// backend builds on this; it is not a conformant wrapper for playback.
func WriteKLVFile(path string, d Descriptor, frames [][]byte) error {
	if d.IntrinsicDuration == 0 {
		d.IntrinsicDuration = int64(len(frames))
		if d.Kind == KindStereoPicture {
			d.IntrinsicDuration /= 2
		}
	}

	container, err := containerFor(d.Kind)
	if err != nil {
		return err
	}

	meta := buildMetadata(d)
	var out bytes.Buffer
	writePartition(&out, append(append([]byte{}, ulPartitionPrefix...), 0x02, 0x04, 0x00), uint64(len(meta)), container)
	out.Write(meta)
	for _, f := range frames {
		key := append(append([]byte{}, ulEssencePrefix...), 0x15, 0x01, 0x08, 0x01)
		writeKLV(&out, key, f)
	}
	writePartition(&out, append(append([]byte{}, ulFooterPrefix...), 0x04, 0x00), 0, container)

	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		return dcperr.Wrap(dcperr.KindMXFFile, "cannot write MXF file", err)
	}
	return nil
}

func containerFor(k EssenceKind) ([]byte, error) {
	switch k {
	case KindMonoPicture:
		return ulContainerJPEG2000, nil
	case KindStereoPicture:
		return ulContainerStereo, nil
	case KindSound:
		return ulContainerPCM, nil
	case KindAtmos:
		return ulContainerAtmos, nil
	case KindTimedText:
		return ulContainerTimedText, nil
	}
	return nil, dcperr.New(dcperr.KindMXFFile, "cannot write unknown essence kind")
}

func writePartition(out *bytes.Buffer, key []byte, headerByteCount uint64, container []byte) {
	var v bytes.Buffer
	be := binary.BigEndian
	var buf8 [8]byte
	var buf4 [4]byte
	var buf2 [2]byte

	be.PutUint16(buf2[:], 1) // major version
	v.Write(buf2[:])
	be.PutUint16(buf2[:], 3) // minor version
	v.Write(buf2[:])
	be.PutUint32(buf4[:], 1) // KAG size
	v.Write(buf4[:])
	for i := 0; i < 2; i++ { // this/previous partition
		be.PutUint64(buf8[:], 0)
		v.Write(buf8[:])
	}
	be.PutUint64(buf8[:], 0) // footer partition offset unknown
	v.Write(buf8[:])
	be.PutUint64(buf8[:], headerByteCount)
	v.Write(buf8[:])
	be.PutUint64(buf8[:], 0) // index byte count
	v.Write(buf8[:])
	be.PutUint32(buf4[:], 0) // index SID
	v.Write(buf4[:])
	be.PutUint64(buf8[:], 0) // body offset
	v.Write(buf8[:])
	be.PutUint32(buf4[:], 1) // body SID
	v.Write(buf4[:])
	v.Write(ulOPAtom)
	be.PutUint32(buf4[:], 1) // essence container count
	v.Write(buf4[:])
	be.PutUint32(buf4[:], 16)
	v.Write(buf4[:])
	v.Write(container)

	writeKLV(out, key, v.Bytes())
}

func buildMetadata(d Descriptor) []byte {
	var meta bytes.Buffer

	// Primer maps the dynamic tag used by the cryptographic context.
	var primer bytes.Buffer
	be := binary.BigEndian
	var buf4 [4]byte
	be.PutUint32(buf4[:], 1)
	primer.Write(buf4[:])
	be.PutUint32(buf4[:], 18)
	primer.Write(buf4[:])
	var tag [2]byte
	be.PutUint16(tag[:], 0x8000)
	primer.Write(tag[:])
	primer.Write(ulCryptoKeyID)
	writeKLV(&meta, ulPrimerPack, primer.Bytes())

	var set bytes.Buffer
	writeLocal(&set, tagSampleRate, rational(d.EditRate.Numerator, d.EditRate.Denominator))
	writeLocal(&set, tagContainerDuration, uint64be(uint64(d.IntrinsicDuration)))
	var setByte byte
	switch d.Kind {
	case KindMonoPicture, KindStereoPicture:
		setByte = setCDCIPicture
		writeLocal(&set, tagStoredWidth, uint32be(uint32(d.PictureSize.Width)))
		writeLocal(&set, tagStoredHeight, uint32be(uint32(d.PictureSize.Height)))
	case KindSound:
		setByte = setWaveAudio
		writeLocal(&set, tagAudioSamplingRate, rational(d.SampleRate, 1))
		writeLocal(&set, tagChannelCount, uint32be(uint32(d.ChannelCount)))
	default:
		setByte = setGenericPicture
	}
	setKey := append(append([]byte{}, ulSetPrefix...), setByte, 0x00)
	writeKLV(&meta, setKey, set.Bytes())

	if d.KeyID != "" {
		raw, err := hex.DecodeString(strings.ReplaceAll(strings.TrimPrefix(d.KeyID, "urn:uuid:"), "-", ""))
		if err == nil && len(raw) == 16 {
			var ctx bytes.Buffer
			writeLocal(&ctx, 0x8000, raw)
			writeKLV(&meta, ulCryptoContext, ctx.Bytes())
		}
	}
	return meta.Bytes()
}

func writeKLV(out *bytes.Buffer, key, val []byte) {
	out.Write(key)
	// BER long form, 8 length octets.
	out.WriteByte(0x88)
	var l [8]byte
	binary.BigEndian.PutUint64(l[:], uint64(len(val)))
	out.Write(l[:])
	out.Write(val)
}

func writeLocal(out *bytes.Buffer, tag uint16, val []byte) {
	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[0:2], tag)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(val)))
	out.Write(hdr[:])
	out.Write(val)
}

func rational(n, d int) []byte {
	var b [8]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(n))
	binary.BigEndian.PutUint32(b[4:8], uint32(d))
	return b[:]
}

func uint32be(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

func uint64be(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
