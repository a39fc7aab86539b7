package asset

import (
	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/mxf"
	"cinekit.dev/dcp/value"
)

// MXF is the base for essence assets. Encryption state comes from the
// wrapper metadata at probe time.
type MXF struct {
	Common
	desc mxf.Descriptor
	key  []byte
}

func (m *MXF) PKLType(value.Standard) string { return "application/mxf" }

func (m *MXF) EditRate() value.Fraction   { return m.desc.EditRate }
func (m *MXF) IntrinsicDuration() int64   { return m.desc.IntrinsicDuration }
func (m *MXF) Descriptor() mxf.Descriptor { return m.desc }

func (m *MXF) Encrypted() bool { return m.desc.KeyID != "" }

// KeyID returns the content key UUID for encrypted essence.
func (m *MXF) KeyID() (string, bool) {
	return m.desc.KeyID, m.desc.KeyID != ""
}

// AttachKey stores the content key for later frame reads. The asset
// must be encrypted.
func (m *MXF) AttachKey(key []byte) error {
	if !m.Encrypted() {
		return dcperr.New(dcperr.KindMisc, "asset "+m.ID()+" is not encrypted")
	}
	if len(key) != 16 {
		return dcperr.New(dcperr.KindMisc, "content key must be 16 bytes")
	}
	m.key = append([]byte(nil), key...)
	return nil
}

// Key returns the attached content key, if any.
func (m *MXF) Key() ([]byte, bool) {
	return m.key, m.key != nil
}

// OpenReader opens a frame reader through the installed backend,
// forwarding any attached key.
func (m *MXF) OpenReader() (mxf.FrameReader, error) {
	r, err := mxf.Default.OpenReader(m.File())
	if err != nil {
		return nil, err
	}
	if m.key != nil {
		if err := r.AttachKey(m.key); err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

// MonoPicture is 2D JPEG2000 picture essence.
type MonoPicture struct {
	MXF
}

func (p *MonoPicture) PictureSize() value.Size { return p.desc.PictureSize }

// StereoPicture is dual-eye JPEG2000 picture essence.
type StereoPicture struct {
	MXF
}

func (p *StereoPicture) PictureSize() value.Size { return p.desc.PictureSize }

// Sound is PCM sound essence.
type Sound struct {
	MXF
	// Language is the spoken language, as recorded in the CPL reel.
	Language string
}

func (s *Sound) SampleRate() int   { return s.desc.SampleRate }
func (s *Sound) ChannelCount() int { return s.desc.ChannelCount }

// Atmos is immersive audio essence.
type Atmos struct {
	MXF
}

// FromMXF probes path and returns the matching essence asset. Timed
// text wrappers are not dispatched here; the caller builds a subtitle
// asset from the descriptor instead.
func FromMXF(id, path string) (Packable, mxf.Descriptor, error) {
	d, err := mxf.Default.Probe(path)
	if err != nil {
		return nil, mxf.Descriptor{}, err
	}
	base := MXF{Common: NewCommon(id, path), desc: d}
	switch d.Kind {
	case mxf.KindMonoPicture:
		return &MonoPicture{MXF: base}, d, nil
	case mxf.KindStereoPicture:
		return &StereoPicture{MXF: base}, d, nil
	case mxf.KindSound:
		return &Sound{MXF: base}, d, nil
	case mxf.KindAtmos:
		return &Atmos{MXF: base}, d, nil
	}
	return nil, d, nil
}
