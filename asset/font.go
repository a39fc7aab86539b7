package asset

import "cinekit.dev/dcp/value"

// Font is a sidecar font file referenced by Interop subtitles.
type Font struct {
	Common
}

func NewFont(id, file string) *Font {
	return &Font{Common: NewCommon(id, file)}
}

func (f *Font) PKLType(s value.Standard) string {
	if s == value.SMPTE {
		return "application/x-font-opentype"
	}
	return "text/xml"
}
