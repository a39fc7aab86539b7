// Package j2k defines the codec seam for JPEG2000 picture essence. The
// library itself never transcodes; callers that need pixels install
// Encode and Decode, typically bindings to an external codec.
package j2k

import (
	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/value"
)

// XYZImage is a 12-bit-per-component picture in the X'Y'Z' colour space,
// one plane per component.
type XYZImage struct {
	Size   value.Size
	Planes [3][]int32
}

// EncodeFunc compresses one frame to a codestream fitting the given
// bandwidth in bits per second at the given frame rate.
type EncodeFunc func(img XYZImage, bandwidth, fps int, threeD, fourK bool) ([]byte, error)

// DecodeFunc decompresses a codestream. reduce discards that many
// resolution levels; 0 decodes at full size.
type DecodeFunc func(data []byte, reduce int) (XYZImage, error)

var (
	Encode EncodeFunc = func(XYZImage, int, int, bool, bool) ([]byte, error) {
		return nil, dcperr.New(dcperr.KindMisc, "no JPEG2000 encoder installed")
	}
	Decode DecodeFunc = func([]byte, int) (XYZImage, error) {
		return XYZImage{}, dcperr.New(dcperr.KindMisc, "no JPEG2000 decoder installed")
	}
)
