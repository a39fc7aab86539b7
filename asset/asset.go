// Package asset models the files referenced by a packing list: MXF
// essence, fonts, and anything else with an identifier, a hash and a
// size.
package asset

import (
	"crypto/sha1"
	"encoding/base64"
	"io"
	"os"

	"cinekit.dev/dcp/dcperr"
	"cinekit.dev/dcp/urnutil"
	"cinekit.dev/dcp/value"
)

// Packable is anything that can appear in a PKL and ASSETMAP.
type Packable interface {
	ID() string
	File() string
	// Hash returns the base64 SHA-1 of the file, computing and caching
	// it on first use. progress may be nil.
	Hash(progress func(float64)) (string, error)
	// PKLType is the <Type> string for the PKL entry.
	PKLType(s value.Standard) string
	Size() (int64, error)
}

// Common carries the state shared by every asset variant.
type Common struct {
	id   string
	file string
	hash string
}

// NewCommon generates a fresh identifier when id is empty.
func NewCommon(id, file string) Common {
	if id == "" {
		id = urnutil.NewUUID()
	}
	return Common{id: urnutil.TrimPrefix(id), file: file}
}

func (c *Common) ID() string       { return c.id }
func (c *Common) File() string     { return c.file }
func (c *Common) SetFile(f string) { c.file = f }
func (c *Common) SetID(id string)  { c.id = urnutil.TrimPrefix(id) }

// SetHash installs a known hash, typically one read from a PKL, so that
// Hash need not re-read the file.
func (c *Common) SetHash(h string) { c.hash = h }

func (c *Common) Hash(progress func(float64)) (string, error) {
	if c.hash != "" {
		return c.hash, nil
	}
	h, err := HashFile(c.file, progress)
	if err != nil {
		return "", err
	}
	c.hash = h
	return h, nil
}

func (c *Common) Size() (int64, error) {
	st, err := os.Stat(c.file)
	if err != nil {
		return 0, dcperr.Wrap(dcperr.KindMisc, "cannot stat asset file", err)
	}
	return st.Size(), nil
}

// HashFile computes the base64 SHA-1 digest used by packing lists,
// reporting progress in [0, 1] as it reads.
func HashFile(path string, progress func(float64)) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", dcperr.Wrap(dcperr.KindMisc, "cannot open file for hashing", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return "", dcperr.Wrap(dcperr.KindMisc, "cannot stat file for hashing", err)
	}

	h := sha1.New()
	buf := make([]byte, 1<<20)
	var done int64
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			done += int64(n)
			if progress != nil && st.Size() > 0 {
				progress(float64(done) / float64(st.Size()))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", dcperr.Wrap(dcperr.KindMisc, "read failed while hashing", err)
		}
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
