package value

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"cinekit.dev/dcp/dcperr"
)

// LanguageTag is a validated RFC 5646 language tag.
type LanguageTag struct {
	tag language.Tag
	raw string
}

// ParseLanguageTag rejects malformed tags outright rather than guessing
// at the caller's intent.
func ParseLanguageTag(s string) (LanguageTag, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return LanguageTag{}, dcperr.New(dcperr.KindXML, "empty language tag")
	}
	t, err := language.Parse(s)
	if err != nil {
		return LanguageTag{}, dcperr.Wrap(dcperr.KindXML, "bad language tag "+strconv.Quote(s), err)
	}
	return LanguageTag{tag: t, raw: s}, nil
}

// MustLanguageTag panics on a malformed tag. For constants in tests and
// tool defaults.
func MustLanguageTag(s string) LanguageTag {
	t, err := ParseLanguageTag(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the canonical form of the tag.
func (l LanguageTag) String() string {
	if l.raw == "" {
		return ""
	}
	return l.tag.String()
}

// LanguageSubtag returns the primary language subtag, e.g. "de" for
// "de-DE".
func (l LanguageTag) LanguageSubtag() string {
	b, _ := l.tag.Base()
	return b.String()
}

// RegionSubtag returns the region subtag, or "" if none is present.
func (l LanguageTag) RegionSubtag() string {
	r, c := l.tag.Region()
	if c == language.No || !r.IsCountry() {
		return ""
	}
	return r.String()
}

// ScriptSubtag returns the script subtag when one was given explicitly.
func (l LanguageTag) ScriptSubtag() string {
	s, c := l.tag.Script()
	if c < language.High {
		return ""
	}
	return s.String()
}

func (l LanguageTag) IsZero() bool {
	return l.raw == ""
}

func (l LanguageTag) Equal(o LanguageTag) bool {
	return l.String() == o.String()
}

// ValidRegionSubtag reports whether s is a well-formed region subtag on
// its own, e.g. "DE" or "419".
func ValidRegionSubtag(s string) bool {
	r, err := language.ParseRegion(s)
	if err != nil {
		return false
	}
	return r.String() == strings.ToUpper(s) || r.String() == s
}
