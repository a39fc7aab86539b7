// Package dcperr defines the structured error type shared by the DCP
// packages.
package dcperr

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind rather than matching error strings.
//
// NOTE: Error() strings are intentionally kept human-readable and may evolve.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	// KindRead covers unrecoverable problems while loading a DCP, such as
	// a missing ASSETMAP or an unknown PKL asset type.
	KindRead Kind = "Read"
	// KindXML covers malformed or unexpected XML documents.
	KindXML Kind = "XML"
	// KindMXFFile covers problems with MXF essence files.
	KindMXFFile Kind = "MXFFile"
	// KindMisc covers operational failures (crypto contexts, temp files,
	// external tools).
	KindMisc Kind = "Misc"
	// KindCertificateChain covers certificate chains that cannot be
	// ordered or validated.
	KindCertificateChain Kind = "CertificateChain"
	// KindBadSetting covers setter-level precondition violations, such as
	// a UTC offset outside the permitted range.
	KindBadSetting Kind = "BadSetting"
	// KindDuplicateID covers identifiers that must be unique but are not.
	KindDuplicateID Kind = "DuplicateID"
)

// Error is the library's structured error type.
//
// File, where set, names the document or essence file the error concerns.
type Error struct {
	Kind    Kind
	Message string
	File    string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.File != "" {
		return e.Message + " (" + e.File + ")"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New returns a structured error with the given kind and message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap returns a structured error wrapping cause. A nil cause behaves
// like New.
func Wrap(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// InFile returns a structured error annotated with the file it concerns.
func InFile(kind Kind, msg, file string) error {
	return &Error{Kind: kind, Message: msg, File: file}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
