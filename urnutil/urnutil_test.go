package urnutil

import "testing"

func TestPrefix(t *testing.T) {
	id := "01234567-89ab-cdef-0123-456789abcdef"
	urn := AddPrefix(id)
	if urn != "urn:uuid:"+id {
		t.Errorf("AddPrefix = %q", urn)
	}
	if AddPrefix(urn) != urn {
		t.Error("AddPrefix should be idempotent")
	}
	if TrimPrefix(urn) != id {
		t.Errorf("TrimPrefix = %q", TrimPrefix(urn))
	}
	if TrimPrefix(id) != id {
		t.Error("TrimPrefix without prefix should be a no-op")
	}
}

func TestEqual(t *testing.T) {
	a := "urn:uuid:01234567-89AB-CDEF-0123-456789ABCDEF"
	b := " 01234567-89ab-cdef-0123-456789abcdef "
	if !Equal(a, b) {
		t.Error("case and prefix insensitive compare failed")
	}
	if Equal(a, "urn:uuid:11234567-89ab-cdef-0123-456789abcdef") {
		t.Error("distinct ids reported equal")
	}
}

func TestNewUUID(t *testing.T) {
	id := NewUUID()
	if !Valid(id) {
		t.Errorf("NewUUID produced invalid id %q", id)
	}
	if id == NewUUID() {
		t.Error("two NewUUID calls returned the same value")
	}
}
