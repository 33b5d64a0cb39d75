package aten

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestReformatPixelsSwapsRedAndBlue(t *testing.T) {
	// r=1, g=0, b=0 at bit 10 should move to bit 0 after reformatting.
	var p uint16 = 1 << 10
	src := make([]byte, 2)
	binary.LittleEndian.PutUint16(src, p)

	dst := make([]byte, 2)
	ReformatPixels(dst, src)

	got := binary.LittleEndian.Uint16(dst)
	if got != 1 {
		t.Fatalf("expected red channel to land at bit 0, got 0x%04x", got)
	}
}

func TestReformatPixelsIsSelfInverse(t *testing.T) {
	src := []byte{0x34, 0x7a, 0x00, 0x00, 0xff, 0xff}
	once := make([]byte, len(src))
	twice := make([]byte, len(src))

	ReformatPixels(once, src)
	ReformatPixels(twice, once)

	if !bytes.Equal(src, twice) {
		t.Fatalf("round-trip reformat mismatch: got %x, want %x", twice, src)
	}
}

func TestReformatPixelsPreservesGreen(t *testing.T) {
	var p uint16 = 0x1f << 5 // g=31, r=0, b=0
	src := make([]byte, 2)
	binary.LittleEndian.PutUint16(src, p)

	dst := make([]byte, 2)
	ReformatPixels(dst, src)

	got := binary.LittleEndian.Uint16(dst)
	if got != p {
		t.Fatalf("green channel should be unaffected, got 0x%04x want 0x%04x", got, p)
	}
}
