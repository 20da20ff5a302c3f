package packet

import (
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	w := NewWriter(64)
	w.Uint8(0xAB)
	w.Uint16(0x1234)
	w.Uint32(0xDEADBEEF)
	w.Uint64(0x0102030405060708)
	w.Int32(-42)
	w.Int64(-1 << 40)
	w.Float32(3.5)
	w.Float64(-2.25)
	w.Bool(true)
	w.Bool(false)
	w.Bytes32([]byte{1, 2, 3})
	w.String("hello")

	r := NewReader(w.Bytes())
	if got := r.Uint8(); got != 0xAB {
		t.Errorf("Uint8 = %#x", got)
	}
	if got := r.Uint16(); got != 0x1234 {
		t.Errorf("Uint16 = %#x", got)
	}
	if got := r.Uint32(); got != 0xDEADBEEF {
		t.Errorf("Uint32 = %#x", got)
	}
	if got := r.Uint64(); got != 0x0102030405060708 {
		t.Errorf("Uint64 = %#x", got)
	}
	if got := r.Int32(); got != -42 {
		t.Errorf("Int32 = %d", got)
	}
	if got := r.Int64(); got != -1<<40 {
		t.Errorf("Int64 = %d", got)
	}
	if got := r.Float32(); got != 3.5 {
		t.Errorf("Float32 = %v", got)
	}
	if got := r.Float64(); got != -2.25 {
		t.Errorf("Float64 = %v", got)
	}
	if !r.Bool() || r.Bool() {
		t.Error("Bool round trip failed")
	}
	b := r.Bytes32()
	if len(b) != 3 || b[0] != 1 || b[2] != 3 {
		t.Errorf("Bytes32 = %v", b)
	}
	if got := r.String(); got != "hello" {
		t.Errorf("String = %q", got)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", r.Remaining())
	}
}

func TestReaderShort(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_ = r.Uint32()
	if !errors.Is(r.Err(), ErrShort) {
		t.Fatalf("Err = %v, want ErrShort", r.Err())
	}
	// Sticky: further reads return zero and keep the first error
	if got := r.Uint8(); got != 0 {
		t.Errorf("read after error = %d, want 0", got)
	}
	if !errors.Is(r.Err(), ErrShort) {
		t.Errorf("error not sticky: %v", r.Err())
	}
}

func TestBytes32TruncatedLength(t *testing.T) {
	w := NewWriter(8)
	w.Uint32(100) // claims 100 bytes, provides none
	r := NewReader(w.Bytes())
	if b := r.Bytes32(); b != nil {
		t.Errorf("Bytes32 = %v, want nil", b)
	}
	if !errors.Is(r.Err(), ErrShort) {
		t.Errorf("Err = %v, want ErrShort", r.Err())
	}
}
