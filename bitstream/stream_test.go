package bitstream

import (
	"errors"
	"reflect"
	"testing"
)

func TestPushBits(t *testing.T) {
	s := New()
	if err := s.PushBits(0b101, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.PushBits(1, 4); err != nil {
		t.Fatal(err)
	}
	if got := s.String(); got != "1010001" {
		t.Errorf("String() = %q, want %q", got, "1010001")
	}
	if err := s.PushBits(8, 3); !errors.Is(err, ErrInsufficientReservedWidth) {
		t.Errorf("PushBits(8, 3) = %v, want ErrInsufficientReservedWidth", err)
	}
	v, err := s.Uint64(0, 3)
	if err != nil || v != 5 {
		t.Errorf("Uint64(0, 3) = %d, %v, want 5", v, err)
	}
	if _, err := s.Uint64(5, 3); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Uint64 past end = %v, want ErrOutOfRange", err)
	}
}

func TestBytes(t *testing.T) {
	s := MustParse("101")
	if got := s.Bytes(); !reflect.DeepEqual(got, []byte{0xA0}) {
		t.Errorf("Bytes() = %x, want a0", got)
	}
	s = MustParse("111111110000000110")
	if got := s.Bytes(); !reflect.DeepEqual(got, []byte{0xFF, 0x01, 0x80}) {
		t.Errorf("Bytes() = %x, want ff0180", got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("10x1"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Parse = %v, want ErrInvalidArgument", err)
	}
}

// buildForwardReference lays out three 8-bit instructions; instruction 0
// holds the address of instruction 2 in its low 4 bits.
func buildForwardReference(t *testing.T) *Stream {
	t.Helper()
	s := New()
	for i := 0; i < 3; i++ {
		if err := s.MarkBoundary(i * 8); err != nil {
			t.Fatal(err)
		}
	}
	s.BeginReference(2)
	if err := s.AddRange(4, 7); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := s.PushBits(0xF0, 8); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestFixAddress(t *testing.T) {
	s := buildForwardReference(t)
	if err := s.Validate(); !errors.Is(err, ErrUnresolvedReference) {
		t.Errorf("Validate before fixup = %v, want ErrUnresolvedReference", err)
	}
	if err := s.FixAddress(2, 9); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Segment(4, 8); got != "1001" {
		t.Errorf("reference bits = %q, want 1001", got)
	}
	if got, _ := s.Segment(0, 4); got != "1111" {
		t.Errorf("bits left of the reference changed: %q", got)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate after fixup: %v", err)
	}
	if err := s.FixAddress(2, 31); !errors.Is(err, ErrInsufficientReservedWidth) {
		t.Errorf("FixAddress(31) = %v, want ErrInsufficientReservedWidth", err)
	}
	if got, _ := s.Segment(4, 8); got != "1001" {
		t.Errorf("failed fixup modified bits: %q", got)
	}
	if err := s.FixAddress(2, 0); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Segment(4, 8); got != "0000" {
		t.Errorf("refix bits = %q, want 0000", got)
	}
}

func TestFixAddressBeforeBits(t *testing.T) {
	s := New()
	s.BeginReference(7)
	if err := s.AddRange(2, 5); err != nil {
		t.Fatal(err)
	}
	if err := s.FixAddress(7, 6); err != nil {
		t.Fatal(err)
	}
	if err := s.PushBits(0, 4); err != nil {
		t.Fatal(err)
	}
	if err := s.Validate(); !errors.Is(err, ErrUnresolvedReference) {
		t.Errorf("Validate with uncovered range = %v, want ErrUnresolvedReference", err)
	}
	if err := s.PushBits(0, 4); err != nil {
		t.Fatal(err)
	}
	if got := s.String(); got != "00011000" {
		t.Errorf("String() = %q, want 00011000", got)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestSplitReference(t *testing.T) {
	s := MustParse("1111111111")
	s.BeginReference(0)
	if err := s.AddRange(0, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.AddRange(6, 8); err != nil {
		t.Fatal(err)
	}
	// 13 = 01101: high two bits 01 in [0,1], low three bits 101 in [6,8].
	if err := s.FixAddress(0, 13); err != nil {
		t.Fatal(err)
	}
	if got := s.String(); got != "0111111011" {
		t.Errorf("String() = %q, want 0111111011", got)
	}
}

func TestAddRangeErrors(t *testing.T) {
	s := New()
	if err := s.AddRange(0, 3); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("AddRange without reference = %v, want ErrInvalidArgument", err)
	}
	s.BeginReference(1)
	if err := s.AddRange(4, 3); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("AddRange(4, 3) = %v, want ErrInvalidArgument", err)
	}
}

func TestAppendShiftsReferences(t *testing.T) {
	head := MustParse("111")
	tail := New()
	tail.BeginReference(5)
	if err := tail.AddRange(1, 2); err != nil {
		t.Fatal(err)
	}
	if err := tail.PushBits(0, 4); err != nil {
		t.Fatal(err)
	}

	if err := head.FixAddress(5, 3); err != nil {
		t.Fatal(err)
	}
	if err := head.Append(tail); err != nil {
		t.Fatal(err)
	}
	if got := head.String(); got != "1110110" {
		t.Errorf("String() = %q, want 1110110", got)
	}
	refs := head.References()
	want := []Reference{{Target: 5, Ranges: []Range{{Start: 4, End: 5}}}}
	if !reflect.DeepEqual(refs, want) {
		t.Errorf("References() = %+v, want %+v", refs, want)
	}
	if err := head.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	// The appended stream is left untouched.
	if got := tail.String(); got != "0000" {
		t.Errorf("tail = %q, want 0000", got)
	}
}

func TestAppendCarriesFixedAddresses(t *testing.T) {
	tail := New()
	tail.BeginReference(1)
	if err := tail.AddRange(0, 1); err != nil {
		t.Fatal(err)
	}
	if err := tail.PushBits(0, 2); err != nil {
		t.Fatal(err)
	}
	if err := tail.FixAddress(1, 2); err != nil {
		t.Fatal(err)
	}
	s := MustParse("0")
	if err := s.Append(tail); err != nil {
		t.Fatal(err)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if got := s.String(); got != "010" {
		t.Errorf("String() = %q, want 010", got)
	}
}

func TestBoundaries(t *testing.T) {
	s := New()
	for _, pos := range []int{16, 0, 8, 8, 24} {
		if err := s.MarkBoundary(pos); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.InstructionCount(); got != 4 {
		t.Fatalf("InstructionCount() = %d, want 4", got)
	}
	for i, want := range []int{0, 8, 16, 24} {
		got, err := s.InstructionStart(i)
		if err != nil || got != want {
			t.Errorf("InstructionStart(%d) = %d, %v, want %d", i, got, err, want)
		}
	}
	if _, err := s.InstructionStart(4); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("InstructionStart(4) = %v, want ErrOutOfRange", err)
	}
	if err := s.MarkBoundary(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("MarkBoundary(-1) = %v, want ErrInvalidArgument", err)
	}
}

func TestPadTo(t *testing.T) {
	s := MustParse("101")
	if err := s.PadTo(4); err != nil {
		t.Fatal(err)
	}
	if got := s.String(); got != "1010" {
		t.Errorf("String() = %q, want 1010", got)
	}
	if err := s.PadTo(4); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 4 {
		t.Errorf("Len() = %d after padding an aligned stream", s.Len())
	}
}
