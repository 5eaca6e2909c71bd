// Package bitstream implements the relocatable bit stream that accumulates
// the encoding of a program. Bits that hold the address of another
// instruction are annotated with references and filled in once the address
// is known.
//
// Bit 0 is the first (leftmost, most significant) bit of the stream.
package bitstream

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

var (
	// ErrInsufficientReservedWidth is returned when a value needs more bits
	// than were reserved for it.
	ErrInsufficientReservedWidth = errors.New("insufficient reserved width")

	// ErrOutOfRange is returned for indices past the end of the stream or
	// the boundary table.
	ErrOutOfRange = errors.New("out of range")

	// ErrInvalidArgument is returned for malformed ranges and input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnresolvedReference is returned by Validate when a reference has
	// not received its address yet.
	ErrUnresolvedReference = errors.New("unresolved reference")
)

// InstructionID identifies the instruction a reference points to. It is an
// index into the program that owns the instruction.
type InstructionID int

// Range is an inclusive span of bit indices.
type Range struct {
	Start int
	End  int
}

// Width returns the number of bits in the range.
func (r Range) Width() int { return r.End - r.Start + 1 }

// Reference is one reference table: the ranges that together hold the
// address of the target instruction, most significant range first.
type Reference struct {
	Target InstructionID
	Ranges []Range
}

// Width returns the number of bits reserved by the reference.
func (r Reference) Width() int {
	w := 0
	for _, rg := range r.Ranges {
		w += rg.Width()
	}
	return w
}

type table struct {
	Reference
	applied bool
}

// Stream is a bit vector annotated with instruction references and
// instruction boundaries. The zero value is an empty stream.
type Stream struct {
	bits       []bool
	tables     []*table
	open       *table
	boundaries []int
	addresses  map[InstructionID]uint64
}

// New returns an empty stream.
func New() *Stream {
	return &Stream{}
}

// Parse builds a stream from a string of '0' and '1' characters.
func Parse(s string) (*Stream, error) {
	st := &Stream{bits: make([]bool, 0, len(s))}
	for i, c := range s {
		switch c {
		case '0':
			st.bits = append(st.bits, false)
		case '1':
			st.bits = append(st.bits, true)
		default:
			return nil, fmt.Errorf("character %q at %d: %w", c, i, ErrInvalidArgument)
		}
	}
	return st, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string) *Stream {
	st, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return st
}

// ---------------------------------------------------------------------------
// Bits
// ---------------------------------------------------------------------------

// Len returns the number of bits in the stream.
func (s *Stream) Len() int { return len(s.bits) }

// Bit returns bit i. It panics if i is out of range.
func (s *Stream) Bit(i int) bool { return s.bits[i] }

// Uint64 returns width bits starting at start as an unsigned integer, the
// first bit being the most significant.
func (s *Stream) Uint64(start, width int) (uint64, error) {
	if width < 0 || width > 64 || start < 0 || start+width > len(s.bits) {
		return 0, fmt.Errorf("bits [%d, %d) of %d: %w", start, start+width, len(s.bits), ErrOutOfRange)
	}
	var v uint64
	for _, b := range s.bits[start : start+width] {
		v <<= 1
		if b {
			v |= 1
		}
	}
	return v, nil
}

// Segment returns bits [start, end) as a string of '0' and '1'.
func (s *Stream) Segment(start, end int) (string, error) {
	if start < 0 || end < start || end > len(s.bits) {
		return "", fmt.Errorf("segment [%d, %d) of %d: %w", start, end, len(s.bits), ErrOutOfRange)
	}
	var sb strings.Builder
	sb.Grow(end - start)
	for _, b := range s.bits[start:end] {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String(), nil
}

// String returns the whole stream as '0' and '1' characters.
func (s *Stream) String() string {
	str, _ := s.Segment(0, len(s.bits))
	return str
}

// Bytes packs the stream eight bits per byte, first bit in the most
// significant position. A final partial byte is zero padded on the right.
func (s *Stream) Bytes() []byte {
	out := make([]byte, (len(s.bits)+7)/8)
	for i, b := range s.bits {
		if b {
			out[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return out
}

// PushBit appends a single bit.
func (s *Stream) PushBit(b bool) error {
	s.bits = append(s.bits, b)
	return s.applyPending()
}

// PushBits appends the width least significant bits of value, most
// significant first.
func (s *Stream) PushBits(value uint64, width int) error {
	if width < 0 || width > 64 {
		return fmt.Errorf("width %d: %w", width, ErrInvalidArgument)
	}
	if bits.Len64(value) > width {
		return fmt.Errorf("value %d does not fit in %d bits: %w", value, width, ErrInsufficientReservedWidth)
	}
	for i := width - 1; i >= 0; i-- {
		s.bits = append(s.bits, value>>uint(i)&1 == 1)
	}
	return s.applyPending()
}

// PushSegment appends bits given as a string of '0' and '1'.
func (s *Stream) PushSegment(segment string) error {
	for i, c := range segment {
		switch c {
		case '0':
			s.bits = append(s.bits, false)
		case '1':
			s.bits = append(s.bits, true)
		default:
			return fmt.Errorf("character %q at %d: %w", c, i, ErrInvalidArgument)
		}
	}
	return s.applyPending()
}

// PadTo appends zero bits until the length is a multiple of unit.
func (s *Stream) PadTo(unit int) error {
	if unit <= 0 {
		return fmt.Errorf("pad unit %d: %w", unit, ErrInvalidArgument)
	}
	for len(s.bits)%unit != 0 {
		s.bits = append(s.bits, false)
	}
	return s.applyPending()
}

// Append concatenates other to the end of s. The references of other are
// carried over with their ranges shifted by the current length, and any
// address already fixed in either stream is applied to them. Boundaries are
// not carried over; the caller marks them in the combined stream.
func (s *Stream) Append(other *Stream) error {
	offset := len(s.bits)
	s.bits = append(s.bits, other.bits...)
	for _, t := range other.tables {
		shifted := &table{Reference: Reference{
			Target: t.Target,
			Ranges: make([]Range, len(t.Ranges)),
		}}
		for i, r := range t.Ranges {
			shifted.Ranges[i] = Range{Start: r.Start + offset, End: r.End + offset}
		}
		s.tables = append(s.tables, shifted)
	}
	for target, addr := range other.addresses {
		if _, ok := s.addresses[target]; !ok {
			if s.addresses == nil {
				s.addresses = make(map[InstructionID]uint64)
			}
			s.addresses[target] = addr
		}
	}
	return s.applyPending()
}

// ---------------------------------------------------------------------------
// References
// ---------------------------------------------------------------------------

// BeginReference opens a new reference table for target. Subsequent
// AddRange calls add ranges to it.
func (s *Stream) BeginReference(target InstructionID) {
	t := &table{Reference: Reference{Target: target}}
	s.tables = append(s.tables, t)
	s.open = t
}

// AddRange adds the inclusive range [start, end] to the open reference.
// Ranges may lie beyond the current end of the stream.
func (s *Stream) AddRange(start, end int) error {
	if s.open == nil {
		return fmt.Errorf("range [%d, %d] without reference: %w", start, end, ErrInvalidArgument)
	}
	if start < 0 || start > end {
		return fmt.Errorf("range [%d, %d]: %w", start, end, ErrInvalidArgument)
	}
	s.open.Ranges = append(s.open.Ranges, Range{Start: start, End: end})
	return nil
}

// References returns a copy of every reference table in creation order.
func (s *Stream) References() []Reference {
	out := make([]Reference, len(s.tables))
	for i, t := range s.tables {
		out[i] = Reference{Target: t.Target, Ranges: append([]Range(nil), t.Ranges...)}
	}
	return out
}

// FixAddress sets the address of target and writes it into every range
// that refers to it. Ranges not yet covered by bits are written as soon as
// the bits are appended.
func (s *Stream) FixAddress(target InstructionID, address uint64) error {
	for _, t := range s.tables {
		if t.Target != target {
			continue
		}
		if err := checkReserved(t.Reference, address); err != nil {
			return err
		}
	}
	if s.addresses == nil {
		s.addresses = make(map[InstructionID]uint64)
	}
	s.addresses[target] = address
	for _, t := range s.tables {
		if t.Target == target {
			t.applied = false
		}
	}
	return s.applyPending()
}

// Address returns the fixed address of target.
func (s *Stream) Address(target InstructionID) (uint64, bool) {
	a, ok := s.addresses[target]
	return a, ok
}

// Validate reports the first reference that has no address or whose bits
// have not been appended.
func (s *Stream) Validate() error {
	for _, t := range s.tables {
		if _, ok := s.addresses[t.Target]; !ok {
			return fmt.Errorf("reference to instruction %d: %w", t.Target, ErrUnresolvedReference)
		}
		if !t.applied {
			return fmt.Errorf("reference to instruction %d covers bits past the end of the stream: %w", t.Target, ErrUnresolvedReference)
		}
	}
	return nil
}

func (s *Stream) applyPending() error {
	for _, t := range s.tables {
		if t.applied {
			continue
		}
		addr, ok := s.addresses[t.Target]
		if !ok || !s.covers(t.Reference) {
			continue
		}
		if err := s.fixBits(t.Reference, addr); err != nil {
			return err
		}
		t.applied = true
	}
	return nil
}

func (s *Stream) covers(r Reference) bool {
	for _, rg := range r.Ranges {
		if rg.End >= len(s.bits) {
			return false
		}
	}
	return true
}

// fixBits writes value into the ranges of r. The least significant bit goes
// to the end of the last range; higher bits walk left through the ranges
// and unused bits are cleared.
func (s *Stream) fixBits(r Reference, value uint64) error {
	if err := checkReserved(r, value); err != nil {
		return err
	}
	bit := 0
	for i := len(r.Ranges) - 1; i >= 0; i-- {
		rg := r.Ranges[i]
		for idx := rg.End; idx >= rg.Start; idx-- {
			s.bits[idx] = bit < 64 && value>>uint(bit)&1 == 1
			bit++
		}
	}
	return nil
}

func checkReserved(r Reference, value uint64) error {
	required := bits.Len64(value)
	if required == 0 {
		required = 1
	}
	if available := r.Width(); required > available {
		return fmt.Errorf("address %d of instruction %d needs %d bits, %d reserved: %w",
			value, r.Target, required, available, ErrInsufficientReservedWidth)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Instruction boundaries
// ---------------------------------------------------------------------------

// MarkBoundary records that an instruction starts at bit pos. Boundaries are
// kept sorted; marking an existing boundary again has no effect.
func (s *Stream) MarkBoundary(pos int) error {
	if pos < 0 {
		return fmt.Errorf("boundary %d: %w", pos, ErrInvalidArgument)
	}
	i := sort.SearchInts(s.boundaries, pos)
	if i < len(s.boundaries) && s.boundaries[i] == pos {
		return nil
	}
	s.boundaries = append(s.boundaries, 0)
	copy(s.boundaries[i+1:], s.boundaries[i:])
	s.boundaries[i] = pos
	return nil
}

// InstructionCount returns the number of marked boundaries.
func (s *Stream) InstructionCount() int { return len(s.boundaries) }

// InstructionStart returns the starting bit of instruction i.
func (s *Stream) InstructionStart(i int) (int, error) {
	if i < 0 || i >= len(s.boundaries) {
		return 0, fmt.Errorf("instruction %d of %d: %w", i, len(s.boundaries), ErrOutOfRange)
	}
	return s.boundaries[i], nil
}
