// Package bem implements the binary encoding map of a transport-triggered
// processor: a tree of typed fields that describes how the bits of one
// instruction word are divided between move slots, immediate fields and the
// immediate control field.
//
// The tree is owned top-down. Children do not point back at their parents;
// a field's position in the instruction word is computed by walking down from
// the root (see BitPosition and BinaryEncoding.FieldOffset).
package bem

import (
	"errors"
	"fmt"
	"math/bits"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrDuplicateField is returned when a singleton field already exists
	// under the parent, or when a name or code is already taken.
	ErrDuplicateField = errors.New("duplicate field")

	// ErrInvalidArgument is returned for malformed input such as negative
	// extra bits or an encoding that does not fit its declared width.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when a field, encoding or template is missing.
	ErrNotFound = errors.New("not found")
)

// ---------------------------------------------------------------------------
// Field kinds
// ---------------------------------------------------------------------------

// Kind identifies the variant of a Field.
type Kind uint8

const (
	KindBinaryEncoding Kind = iota
	KindMoveSlot
	KindGuardField
	KindSourceField
	KindDestinationField
	KindImmediateControlField
	KindImmediateSlotField
	KindSocketCodeTable
	KindInstructionFormat
	KindLongImmDstRegisterField
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindBinaryEncoding:
		return "binary encoding"
	case KindMoveSlot:
		return "move slot"
	case KindGuardField:
		return "guard field"
	case KindSourceField:
		return "source field"
	case KindDestinationField:
		return "destination field"
	case KindImmediateControlField:
		return "immediate control field"
	case KindImmediateSlotField:
		return "immediate slot"
	case KindSocketCodeTable:
		return "socket code table"
	case KindInstructionFormat:
		return "instruction format"
	case KindLongImmDstRegisterField:
		return "long immediate destination register field"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Field is a node of the encoding tree.
type Field interface {
	Kind() Kind

	// Width returns the bit width of the field, including extra bits.
	Width() int

	// RelativePosition is the order of the field among its siblings.
	// Position 0 is the rightmost (least significant) field.
	RelativePosition() int

	ExtraBits() int
	SetExtraBits(n int) error
}

// Composite is a field whose children occupy positions inside it.
type Composite interface {
	Field
	ChildCount() int
	Child(position int) (Field, error)
}

// field holds the attributes shared by every field variant.
type field struct {
	position  int
	extraBits int
}

func (f *field) RelativePosition() int { return f.position }

func (f *field) ExtraBits() int { return f.extraBits }

// SetExtraBits sets the number of forced zero bits on the left of the field.
func (f *field) SetExtraBits(n int) error {
	if n < 0 {
		return fmt.Errorf("extra bits %d: %w", n, ErrInvalidArgument)
	}
	f.extraBits = n
	return nil
}

func (f *field) setRelativePosition(p int) { f.position = p }

type positioned interface {
	Field
	setRelativePosition(int)
}

// BitPosition returns the bit index of child inside parent, counted from the
// least significant end: the sum of the widths of all siblings with a smaller
// relative position.
func BitPosition(parent Composite, child Field) (int, error) {
	found := false
	pos := 0
	for i := 0; i < parent.ChildCount(); i++ {
		sibling, err := parent.Child(i)
		if err != nil {
			return 0, err
		}
		if sibling == child {
			found = true
			continue
		}
		if sibling.RelativePosition() < child.RelativePosition() {
			pos += sibling.Width()
		}
	}
	if !found {
		return 0, fmt.Errorf("%s is not a child of the %s: %w", child.Kind(), parent.Kind(), ErrNotFound)
	}
	return pos, nil
}

// childAt finds the child with the given relative position.
func childAt(children []positioned, position int) (Field, error) {
	if position < 0 || position >= len(children) {
		return nil, fmt.Errorf("child position %d of %d: %w", position, len(children), ErrNotFound)
	}
	for _, c := range children {
		if c.RelativePosition() == position {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no child at position %d: %w", position, ErrNotFound)
}

// closeGap renumbers the siblings that followed a removed child so that
// positions stay dense.
func closeGap(children []positioned, removed int) {
	for _, c := range children {
		if p := c.RelativePosition(); p > removed {
			c.setRelativePosition(p - 1)
		}
	}
}

// RequiredBits returns the number of bits needed to represent value.
// Zero needs one bit.
func RequiredBits(value uint64) int {
	if value == 0 {
		return 1
	}
	return bits.Len64(value)
}

// checkFits validates that value is representable in width bits.
func checkFits(value uint64, width int) error {
	if width < 0 {
		return fmt.Errorf("width %d: %w", width, ErrInvalidArgument)
	}
	if bits.Len64(value) > width {
		return fmt.Errorf("encoding %d does not fit in %d bits: %w", value, width, ErrInvalidArgument)
	}
	return nil
}
