package bem

import (
	"fmt"
	"sort"
)

// Piece places one operand (or part of one) of an operation-triggered
// encoding inside the instruction word.
type Piece struct {
	Index       int `toml:"index" cbor:"1,keyasint"`
	BitPosition int `toml:"bit-position" cbor:"2,keyasint"`
	Width       int `toml:"width" cbor:"3,keyasint"`
}

// FormatEncoding is a named operand layout of an instruction format.
type FormatEncoding struct {
	Name   string  `toml:"name" cbor:"1,keyasint"`
	Pieces []Piece `toml:"piece" cbor:"2,keyasint"`
}

// InstructionFormat is a named operation-triggered instruction layout with
// its own width and operation codes.
type InstructionFormat struct {
	field
	name       string
	encodings  []FormatEncoding
	operations map[string]uint64
}

func (f *InstructionFormat) Kind() Kind { return KindInstructionFormat }

func (f *InstructionFormat) Name() string { return f.name }

// Width is the highest bit covered by any piece plus extra bits.
func (f *InstructionFormat) Width() int {
	w := 0
	for _, enc := range f.encodings {
		for _, p := range enc.Pieces {
			if end := p.BitPosition + p.Width; end > w {
				w = end
			}
		}
	}
	return w + f.extraBits
}

// AddEncoding adds a named operand layout.
func (f *InstructionFormat) AddEncoding(enc FormatEncoding) error {
	for _, p := range enc.Pieces {
		if p.BitPosition < 0 || p.Width < 0 {
			return fmt.Errorf("format %q encoding %q piece %d: %w", f.name, enc.Name, p.Index, ErrInvalidArgument)
		}
	}
	for _, existing := range f.encodings {
		if existing.Name == enc.Name {
			return fmt.Errorf("format %q encoding %q: %w", f.name, enc.Name, ErrDuplicateField)
		}
	}
	pieces := make([]Piece, len(enc.Pieces))
	copy(pieces, enc.Pieces)
	f.encodings = append(f.encodings, FormatEncoding{Name: enc.Name, Pieces: pieces})
	return nil
}

// Encodings returns the operand layouts in insertion order.
func (f *InstructionFormat) Encodings() []FormatEncoding {
	out := make([]FormatEncoding, len(f.encodings))
	copy(out, f.encodings)
	return out
}

// AddOperation binds an operation name to its code.
func (f *InstructionFormat) AddOperation(name string, code uint64) error {
	if _, ok := f.operations[name]; ok {
		return fmt.Errorf("format %q operation %q: %w", f.name, name, ErrDuplicateField)
	}
	f.operations[name] = code
	return nil
}

// RemoveOperation removes an operation.
func (f *InstructionFormat) RemoveOperation(name string) error {
	if _, ok := f.operations[name]; !ok {
		return fmt.Errorf("format %q operation %q: %w", f.name, name, ErrNotFound)
	}
	delete(f.operations, name)
	return nil
}

// OperationCode returns the code of the named operation.
func (f *InstructionFormat) OperationCode(name string) (uint64, bool) {
	c, ok := f.operations[name]
	return c, ok
}

// Operations returns the operation names in sorted order.
func (f *InstructionFormat) Operations() []string {
	out := make([]string, 0, len(f.operations))
	for name := range f.operations {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
