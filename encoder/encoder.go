// Package encoder lays out the field values of scheduled instructions
// according to a binary encoding model. Each instruction becomes its own
// relocatable bit stream; references to other instructions are recorded as
// ranges over the fields that will hold their addresses.
package encoder

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/pig/bem"
	"github.com/chazu/pig/bitstream"
	"github.com/chazu/pig/program"
)

var (
	// ErrUnknownField is returned for a field path the encoding does not
	// define.
	ErrUnknownField = errors.New("unknown field")

	// ErrUnknownTemplate is returned when the immediate control field has
	// no code for the instruction's template.
	ErrUnknownTemplate = errors.New("unknown template")
)

// Encoder encodes instructions for one encoding model.
type Encoder struct {
	enc *bem.BinaryEncoding
}

// New returns an encoder for the given model.
func New(enc *bem.BinaryEncoding) *Encoder {
	return &Encoder{enc: enc}
}

// Encoding returns the model used by the encoder.
func (x *Encoder) Encoding() *bem.BinaryEncoding { return x.enc }

// Encode returns the bits of one instruction. The stream has the width of
// the instruction's template and carries the instruction's references.
func (x *Encoder) Encode(ins program.Instruction) (*bitstream.Stream, error) {
	if f, ok := x.enc.InstructionFormat(ins.Template); ok {
		return x.encodeFormat(f, ins)
	}
	return x.encodeMoves(ins)
}

// ---------------------------------------------------------------------------
// Move-slot templates
// ---------------------------------------------------------------------------

func (x *Encoder) encodeMoves(ins program.Instruction) (*bitstream.Stream, error) {
	for path := range ins.Fields {
		if _, err := x.rangeOf(path); err != nil {
			return nil, err
		}
	}

	st := bitstream.New()
	if err := st.PushBits(0, x.enc.ExtraBits()); err != nil {
		return nil, err
	}
	for pos := x.enc.ChildCount() - 1; pos >= 0; pos-- {
		child, err := x.enc.Child(pos)
		if err != nil {
			return nil, err
		}
		switch f := child.(type) {
		case *bem.ImmediateControlField:
			code, ok := ins.Fields["ic"]
			if !ok {
				code, ok = f.TemplateEncoding(ins.Template)
				if !ok {
					return nil, fmt.Errorf("template %q: %w", ins.Template, ErrUnknownTemplate)
				}
			}
			if err := push(st, "ic", code, f.Width()); err != nil {
				return nil, err
			}
		case *bem.MoveSlot:
			if err := x.encodeSlot(st, f, ins.Fields); err != nil {
				return nil, err
			}
		case *bem.ImmediateSlotField:
			path := "imm." + f.Name()
			if err := push(st, path, ins.Fields[path], f.Width()); err != nil {
				return nil, err
			}
		case *bem.LImmDstRegisterField:
			path := "limm." + f.Name()
			if err := push(st, path, ins.Fields[path], f.Width()); err != nil {
				return nil, err
			}
		}
	}

	if err := x.addRefs(st, ins); err != nil {
		return nil, err
	}
	return st, nil
}

func (x *Encoder) encodeSlot(st *bitstream.Stream, s *bem.MoveSlot, fields map[string]uint64) error {
	if v, ok := fields[s.Name()]; ok {
		return push(st, s.Name(), v, s.Width())
	}
	if err := st.PushBits(0, s.ExtraBits()); err != nil {
		return err
	}
	for _, sub := range s.SubFields() {
		var path string
		var value uint64
		switch f := sub.(type) {
		case *bem.GuardField:
			path = s.Name() + ".guard"
			if enc, ok := f.UnconditionalEncoding(false); ok {
				value = enc.Encoding
			}
		case *bem.SourceField:
			path = s.Name() + ".src"
			if nop, ok := f.NOPEncoding(); ok {
				value = nop.Encoding
			}
			if imm, ok := fields[path+".imm"]; ok {
				enc, _ := f.ImmediateEncoding()
				v, err := enc.Value(imm)
				if err != nil {
					return fmt.Errorf("field %q: %w", path+".imm", err)
				}
				value = v
			}
		case *bem.DestinationField:
			path = s.Name() + ".dst"
			if nop, ok := f.NOPEncoding(); ok {
				value = nop.Encoding
			}
		}
		if v, ok := fields[path]; ok {
			value = v
		}
		if err := push(st, path, value, sub.Width()); err != nil {
			return err
		}
	}
	return nil
}

// rangeOf returns the first bit and width of a field path within the move
// slot instruction word.
func (x *Encoder) rangeOf(path string) (bitstream.Range, error) {
	lookup, imm := path, false
	if strings.HasSuffix(path, ".src.imm") {
		lookup, imm = strings.TrimSuffix(path, ".imm"), true
	}
	f, err := x.enc.Lookup(lookup)
	if err != nil {
		return bitstream.Range{}, fmt.Errorf("field %q: %w", path, ErrUnknownField)
	}
	off, err := x.enc.FieldOffset(f)
	if err != nil {
		return bitstream.Range{}, err
	}
	width := f.Width()
	if imm {
		enc, ok := f.(*bem.SourceField).ImmediateEncoding()
		if !ok {
			return bitstream.Range{}, fmt.Errorf("field %q has no short immediate: %w", path, ErrUnknownField)
		}
		off += width - enc.ImmediateWidth
		width = enc.ImmediateWidth
	}
	return bitstream.Range{Start: off, End: off + width - 1}, nil
}

func (x *Encoder) addRefs(st *bitstream.Stream, ins program.Instruction) error {
	for _, ref := range ins.Refs {
		st.BeginReference(bitstream.InstructionID(ref.Target))
		for _, path := range ref.Paths {
			r, err := x.rangeOf(path)
			if err != nil {
				return err
			}
			if err := st.AddRange(r.Start, r.End); err != nil {
				return fmt.Errorf("reference field %q: %w", path, err)
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Operation-triggered templates
// ---------------------------------------------------------------------------

func (x *Encoder) encodeFormat(f *bem.InstructionFormat, ins program.Instruction) (*bitstream.Stream, error) {
	width := f.Width()
	word := make([]byte, width)
	for i := range word {
		word[i] = '0'
	}
	encodings := make(map[string]bem.FormatEncoding)
	for _, enc := range f.Encodings() {
		encodings[enc.Name] = enc
	}

	for name, value := range ins.Fields {
		enc, ok := encodings[name]
		if !ok {
			return nil, fmt.Errorf("format %q field %q: %w", f.Name(), name, ErrUnknownField)
		}
		bit := 0
		for _, p := range sortedPieces(enc) {
			for k := 0; k < p.Width; k++ {
				if bit < 64 && value>>uint(bit)&1 == 1 {
					word[width-1-(p.BitPosition+k)] = '1'
				}
				bit++
			}
		}
		if bit < 64 && value>>uint(bit) != 0 {
			return nil, fmt.Errorf("format %q field %q value %d does not fit in %d bits: %w",
				f.Name(), name, value, bit, bitstream.ErrInsufficientReservedWidth)
		}
	}

	st := bitstream.New()
	if err := st.PushSegment(string(word)); err != nil {
		return nil, err
	}
	for _, ref := range ins.Refs {
		st.BeginReference(bitstream.InstructionID(ref.Target))
		for _, path := range ref.Paths {
			enc, ok := encodings[path]
			if !ok {
				return nil, fmt.Errorf("format %q reference field %q: %w", f.Name(), path, ErrUnknownField)
			}
			pieces := sortedPieces(enc)
			for i := len(pieces) - 1; i >= 0; i-- {
				p := pieces[i]
				start := width - p.BitPosition - p.Width
				if err := st.AddRange(start, start+p.Width-1); err != nil {
					return nil, err
				}
			}
		}
	}
	return st, nil
}

// sortedPieces orders the pieces of an encoding from the least significant
// to the most significant.
func sortedPieces(enc bem.FormatEncoding) []bem.Piece {
	pieces := append([]bem.Piece(nil), enc.Pieces...)
	sort.Slice(pieces, func(i, j int) bool { return pieces[i].Index < pieces[j].Index })
	return pieces
}

func push(st *bitstream.Stream, path string, value uint64, width int) error {
	if err := st.PushBits(value, width); err != nil {
		return fmt.Errorf("field %q: %w", path, err)
	}
	return nil
}
