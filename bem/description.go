package bem

import (
	"fmt"
	"sort"
)

// Description is the serializable form of a BinaryEncoding. It is what
// encoding description files and snapshots contain. Positioned elements carry
// their relative position explicitly; Build checks that the positions of
// siblings form the sequence 0..n-1.
type Description struct {
	ExtraBits        int                            `toml:"extra-bits,omitempty" cbor:"1,keyasint,omitempty"`
	SocketCodeTables []SocketCodeTableDescription   `toml:"socket-code-table" cbor:"2,keyasint,omitempty"`
	MoveSlots        []MoveSlotDescription          `toml:"move-slot" cbor:"3,keyasint,omitempty"`
	ImmediateSlots   []ImmediateSlotDescription     `toml:"immediate-slot" cbor:"4,keyasint,omitempty"`
	LImmFields       []LImmDstRegisterDescription   `toml:"limm-destination" cbor:"5,keyasint,omitempty"`
	ImmediateControl *ImmediateControlDescription   `toml:"immediate-control" cbor:"6,keyasint,omitempty"`
	Formats          []InstructionFormatDescription `toml:"instruction-format" cbor:"7,keyasint,omitempty"`
}

type SocketCodeTableDescription struct {
	Name      string     `toml:"name" cbor:"1,keyasint"`
	ExtraBits int        `toml:"extra-bits,omitempty" cbor:"2,keyasint,omitempty"`
	PortCodes []PortCode `toml:"port-code" cbor:"3,keyasint,omitempty"`
}

type MoveSlotDescription struct {
	Bus         string                `toml:"bus" cbor:"1,keyasint"`
	Position    int                   `toml:"position" cbor:"2,keyasint"`
	ExtraBits   int                   `toml:"extra-bits,omitempty" cbor:"3,keyasint,omitempty"`
	Guard       *GuardDescription     `toml:"guard" cbor:"4,keyasint,omitempty"`
	Source      *SlotFieldDescription `toml:"source" cbor:"5,keyasint,omitempty"`
	Destination *SlotFieldDescription `toml:"destination" cbor:"6,keyasint,omitempty"`
}

type GuardDescription struct {
	Position  int             `toml:"position" cbor:"1,keyasint"`
	ExtraBits int             `toml:"extra-bits,omitempty" cbor:"2,keyasint,omitempty"`
	Encodings []GuardEncoding `toml:"encoding" cbor:"3,keyasint,omitempty"`
}

// SlotFieldDescription describes a source or destination field. Immediate
// and bridge encodings are only valid for source fields.
type SlotFieldDescription struct {
	Position  int                         `toml:"position" cbor:"1,keyasint"`
	ExtraBits int                         `toml:"extra-bits,omitempty" cbor:"2,keyasint,omitempty"`
	Sockets   []SocketEncodingDescription `toml:"socket" cbor:"3,keyasint,omitempty"`
	NOP       *NOPEncoding                `toml:"nop" cbor:"4,keyasint,omitempty"`
	Immediate *ImmediateEncoding          `toml:"immediate" cbor:"5,keyasint,omitempty"`
	Bridges   []BridgeEncoding            `toml:"bridge" cbor:"6,keyasint,omitempty"`
}

type SocketEncodingDescription struct {
	Socket   string `toml:"socket" cbor:"1,keyasint"`
	Encoding uint64 `toml:"encoding" cbor:"2,keyasint"`
	IDWidth  int    `toml:"id-width" cbor:"3,keyasint"`
	Table    string `toml:"table,omitempty" cbor:"4,keyasint,omitempty"`
}

type ImmediateSlotDescription struct {
	Name      string `toml:"name" cbor:"1,keyasint"`
	Position  int    `toml:"position" cbor:"2,keyasint"`
	Width     int    `toml:"width" cbor:"3,keyasint"`
	ExtraBits int    `toml:"extra-bits,omitempty" cbor:"4,keyasint,omitempty"`
}

type LImmDstRegisterDescription struct {
	Name         string            `toml:"name" cbor:"1,keyasint"`
	Position     int               `toml:"position" cbor:"2,keyasint"`
	Width        int               `toml:"width" cbor:"3,keyasint"`
	ExtraBits    int               `toml:"extra-bits,omitempty" cbor:"4,keyasint,omitempty"`
	Destinations map[string]string `toml:"destinations" cbor:"5,keyasint,omitempty"`
}

type ImmediateControlDescription struct {
	Position  int               `toml:"position" cbor:"1,keyasint"`
	ExtraBits int               `toml:"extra-bits,omitempty" cbor:"2,keyasint,omitempty"`
	Templates map[string]uint64 `toml:"templates" cbor:"3,keyasint,omitempty"`
}

type InstructionFormatDescription struct {
	Name       string            `toml:"name" cbor:"1,keyasint"`
	ExtraBits  int               `toml:"extra-bits,omitempty" cbor:"2,keyasint,omitempty"`
	Encodings  []FormatEncoding  `toml:"encoding" cbor:"3,keyasint,omitempty"`
	Operations map[string]uint64 `toml:"operations" cbor:"4,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Describe
// ---------------------------------------------------------------------------

// Describe returns the serializable form of the encoding.
func (e *BinaryEncoding) Describe() Description {
	d := Description{ExtraBits: e.extraBits}
	for _, t := range e.socketCodeTables {
		d.SocketCodeTables = append(d.SocketCodeTables, SocketCodeTableDescription{
			Name:      t.name,
			ExtraBits: t.extraBits,
			PortCodes: t.PortCodes(),
		})
	}
	for _, s := range e.MoveSlots() {
		md := MoveSlotDescription{Bus: s.name, Position: s.position, ExtraBits: s.extraBits}
		if s.guard != nil {
			md.Guard = &GuardDescription{
				Position:  s.guard.position,
				ExtraBits: s.guard.extraBits,
				Encodings: s.guard.Encodings(),
			}
		}
		if s.source != nil {
			sd := describeSlotField(&s.source.slotField)
			if s.source.immediate != nil {
				imm := *s.source.immediate
				sd.Immediate = &imm
			}
			sd.Bridges = s.source.BridgeEncodings()
			md.Source = &sd
		}
		if s.destination != nil {
			dd := describeSlotField(&s.destination.slotField)
			md.Destination = &dd
		}
		d.MoveSlots = append(d.MoveSlots, md)
	}
	for _, s := range e.ImmediateSlots() {
		d.ImmediateSlots = append(d.ImmediateSlots, ImmediateSlotDescription{
			Name: s.name, Position: s.position, Width: s.width, ExtraBits: s.extraBits,
		})
	}
	for _, f := range e.LongImmDstRegisterFields() {
		dst := make(map[string]string, len(f.destinations))
		for k, v := range f.destinations {
			dst[k] = v
		}
		d.LImmFields = append(d.LImmFields, LImmDstRegisterDescription{
			Name: f.name, Position: f.position, Width: f.width, ExtraBits: f.extraBits,
			Destinations: dst,
		})
	}
	if e.icField != nil {
		templates := make(map[string]uint64, len(e.icField.templates))
		for k, v := range e.icField.templates {
			templates[k] = v
		}
		d.ImmediateControl = &ImmediateControlDescription{
			Position:  e.icField.position,
			ExtraBits: e.icField.extraBits,
			Templates: templates,
		}
	}
	for _, f := range e.formats {
		ops := make(map[string]uint64, len(f.operations))
		for k, v := range f.operations {
			ops[k] = v
		}
		d.Formats = append(d.Formats, InstructionFormatDescription{
			Name: f.name, ExtraBits: f.extraBits, Encodings: f.Encodings(), Operations: ops,
		})
	}
	return d
}

func describeSlotField(f *slotField) SlotFieldDescription {
	d := SlotFieldDescription{Position: f.position, ExtraBits: f.extraBits}
	for _, s := range f.sockets {
		sd := SocketEncodingDescription{Socket: s.Socket, Encoding: s.Encoding, IDWidth: s.IDWidth}
		if s.Codes != nil {
			sd.Table = s.Codes.name
		}
		d.Sockets = append(d.Sockets, sd)
	}
	if f.nop != nil {
		nop := *f.nop
		d.NOP = &nop
	}
	return d
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

// Build constructs an encoding from its description.
func Build(d Description) (*BinaryEncoding, error) {
	e := NewBinaryEncoding()
	if err := e.SetExtraBits(d.ExtraBits); err != nil {
		return nil, err
	}

	// Tables first: socket encodings refer to them by name.
	for _, td := range d.SocketCodeTables {
		t, err := e.AddSocketCodeTable(td.Name)
		if err != nil {
			return nil, err
		}
		if err := t.SetExtraBits(td.ExtraBits); err != nil {
			return nil, err
		}
		for _, pc := range td.PortCodes {
			if err := t.AddPortCode(pc); err != nil {
				return nil, err
			}
		}
	}

	// Positioned children are created in position order so that each one
	// receives its declared position.
	type builder struct {
		position int
		build    func() error
	}
	var top []builder
	for _, md := range d.MoveSlots {
		md := md
		top = append(top, builder{md.Position, func() error { return e.buildMoveSlot(md) }})
	}
	for _, sd := range d.ImmediateSlots {
		sd := sd
		top = append(top, builder{sd.Position, func() error {
			s, err := e.AddImmediateSlot(sd.Name, sd.Width)
			if err != nil {
				return err
			}
			return s.SetExtraBits(sd.ExtraBits)
		}})
	}
	for _, ld := range d.LImmFields {
		ld := ld
		top = append(top, builder{ld.Position, func() error {
			f, err := e.AddLongImmDstRegisterField(ld.Name, ld.Width)
			if err != nil {
				return err
			}
			if err := f.SetExtraBits(ld.ExtraBits); err != nil {
				return err
			}
			for _, t := range sortedKeys(ld.Destinations) {
				if err := f.AddDestination(t, ld.Destinations[t]); err != nil {
					return err
				}
			}
			return nil
		}})
	}
	if ic := d.ImmediateControl; ic != nil {
		top = append(top, builder{ic.Position, func() error {
			f, err := e.AddImmediateControlField()
			if err != nil {
				return err
			}
			if err := f.SetExtraBits(ic.ExtraBits); err != nil {
				return err
			}
			for _, t := range sortedKeys(ic.Templates) {
				if err := f.AddTemplateEncoding(t, ic.Templates[t]); err != nil {
					return err
				}
			}
			return nil
		}})
	}
	positions := make([]int, len(top))
	for i, b := range top {
		positions[i] = b.position
	}
	if err := checkPermutation("binary encoding", positions); err != nil {
		return nil, err
	}
	sort.Slice(top, func(i, j int) bool { return top[i].position < top[j].position })
	for _, b := range top {
		if err := b.build(); err != nil {
			return nil, err
		}
	}

	for _, fd := range d.Formats {
		f, err := e.AddInstructionFormat(fd.Name)
		if err != nil {
			return nil, err
		}
		if err := f.SetExtraBits(fd.ExtraBits); err != nil {
			return nil, err
		}
		for _, enc := range fd.Encodings {
			if err := f.AddEncoding(enc); err != nil {
				return nil, err
			}
		}
		for _, op := range sortedKeys(fd.Operations) {
			if err := f.AddOperation(op, fd.Operations[op]); err != nil {
				return nil, err
			}
		}
	}
	return e, nil
}

func (e *BinaryEncoding) buildMoveSlot(md MoveSlotDescription) error {
	s, err := e.AddMoveSlot(md.Bus)
	if err != nil {
		return err
	}
	if err := s.SetExtraBits(md.ExtraBits); err != nil {
		return err
	}

	type sub struct {
		position int
		build    func() error
	}
	var subs []sub
	if g := md.Guard; g != nil {
		subs = append(subs, sub{g.Position, func() error {
			f, err := s.AddGuardField()
			if err != nil {
				return err
			}
			if err := f.SetExtraBits(g.ExtraBits); err != nil {
				return err
			}
			for _, enc := range g.Encodings {
				if err := f.AddEncoding(enc); err != nil {
					return err
				}
			}
			return nil
		}})
	}
	if sd := md.Source; sd != nil {
		subs = append(subs, sub{sd.Position, func() error {
			f, err := s.AddSourceField()
			if err != nil {
				return err
			}
			if err := e.buildSlotField(&f.slotField, sd); err != nil {
				return err
			}
			if sd.Immediate != nil {
				if err := f.SetImmediateEncoding(*sd.Immediate); err != nil {
					return err
				}
			}
			for _, b := range sd.Bridges {
				if err := f.AddBridgeEncoding(b); err != nil {
					return err
				}
			}
			return nil
		}})
	}
	if dd := md.Destination; dd != nil {
		if dd.Immediate != nil || len(dd.Bridges) > 0 {
			return fmt.Errorf("destination field of %q cannot encode immediates or bridges: %w", md.Bus, ErrInvalidArgument)
		}
		subs = append(subs, sub{dd.Position, func() error {
			f, err := s.AddDestinationField()
			if err != nil {
				return err
			}
			return e.buildSlotField(&f.slotField, dd)
		}})
	}
	positions := make([]int, len(subs))
	for i, b := range subs {
		positions[i] = b.position
	}
	if err := checkPermutation("move slot "+md.Bus, positions); err != nil {
		return err
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].position < subs[j].position })
	for _, b := range subs {
		if err := b.build(); err != nil {
			return err
		}
	}
	return nil
}

func (e *BinaryEncoding) buildSlotField(f *slotField, d *SlotFieldDescription) error {
	if err := f.SetExtraBits(d.ExtraBits); err != nil {
		return err
	}
	for _, sd := range d.Sockets {
		enc := SocketEncoding{Socket: sd.Socket, Encoding: sd.Encoding, IDWidth: sd.IDWidth}
		if sd.Table != "" {
			t, ok := e.SocketCodeTable(sd.Table)
			if !ok {
				return fmt.Errorf("socket %q refers to table %q: %w", sd.Socket, sd.Table, ErrNotFound)
			}
			enc.Codes = t
		}
		if err := f.AddSocketEncoding(enc); err != nil {
			return err
		}
	}
	if d.NOP != nil {
		return f.SetNOPEncoding(*d.NOP)
	}
	return nil
}

// checkPermutation verifies that positions are exactly 0..n-1.
func checkPermutation(what string, positions []int) error {
	seen := make([]bool, len(positions))
	for _, p := range positions {
		if p < 0 || p >= len(positions) || seen[p] {
			return fmt.Errorf("%s: positions %v are not 0..%d: %w", what, positions, len(positions)-1, ErrInvalidArgument)
		}
		seen[p] = true
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
