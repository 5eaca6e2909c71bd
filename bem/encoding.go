package bem

import (
	"fmt"
	"sort"
	"strings"
)

// Names reserved by field paths; see Lookup.
var reservedSlotNames = map[string]bool{"ic": true, "imm": true, "limm": true}

// BinaryEncoding is the root of the encoding tree. It owns the move slots,
// immediate slots, long immediate destination register fields and the
// optional immediate control field (all positioned in the instruction word),
// plus the socket code tables and instruction formats referenced by them.
type BinaryEncoding struct {
	field

	moveSlots      []*MoveSlot
	immediateSlots []*ImmediateSlotField
	limmFields     []*LImmDstRegisterField
	icField        *ImmediateControlField

	socketCodeTables []*SocketCodeTable
	formats          []*InstructionFormat
}

// NewBinaryEncoding creates an empty encoding map.
func NewBinaryEncoding() *BinaryEncoding {
	return &BinaryEncoding{}
}

func (e *BinaryEncoding) Kind() Kind { return KindBinaryEncoding }

// Width returns the width of the whole instruction word.
func (e *BinaryEncoding) Width() int {
	w := 0
	for _, c := range e.children() {
		w += c.Width()
	}
	return w + e.extraBits
}

// WidthFor returns the width of the instruction word for the named template.
// An operation-triggered instruction format with that name defines its own
// width; every other template uses the full move-slot word.
func (e *BinaryEncoding) WidthFor(templateName string) int {
	if f, ok := e.InstructionFormat(templateName); ok {
		return f.Width()
	}
	return e.Width()
}

// children returns all positioned children in no particular order.
func (e *BinaryEncoding) children() []positioned {
	out := make([]positioned, 0, e.ChildCount())
	for _, s := range e.moveSlots {
		out = append(out, s)
	}
	for _, s := range e.immediateSlots {
		out = append(out, s)
	}
	for _, f := range e.limmFields {
		out = append(out, f)
	}
	if e.icField != nil {
		out = append(out, e.icField)
	}
	return out
}

// ChildCount returns the number of fields positioned in the instruction word.
func (e *BinaryEncoding) ChildCount() int {
	n := len(e.moveSlots) + len(e.immediateSlots) + len(e.limmFields)
	if e.icField != nil {
		n++
	}
	return n
}

// Child returns the field at the given relative position.
func (e *BinaryEncoding) Child(position int) (Field, error) {
	return childAt(e.children(), position)
}

func (e *BinaryEncoding) removeChild(position int) {
	closeGap(e.children(), position)
}

// ---------------------------------------------------------------------------
// Move slots
// ---------------------------------------------------------------------------

// AddMoveSlot creates a move slot for the named bus at the next free
// position (to the left of the existing fields).
func (e *BinaryEncoding) AddMoveSlot(busName string) (*MoveSlot, error) {
	if err := validName(busName); err != nil {
		return nil, err
	}
	if reservedSlotNames[busName] {
		return nil, fmt.Errorf("move slot name %q is reserved: %w", busName, ErrInvalidArgument)
	}
	if _, ok := e.MoveSlot(busName); ok {
		return nil, fmt.Errorf("move slot %q: %w", busName, ErrDuplicateField)
	}
	s := &MoveSlot{name: busName}
	s.position = e.ChildCount()
	e.moveSlots = append(e.moveSlots, s)
	return s, nil
}

// RemoveMoveSlot detaches the named move slot.
func (e *BinaryEncoding) RemoveMoveSlot(busName string) error {
	for i, s := range e.moveSlots {
		if s.name == busName {
			e.moveSlots = append(e.moveSlots[:i], e.moveSlots[i+1:]...)
			e.removeChild(s.position)
			return nil
		}
	}
	return fmt.Errorf("move slot %q: %w", busName, ErrNotFound)
}

// MoveSlot looks up a move slot by bus name.
func (e *BinaryEncoding) MoveSlot(busName string) (*MoveSlot, bool) {
	for _, s := range e.moveSlots {
		if s.name == busName {
			return s, true
		}
	}
	return nil, false
}

// MoveSlotCount returns the number of move slots.
func (e *BinaryEncoding) MoveSlotCount() int { return len(e.moveSlots) }

// MoveSlots returns the move slots ordered from the leftmost (most
// significant) to the rightmost.
func (e *BinaryEncoding) MoveSlots() []*MoveSlot {
	out := make([]*MoveSlot, len(e.moveSlots))
	copy(out, e.moveSlots)
	sortLeftToRight(out)
	return out
}

// ---------------------------------------------------------------------------
// Immediate slots
// ---------------------------------------------------------------------------

// AddImmediateSlot creates a dedicated immediate slot of the given width.
func (e *BinaryEncoding) AddImmediateSlot(name string, width int) (*ImmediateSlotField, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if _, ok := e.ImmediateSlot(name); ok {
		return nil, fmt.Errorf("immediate slot %q: %w", name, ErrDuplicateField)
	}
	if width < 0 {
		return nil, fmt.Errorf("immediate slot %q width %d: %w", name, width, ErrInvalidArgument)
	}
	s := &ImmediateSlotField{name: name, width: width}
	s.position = e.ChildCount()
	e.immediateSlots = append(e.immediateSlots, s)
	return s, nil
}

// RemoveImmediateSlot detaches the named immediate slot.
func (e *BinaryEncoding) RemoveImmediateSlot(name string) error {
	for i, s := range e.immediateSlots {
		if s.name == name {
			e.immediateSlots = append(e.immediateSlots[:i], e.immediateSlots[i+1:]...)
			e.removeChild(s.position)
			return nil
		}
	}
	return fmt.Errorf("immediate slot %q: %w", name, ErrNotFound)
}

// ImmediateSlot looks up an immediate slot by name.
func (e *BinaryEncoding) ImmediateSlot(name string) (*ImmediateSlotField, bool) {
	for _, s := range e.immediateSlots {
		if s.name == name {
			return s, true
		}
	}
	return nil, false
}

// ImmediateSlots returns the immediate slots, leftmost first.
func (e *BinaryEncoding) ImmediateSlots() []*ImmediateSlotField {
	out := make([]*ImmediateSlotField, len(e.immediateSlots))
	copy(out, e.immediateSlots)
	sortLeftToRight(out)
	return out
}

// ---------------------------------------------------------------------------
// Long immediate destination register fields
// ---------------------------------------------------------------------------

// AddLongImmDstRegisterField creates a long immediate destination register
// field of the given width.
func (e *BinaryEncoding) AddLongImmDstRegisterField(name string, width int) (*LImmDstRegisterField, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if _, ok := e.LongImmDstRegisterField(name); ok {
		return nil, fmt.Errorf("long immediate destination field %q: %w", name, ErrDuplicateField)
	}
	if width < 0 {
		return nil, fmt.Errorf("long immediate destination field %q width %d: %w", name, width, ErrInvalidArgument)
	}
	f := &LImmDstRegisterField{name: name, width: width, destinations: make(map[string]string)}
	f.position = e.ChildCount()
	e.limmFields = append(e.limmFields, f)
	return f, nil
}

// RemoveLongImmDstRegisterField detaches the named field.
func (e *BinaryEncoding) RemoveLongImmDstRegisterField(name string) error {
	for i, f := range e.limmFields {
		if f.name == name {
			e.limmFields = append(e.limmFields[:i], e.limmFields[i+1:]...)
			e.removeChild(f.position)
			return nil
		}
	}
	return fmt.Errorf("long immediate destination field %q: %w", name, ErrNotFound)
}

// LongImmDstRegisterField looks up a long immediate destination register
// field by name.
func (e *BinaryEncoding) LongImmDstRegisterField(name string) (*LImmDstRegisterField, bool) {
	for _, f := range e.limmFields {
		if f.name == name {
			return f, true
		}
	}
	return nil, false
}

// LongImmDstRegisterFields returns the fields, leftmost first.
func (e *BinaryEncoding) LongImmDstRegisterFields() []*LImmDstRegisterField {
	out := make([]*LImmDstRegisterField, len(e.limmFields))
	copy(out, e.limmFields)
	sortLeftToRight(out)
	return out
}

// ---------------------------------------------------------------------------
// Immediate control field
// ---------------------------------------------------------------------------

// AddImmediateControlField creates the immediate control field. There can
// be only one.
func (e *BinaryEncoding) AddImmediateControlField() (*ImmediateControlField, error) {
	if e.icField != nil {
		return nil, fmt.Errorf("immediate control field: %w", ErrDuplicateField)
	}
	f := &ImmediateControlField{templates: make(map[string]uint64)}
	f.position = e.ChildCount()
	e.icField = f
	return f, nil
}

// RemoveImmediateControlField detaches the immediate control field.
func (e *BinaryEncoding) RemoveImmediateControlField() error {
	if e.icField == nil {
		return fmt.Errorf("immediate control field: %w", ErrNotFound)
	}
	pos := e.icField.position
	e.icField = nil
	e.removeChild(pos)
	return nil
}

// ImmediateControlField returns the immediate control field, if present.
func (e *BinaryEncoding) ImmediateControlField() (*ImmediateControlField, bool) {
	return e.icField, e.icField != nil
}

// ---------------------------------------------------------------------------
// Socket code tables
// ---------------------------------------------------------------------------

// AddSocketCodeTable creates a named socket code table.
func (e *BinaryEncoding) AddSocketCodeTable(name string) (*SocketCodeTable, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if _, ok := e.SocketCodeTable(name); ok {
		return nil, fmt.Errorf("socket code table %q: %w", name, ErrDuplicateField)
	}
	t := &SocketCodeTable{name: name}
	t.position = len(e.socketCodeTables)
	e.socketCodeTables = append(e.socketCodeTables, t)
	return t, nil
}

// RemoveSocketCodeTable deletes the named table and clears every socket
// encoding that referred to it.
func (e *BinaryEncoding) RemoveSocketCodeTable(name string) error {
	for i, t := range e.socketCodeTables {
		if t.name != name {
			continue
		}
		e.socketCodeTables = append(e.socketCodeTables[:i], e.socketCodeTables[i+1:]...)
		for j, rest := range e.socketCodeTables {
			rest.position = j
		}
		for _, s := range e.moveSlots {
			if s.source != nil {
				s.source.dropTable(t)
			}
			if s.destination != nil {
				s.destination.dropTable(t)
			}
		}
		return nil
	}
	return fmt.Errorf("socket code table %q: %w", name, ErrNotFound)
}

// SocketCodeTable looks up a socket code table by name.
func (e *BinaryEncoding) SocketCodeTable(name string) (*SocketCodeTable, bool) {
	for _, t := range e.socketCodeTables {
		if t.name == name {
			return t, true
		}
	}
	return nil, false
}

// SocketCodeTables returns the tables in creation order.
func (e *BinaryEncoding) SocketCodeTables() []*SocketCodeTable {
	out := make([]*SocketCodeTable, len(e.socketCodeTables))
	copy(out, e.socketCodeTables)
	return out
}

// ---------------------------------------------------------------------------
// Instruction formats
// ---------------------------------------------------------------------------

// AddInstructionFormat creates a named operation-triggered format.
func (e *BinaryEncoding) AddInstructionFormat(name string) (*InstructionFormat, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if _, ok := e.InstructionFormat(name); ok {
		return nil, fmt.Errorf("instruction format %q: %w", name, ErrDuplicateField)
	}
	f := &InstructionFormat{name: name, operations: make(map[string]uint64)}
	f.position = len(e.formats)
	e.formats = append(e.formats, f)
	return f, nil
}

// RemoveInstructionFormat deletes the named format.
func (e *BinaryEncoding) RemoveInstructionFormat(name string) error {
	for i, f := range e.formats {
		if f.name == name {
			e.formats = append(e.formats[:i], e.formats[i+1:]...)
			for j, rest := range e.formats {
				rest.position = j
			}
			return nil
		}
	}
	return fmt.Errorf("instruction format %q: %w", name, ErrNotFound)
}

// InstructionFormat looks up a format by name.
func (e *BinaryEncoding) InstructionFormat(name string) (*InstructionFormat, bool) {
	for _, f := range e.formats {
		if f.name == name {
			return f, true
		}
	}
	return nil, false
}

// InstructionFormats returns the formats in creation order.
func (e *BinaryEncoding) InstructionFormats() []*InstructionFormat {
	out := make([]*InstructionFormat, len(e.formats))
	copy(out, e.formats)
	return out
}

// ---------------------------------------------------------------------------
// Field lookup and offsets
// ---------------------------------------------------------------------------

// Lookup resolves a field path:
//
//	ic              immediate control field
//	imm.<name>      immediate slot
//	limm.<name>     long immediate destination register field
//	<bus>           move slot
//	<bus>.guard     guard field of a move slot
//	<bus>.src       source field of a move slot
//	<bus>.dst       destination field of a move slot
func (e *BinaryEncoding) Lookup(path string) (Field, error) {
	if path == "ic" {
		if e.icField == nil {
			return nil, fmt.Errorf("field %q: %w", path, ErrNotFound)
		}
		return e.icField, nil
	}
	head, tail, nested := strings.Cut(path, ".")
	switch {
	case head == "imm" && nested:
		if s, ok := e.ImmediateSlot(tail); ok {
			return s, nil
		}
	case head == "limm" && nested:
		if f, ok := e.LongImmDstRegisterField(tail); ok {
			return f, nil
		}
	default:
		slot, ok := e.MoveSlot(head)
		if !ok {
			break
		}
		if !nested {
			return slot, nil
		}
		switch tail {
		case "guard":
			if slot.guard != nil {
				return slot.guard, nil
			}
		case "src":
			if slot.source != nil {
				return slot.source, nil
			}
		case "dst":
			if slot.destination != nil {
				return slot.destination, nil
			}
		}
	}
	return nil, fmt.Errorf("field %q: %w", path, ErrNotFound)
}

// FieldOffset returns the index of the first (most significant) bit of the
// field, counted from the left end of the instruction word.
func (e *BinaryEncoding) FieldOffset(f Field) (int, error) {
	right, err := e.bitPositionInWord(f)
	if err != nil {
		return 0, err
	}
	return e.Width() - right - f.Width(), nil
}

// bitPositionInWord returns the position of the least significant bit of f
// counted from the right end of the word.
func (e *BinaryEncoding) bitPositionInWord(f Field) (int, error) {
	switch f.Kind() {
	case KindMoveSlot, KindImmediateSlotField, KindLongImmDstRegisterField, KindImmediateControlField:
		return BitPosition(e, f)
	case KindGuardField, KindSourceField, KindDestinationField:
		for _, s := range e.moveSlots {
			inner, err := BitPosition(s, f)
			if err != nil {
				continue
			}
			outer, err := BitPosition(e, s)
			if err != nil {
				return 0, err
			}
			return outer + inner, nil
		}
	}
	return 0, fmt.Errorf("%s is not positioned in the instruction word: %w", f.Kind(), ErrNotFound)
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, ". \t\n") {
		return fmt.Errorf("name %q: %w", name, ErrInvalidArgument)
	}
	return nil
}

// sortLeftToRight orders fields by descending relative position.
func sortLeftToRight[F Field](fields []F) {
	sort.Slice(fields, func(i, j int) bool {
		return fields[i].RelativePosition() > fields[j].RelativePosition()
	})
}
