package bem

import "fmt"

// MoveSlot is the part of the instruction word that programs one transport
// bus. It holds at most one guard, one source and one destination field.
// An absent sub-field is simply nil; there is no placeholder object.
type MoveSlot struct {
	field
	name string

	guard       *GuardField
	source      *SourceField
	destination *DestinationField
}

func (s *MoveSlot) Kind() Kind { return KindMoveSlot }

// Name returns the name of the bus programmed by the slot.
func (s *MoveSlot) Name() string { return s.name }

// Width is the sum of the sub-field widths plus extra bits.
func (s *MoveSlot) Width() int {
	w := 0
	for _, c := range s.children() {
		w += c.Width()
	}
	return w + s.extraBits
}

func (s *MoveSlot) children() []positioned {
	var out []positioned
	if s.guard != nil {
		out = append(out, s.guard)
	}
	if s.source != nil {
		out = append(out, s.source)
	}
	if s.destination != nil {
		out = append(out, s.destination)
	}
	return out
}

// ChildCount returns the number of sub-fields present.
func (s *MoveSlot) ChildCount() int { return len(s.children()) }

// Child returns the sub-field at the given relative position.
func (s *MoveSlot) Child(position int) (Field, error) {
	return childAt(s.children(), position)
}

// AddGuardField creates the guard field of the slot.
func (s *MoveSlot) AddGuardField() (*GuardField, error) {
	if s.guard != nil {
		return nil, fmt.Errorf("guard field of move slot %q: %w", s.name, ErrDuplicateField)
	}
	g := &GuardField{}
	g.position = s.ChildCount()
	s.guard = g
	return g, nil
}

// RemoveGuardField detaches the guard field.
func (s *MoveSlot) RemoveGuardField() error {
	if s.guard == nil {
		return fmt.Errorf("guard field of move slot %q: %w", s.name, ErrNotFound)
	}
	pos := s.guard.position
	s.guard = nil
	closeGap(s.children(), pos)
	return nil
}

// GuardField returns the guard field, if present.
func (s *MoveSlot) GuardField() (*GuardField, bool) { return s.guard, s.guard != nil }

// AddSourceField creates the source field of the slot.
func (s *MoveSlot) AddSourceField() (*SourceField, error) {
	if s.source != nil {
		return nil, fmt.Errorf("source field of move slot %q: %w", s.name, ErrDuplicateField)
	}
	f := &SourceField{}
	f.owner = s.name + ".src"
	f.position = s.ChildCount()
	s.source = f
	return f, nil
}

// RemoveSourceField detaches the source field.
func (s *MoveSlot) RemoveSourceField() error {
	if s.source == nil {
		return fmt.Errorf("source field of move slot %q: %w", s.name, ErrNotFound)
	}
	pos := s.source.position
	s.source = nil
	closeGap(s.children(), pos)
	return nil
}

// SourceField returns the source field, if present.
func (s *MoveSlot) SourceField() (*SourceField, bool) { return s.source, s.source != nil }

// AddDestinationField creates the destination field of the slot.
func (s *MoveSlot) AddDestinationField() (*DestinationField, error) {
	if s.destination != nil {
		return nil, fmt.Errorf("destination field of move slot %q: %w", s.name, ErrDuplicateField)
	}
	f := &DestinationField{}
	f.owner = s.name + ".dst"
	f.position = s.ChildCount()
	s.destination = f
	return f, nil
}

// RemoveDestinationField detaches the destination field.
func (s *MoveSlot) RemoveDestinationField() error {
	if s.destination == nil {
		return fmt.Errorf("destination field of move slot %q: %w", s.name, ErrNotFound)
	}
	pos := s.destination.position
	s.destination = nil
	closeGap(s.children(), pos)
	return nil
}

// DestinationField returns the destination field, if present.
func (s *MoveSlot) DestinationField() (*DestinationField, bool) {
	return s.destination, s.destination != nil
}

// SubFields returns the present sub-fields ordered left to right.
func (s *MoveSlot) SubFields() []Field {
	children := s.children()
	out := make([]Field, len(children))
	for i, c := range children {
		out[i] = c
	}
	sortLeftToRight(out)
	return out
}
