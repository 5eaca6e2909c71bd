package bem

import (
	"fmt"
	"math/bits"
	"sort"
)

// ImmediateControlField selects the instruction template. Its width follows
// the largest template code registered, so it grows as templates are added.
type ImmediateControlField struct {
	field
	templates map[string]uint64
}

func (f *ImmediateControlField) Kind() Kind { return KindImmediateControlField }

// Width returns ceil(log2(maxCode+1)) plus extra bits. An empty field is
// zero bits wide (plus extra bits).
func (f *ImmediateControlField) Width() int {
	var hi uint64
	for _, code := range f.templates {
		if code > hi {
			hi = code
		}
	}
	return bits.Len64(hi) + f.extraBits
}

// TemplateEncoding returns the code of the named template.
func (f *ImmediateControlField) TemplateEncoding(name string) (uint64, bool) {
	code, ok := f.templates[name]
	return code, ok
}

// AddTemplateEncoding binds a template to a code. Re-adding a template
// rebinds it; a code bound to another template is rejected.
func (f *ImmediateControlField) AddTemplateEncoding(name string, code uint64) error {
	if name == "" {
		return fmt.Errorf("template name: %w", ErrInvalidArgument)
	}
	for other, c := range f.templates {
		if c == code && other != name {
			return fmt.Errorf("template code %d already bound to %q: %w", code, other, ErrDuplicateField)
		}
	}
	f.templates[name] = code
	return nil
}

// RemoveTemplateEncoding unbinds the named template.
func (f *ImmediateControlField) RemoveTemplateEncoding(name string) error {
	if _, ok := f.templates[name]; !ok {
		return fmt.Errorf("template %q: %w", name, ErrNotFound)
	}
	delete(f.templates, name)
	return nil
}

// Templates returns the registered template names ordered by code.
func (f *ImmediateControlField) Templates() []string {
	names := make([]string, 0, len(f.templates))
	for name := range f.templates {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return f.templates[names[i]] < f.templates[names[j]]
	})
	return names
}

// ImmediateSlotField is a dedicated part of the instruction word that carries
// long immediate bits.
type ImmediateSlotField struct {
	field
	name  string
	width int
}

func (s *ImmediateSlotField) Kind() Kind { return KindImmediateSlotField }

func (s *ImmediateSlotField) Name() string { return s.name }

func (s *ImmediateSlotField) Width() int { return s.width + s.extraBits }

// SetWidth changes the declared width of the slot.
func (s *ImmediateSlotField) SetWidth(width int) error {
	if width < 0 {
		return fmt.Errorf("immediate slot %q width %d: %w", s.name, width, ErrInvalidArgument)
	}
	s.width = width
	return nil
}

// LImmDstRegisterField selects the immediate unit register written by a long
// immediate. Each template that carries a long immediate names the
// destination unit served by this field.
type LImmDstRegisterField struct {
	field
	name         string
	width        int
	destinations map[string]string
}

func (f *LImmDstRegisterField) Kind() Kind { return KindLongImmDstRegisterField }

func (f *LImmDstRegisterField) Name() string { return f.name }

func (f *LImmDstRegisterField) Width() int { return f.width + f.extraBits }

// SetWidth changes the declared width of the field.
func (f *LImmDstRegisterField) SetWidth(width int) error {
	if width < 0 {
		return fmt.Errorf("long immediate destination field %q width %d: %w", f.name, width, ErrInvalidArgument)
	}
	f.width = width
	return nil
}

// AddDestination records that the template writes its long immediate to the
// given immediate unit through this field.
func (f *LImmDstRegisterField) AddDestination(template, unit string) error {
	if template == "" || unit == "" {
		return fmt.Errorf("long immediate destination %q/%q: %w", template, unit, ErrInvalidArgument)
	}
	if _, ok := f.destinations[template]; ok {
		return fmt.Errorf("template %q already has a destination in %q: %w", template, f.name, ErrDuplicateField)
	}
	f.destinations[template] = unit
	return nil
}

// RemoveDestination forgets the destination of the template.
func (f *LImmDstRegisterField) RemoveDestination(template string) error {
	if _, ok := f.destinations[template]; !ok {
		return fmt.Errorf("template %q in %q: %w", template, f.name, ErrNotFound)
	}
	delete(f.destinations, template)
	return nil
}

// Destination returns the immediate unit written by the template.
func (f *LImmDstRegisterField) Destination(template string) (string, bool) {
	u, ok := f.destinations[template]
	return u, ok
}

// UsedByTemplate reports whether the template uses the field.
func (f *LImmDstRegisterField) UsedByTemplate(template string) bool {
	_, ok := f.destinations[template]
	return ok
}

// Templates returns the served template names in sorted order.
func (f *LImmDstRegisterField) Templates() []string {
	out := make([]string, 0, len(f.destinations))
	for t := range f.destinations {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
