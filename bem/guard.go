package bem

import "fmt"

// GuardEncoding binds one guard expression to the bit pattern that selects
// it in a guard field. Exactly one of the register, unit or unconditional
// forms is used.
type GuardEncoding struct {
	// RegisterFile and Register identify a general purpose register guard.
	RegisterFile string `toml:"register-file,omitempty" cbor:"1,keyasint,omitempty"`
	Register     int    `toml:"register,omitempty" cbor:"2,keyasint,omitempty"`

	// Unit and Port identify a function unit output port guard.
	Unit string `toml:"unit,omitempty" cbor:"3,keyasint,omitempty"`
	Port string `toml:"port,omitempty" cbor:"4,keyasint,omitempty"`

	Inverted bool   `toml:"inverted,omitempty" cbor:"5,keyasint,omitempty"`
	Encoding uint64 `toml:"encoding" cbor:"6,keyasint"`
}

// Unconditional reports whether the encoding has no register or port.
func (g GuardEncoding) Unconditional() bool {
	return g.RegisterFile == "" && g.Unit == ""
}

// sameGuard reports whether two encodings describe the same guard.
func (g GuardEncoding) sameGuard(o GuardEncoding) bool {
	return g.RegisterFile == o.RegisterFile && g.Register == o.Register &&
		g.Unit == o.Unit && g.Port == o.Port && g.Inverted == o.Inverted
}

func (g GuardEncoding) String() string {
	neg := ""
	if g.Inverted {
		neg = "!"
	}
	switch {
	case g.RegisterFile != "":
		return fmt.Sprintf("%s%s.%d", neg, g.RegisterFile, g.Register)
	case g.Unit != "":
		return fmt.Sprintf("%s%s.%s", neg, g.Unit, g.Port)
	default:
		if g.Inverted {
			return "never"
		}
		return "always"
	}
}

// GuardField selects the guard of a move.
type GuardField struct {
	field
	encodings []GuardEncoding
}

func (g *GuardField) Kind() Kind { return KindGuardField }

// Width is the maximum number of bits needed by any guard encoding, plus
// extra bits.
func (g *GuardField) Width() int {
	w := 0
	for _, enc := range g.encodings {
		if n := RequiredBits(enc.Encoding); n > w {
			w = n
		}
	}
	return w + g.extraBits
}

// AddEncoding registers a guard encoding. A guard can be encoded only once
// and an encoding value can select only one guard.
func (g *GuardField) AddEncoding(enc GuardEncoding) error {
	for _, existing := range g.encodings {
		if existing.sameGuard(enc) {
			return fmt.Errorf("guard %s already encoded: %w", enc, ErrDuplicateField)
		}
		if existing.Encoding == enc.Encoding {
			return fmt.Errorf("guard encoding %d already assigned to %s: %w", enc.Encoding, existing, ErrDuplicateField)
		}
	}
	g.encodings = append(g.encodings, enc)
	return nil
}

// RemoveEncoding removes the encoding of the given guard.
func (g *GuardField) RemoveEncoding(guard GuardEncoding) error {
	for i, existing := range g.encodings {
		if existing.sameGuard(guard) {
			g.encodings = append(g.encodings[:i], g.encodings[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("guard %s: %w", guard, ErrNotFound)
}

// Encodings returns the registered guard encodings in insertion order.
func (g *GuardField) Encodings() []GuardEncoding {
	out := make([]GuardEncoding, len(g.encodings))
	copy(out, g.encodings)
	return out
}

// UnconditionalEncoding returns the encoding of the always-true (inverted
// false) or never (inverted true) guard.
func (g *GuardField) UnconditionalEncoding(inverted bool) (GuardEncoding, bool) {
	for _, enc := range g.encodings {
		if enc.Unconditional() && enc.Inverted == inverted {
			return enc, true
		}
	}
	return GuardEncoding{}, false
}
