package bem

import "fmt"

// PortKind tells what a port code addresses.
type PortKind uint8

const (
	// PortFU is a function unit port; the index selects an operation.
	PortFU PortKind = iota
	// PortRF is a register file port; the index selects a register.
	PortRF
	// PortIU is an immediate unit port; the index selects a register.
	PortIU
)

// MarshalText implements encoding.TextMarshaler.
func (k PortKind) MarshalText() ([]byte, error) {
	if k > PortIU {
		return nil, fmt.Errorf("port kind %d: %w", k, ErrInvalidArgument)
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PortKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "fu":
		*k = PortFU
	case "rf":
		*k = PortRF
	case "iu":
		*k = PortIU
	default:
		return fmt.Errorf("port kind %q: %w", text, ErrInvalidArgument)
	}
	return nil
}

func (k PortKind) String() string {
	switch k {
	case PortFU:
		return "fu"
	case PortRF:
		return "rf"
	case PortIU:
		return "iu"
	default:
		return fmt.Sprintf("PortKind(%d)", k)
	}
}

// PortCode identifies one port (or register file) reachable through a
// socket. The encoding takes the left Width bits of the code, the index the
// right IndexWidth bits.
type PortCode struct {
	Kind       PortKind `toml:"kind" cbor:"1,keyasint"`
	Unit       string   `toml:"unit" cbor:"2,keyasint"`
	Port       string   `toml:"port,omitempty" cbor:"3,keyasint,omitempty"`
	Encoding   uint64   `toml:"encoding" cbor:"4,keyasint"`
	Width      int      `toml:"width" cbor:"5,keyasint"`
	IndexWidth int      `toml:"index-width" cbor:"6,keyasint"`
}

// TotalWidth returns the width of the encoding plus the index.
func (c PortCode) TotalWidth() int { return c.Width + c.IndexWidth }

// Value combines the port encoding with an operation or register index.
func (c PortCode) Value(index uint64) (uint64, error) {
	if err := checkFits(index, c.IndexWidth); err != nil {
		return 0, fmt.Errorf("port code %s.%s index: %w", c.Unit, c.Port, err)
	}
	return c.Encoding<<uint(c.IndexWidth) | index, nil
}

// SocketCodeTable lists the port codes of the ports reachable through the
// sockets that refer to it.
type SocketCodeTable struct {
	field
	name  string
	codes []PortCode
}

func (t *SocketCodeTable) Kind() Kind { return KindSocketCodeTable }

// Name returns the table name.
func (t *SocketCodeTable) Name() string { return t.name }

// Width is the widest port code plus extra bits.
func (t *SocketCodeTable) Width() int {
	w := 0
	for _, c := range t.codes {
		if cw := c.TotalWidth(); cw > w {
			w = cw
		}
	}
	return w + t.extraBits
}

// AddPortCode registers a port code.
func (t *SocketCodeTable) AddPortCode(c PortCode) error {
	if c.Unit == "" || c.IndexWidth < 0 {
		return fmt.Errorf("port code %q: %w", c.Unit, ErrInvalidArgument)
	}
	if err := checkFits(c.Encoding, c.Width); err != nil {
		return fmt.Errorf("port code %s.%s: %w", c.Unit, c.Port, err)
	}
	for _, existing := range t.codes {
		if existing.Unit == c.Unit && existing.Port == c.Port {
			return fmt.Errorf("port code %s.%s in table %q: %w", c.Unit, c.Port, t.name, ErrDuplicateField)
		}
		if existing.Encoding == c.Encoding && existing.Width == c.Width {
			return fmt.Errorf("port code encoding %d in table %q: %w", c.Encoding, t.name, ErrDuplicateField)
		}
	}
	t.codes = append(t.codes, c)
	return nil
}

// RemovePortCode removes the code of the given unit port. Register file and
// immediate unit codes use an empty port name.
func (t *SocketCodeTable) RemovePortCode(unit, port string) error {
	for i, c := range t.codes {
		if c.Unit == unit && c.Port == port {
			t.codes = append(t.codes[:i], t.codes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("port code %s.%s: %w", unit, port, ErrNotFound)
}

// PortCode looks up the code of a unit port.
func (t *SocketCodeTable) PortCode(unit, port string) (PortCode, bool) {
	for _, c := range t.codes {
		if c.Unit == unit && c.Port == port {
			return c, true
		}
	}
	return PortCode{}, false
}

// PortCodes returns the codes in insertion order.
func (t *SocketCodeTable) PortCodes() []PortCode {
	out := make([]PortCode, len(t.codes))
	copy(out, t.codes)
	return out
}
