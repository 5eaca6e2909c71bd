package bem

import "fmt"

// SocketEncoding selects one socket in a source or destination field. The
// socket id occupies the left IDWidth bits; when the socket has a code table
// the port code follows on the right.
type SocketEncoding struct {
	Socket   string
	Encoding uint64
	IDWidth  int
	Codes    *SocketCodeTable
}

// Width returns the number of bits used by the encoding.
func (s SocketEncoding) Width() int {
	w := s.IDWidth
	if s.Codes != nil {
		w += s.Codes.Width()
	}
	return w
}

// Value combines the socket id with a port code from its table.
func (s SocketEncoding) Value(portCode uint64) (uint64, error) {
	if s.Codes == nil {
		if portCode != 0 {
			return 0, fmt.Errorf("socket %q has no code table: %w", s.Socket, ErrInvalidArgument)
		}
		return s.Encoding, nil
	}
	tw := s.Codes.Width()
	if err := checkFits(portCode, tw); err != nil {
		return 0, fmt.Errorf("socket %q port code: %w", s.Socket, err)
	}
	return s.Encoding<<uint(tw) | portCode, nil
}

// NOPEncoding marks an idle transport in a slot field.
type NOPEncoding struct {
	Encoding uint64 `toml:"encoding" cbor:"1,keyasint"`
	Width    int    `toml:"width" cbor:"2,keyasint"`
}

// ImmediateEncoding marks a short immediate in a source field. The id takes
// the left IDWidth bits and the immediate value the right ImmediateWidth bits.
type ImmediateEncoding struct {
	Encoding       uint64 `toml:"encoding" cbor:"1,keyasint"`
	IDWidth        int    `toml:"id-width" cbor:"2,keyasint"`
	ImmediateWidth int    `toml:"immediate-width" cbor:"3,keyasint"`
}

// Width returns the number of bits used by the encoding.
func (e ImmediateEncoding) Width() int { return e.IDWidth + e.ImmediateWidth }

// Value combines the immediate id with an immediate value.
func (e ImmediateEncoding) Value(imm uint64) (uint64, error) {
	if err := checkFits(imm, e.ImmediateWidth); err != nil {
		return 0, fmt.Errorf("short immediate: %w", err)
	}
	return e.Encoding<<uint(e.ImmediateWidth) | imm, nil
}

// BridgeEncoding selects a bridge as the source of a move.
type BridgeEncoding struct {
	Bridge   string `toml:"bridge" cbor:"1,keyasint"`
	Encoding uint64 `toml:"encoding" cbor:"2,keyasint"`
	Width    int    `toml:"width" cbor:"3,keyasint"`
}

// slotField holds what source and destination fields have in common.
type slotField struct {
	field
	owner   string
	sockets []SocketEncoding
	nop     *NOPEncoding
}

func (f *slotField) encodingWidth() int {
	w := 0
	for _, s := range f.sockets {
		if sw := s.Width(); sw > w {
			w = sw
		}
	}
	if f.nop != nil && f.nop.Width > w {
		w = f.nop.Width
	}
	return w
}

// AddSocketEncoding registers the encoding of a socket. Socket names and
// id values are unique within the field.
func (f *slotField) AddSocketEncoding(enc SocketEncoding) error {
	if enc.Socket == "" {
		return fmt.Errorf("socket encoding without socket: %w", ErrInvalidArgument)
	}
	if err := checkFits(enc.Encoding, enc.IDWidth); err != nil {
		return fmt.Errorf("socket %q: %w", enc.Socket, err)
	}
	for _, s := range f.sockets {
		if s.Socket == enc.Socket {
			return fmt.Errorf("%s socket %q: %w", f.owner, enc.Socket, ErrDuplicateField)
		}
		if s.Encoding == enc.Encoding && s.IDWidth == enc.IDWidth {
			return fmt.Errorf("%s encoding %d already used by socket %q: %w", f.owner, enc.Encoding, s.Socket, ErrDuplicateField)
		}
	}
	f.sockets = append(f.sockets, enc)
	return nil
}

// RemoveSocketEncoding removes the encoding of the named socket.
func (f *slotField) RemoveSocketEncoding(socket string) error {
	for i, s := range f.sockets {
		if s.Socket == socket {
			f.sockets = append(f.sockets[:i], f.sockets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s socket %q: %w", f.owner, socket, ErrNotFound)
}

// SocketEncoding returns the encoding of the named socket.
func (f *slotField) SocketEncoding(socket string) (SocketEncoding, bool) {
	for _, s := range f.sockets {
		if s.Socket == socket {
			return s, true
		}
	}
	return SocketEncoding{}, false
}

// SocketEncodings returns the socket encodings in insertion order.
func (f *slotField) SocketEncodings() []SocketEncoding {
	out := make([]SocketEncoding, len(f.sockets))
	copy(out, f.sockets)
	return out
}

// SetNOPEncoding sets the encoding of an idle transport.
func (f *slotField) SetNOPEncoding(enc NOPEncoding) error {
	if err := checkFits(enc.Encoding, enc.Width); err != nil {
		return fmt.Errorf("%s NOP: %w", f.owner, err)
	}
	f.nop = &enc
	return nil
}

// ClearNOPEncoding removes the NOP encoding.
func (f *slotField) ClearNOPEncoding() { f.nop = nil }

// NOPEncoding returns the NOP encoding, if any.
func (f *slotField) NOPEncoding() (NOPEncoding, bool) {
	if f.nop == nil {
		return NOPEncoding{}, false
	}
	return *f.nop, true
}

// dropTable detaches every socket encoding from a removed code table.
func (f *slotField) dropTable(t *SocketCodeTable) {
	for i := range f.sockets {
		if f.sockets[i].Codes == t {
			f.sockets[i].Codes = nil
		}
	}
}

// SourceField encodes the source of a move: a socket, a short immediate or a
// bridge.
type SourceField struct {
	slotField
	immediate *ImmediateEncoding
	bridges   []BridgeEncoding
}

func (f *SourceField) Kind() Kind { return KindSourceField }

// Width is the widest encoding of the field plus extra bits.
func (f *SourceField) Width() int {
	w := f.encodingWidth()
	if f.immediate != nil && f.immediate.Width() > w {
		w = f.immediate.Width()
	}
	for _, b := range f.bridges {
		if b.Width > w {
			w = b.Width
		}
	}
	return w + f.extraBits
}

// SetImmediateEncoding sets the short immediate encoding.
func (f *SourceField) SetImmediateEncoding(enc ImmediateEncoding) error {
	if enc.ImmediateWidth < 0 {
		return fmt.Errorf("short immediate width %d: %w", enc.ImmediateWidth, ErrInvalidArgument)
	}
	if err := checkFits(enc.Encoding, enc.IDWidth); err != nil {
		return fmt.Errorf("short immediate id: %w", err)
	}
	f.immediate = &enc
	return nil
}

// ClearImmediateEncoding removes the short immediate encoding.
func (f *SourceField) ClearImmediateEncoding() { f.immediate = nil }

// ImmediateEncoding returns the short immediate encoding, if any.
func (f *SourceField) ImmediateEncoding() (ImmediateEncoding, bool) {
	if f.immediate == nil {
		return ImmediateEncoding{}, false
	}
	return *f.immediate, true
}

// AddBridgeEncoding registers the encoding of a bridge.
func (f *SourceField) AddBridgeEncoding(enc BridgeEncoding) error {
	if err := checkFits(enc.Encoding, enc.Width); err != nil {
		return fmt.Errorf("bridge %q: %w", enc.Bridge, err)
	}
	for _, b := range f.bridges {
		if b.Bridge == enc.Bridge {
			return fmt.Errorf("bridge %q: %w", enc.Bridge, ErrDuplicateField)
		}
	}
	f.bridges = append(f.bridges, enc)
	return nil
}

// BridgeEncodings returns the bridge encodings in insertion order.
func (f *SourceField) BridgeEncodings() []BridgeEncoding {
	out := make([]BridgeEncoding, len(f.bridges))
	copy(out, f.bridges)
	return out
}

// DestinationField encodes the destination socket of a move.
type DestinationField struct {
	slotField
}

func (f *DestinationField) Kind() Kind { return KindDestinationField }

// Width is the widest encoding of the field plus extra bits.
func (f *DestinationField) Width() int {
	return f.encodingWidth() + f.extraBits
}
