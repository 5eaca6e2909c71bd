package encoder

import (
	"fmt"

	"github.com/chazu/pig/bem"
	"github.com/chazu/pig/program"
)

// SelfTestProgramName names the program returned by SelfTestProgram.
const SelfTestProgramName = "__selftest"

// SelfTestProgram returns a program that exercises every encodable
// transport of the machine: for each move slot, every source encoding
// paired with every destination encoding, and every guard encoding once.
// Compressors add it to their dictionaries so that any program the machine
// can execute stays expressible after compression.
func (x *Encoder) SelfTestProgram() (*program.Program, error) {
	slots := x.enc.MoveSlots()
	if len(slots) == 0 {
		return nil, fmt.Errorf("encoding has no move slots: %w", bem.ErrNotFound)
	}

	template := ""
	if ic, ok := x.enc.ImmediateControlField(); ok {
		templates := ic.Templates()
		if len(templates) == 0 {
			return nil, fmt.Errorf("immediate control field has no templates: %w", ErrUnknownTemplate)
		}
		template = templates[0]
	}

	p := &program.Program{Name: SelfTestProgramName}
	add := func(fields map[string]uint64) {
		p.Instructions = append(p.Instructions, program.Instruction{Template: template, Fields: fields})
	}

	for _, s := range slots {
		var sources, destinations []uint64
		if src, ok := s.SourceField(); ok {
			v, err := sourceValues(src)
			if err != nil {
				return nil, fmt.Errorf("move slot %q: %w", s.Name(), err)
			}
			sources = v
		}
		if dst, ok := s.DestinationField(); ok {
			v, err := socketValues(dst.SocketEncodings())
			if err != nil {
				return nil, fmt.Errorf("move slot %q: %w", s.Name(), err)
			}
			destinations = v
		}
		for _, sv := range sources {
			for _, dv := range destinations {
				add(map[string]uint64{s.Name() + ".src": sv, s.Name() + ".dst": dv})
			}
		}
		if g, ok := s.GuardField(); ok {
			for _, enc := range g.Encodings() {
				add(map[string]uint64{s.Name() + ".guard": enc.Encoding})
			}
		}
	}
	if len(p.Instructions) == 0 {
		add(map[string]uint64{})
	}
	return p, nil
}

func sourceValues(src *bem.SourceField) ([]uint64, error) {
	out, err := socketValues(src.SocketEncodings())
	if err != nil {
		return nil, err
	}
	if imm, ok := src.ImmediateEncoding(); ok {
		v, err := imm.Value(0)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	for _, b := range src.BridgeEncodings() {
		out = append(out, b.Encoding)
	}
	return out, nil
}

// socketValues expands every socket encoding with every port code of its
// table, using index zero.
func socketValues(sockets []bem.SocketEncoding) ([]uint64, error) {
	var out []uint64
	for _, s := range sockets {
		if s.Codes == nil || len(s.Codes.PortCodes()) == 0 {
			v, err := s.Value(0)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
			continue
		}
		for _, pc := range s.Codes.PortCodes() {
			code, err := pc.Value(0)
			if err != nil {
				return nil, err
			}
			v, err := s.Value(code)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}
