package compressor

import (
	"fmt"
	"io"

	"github.com/chazu/pig/bitstream"
)

// identity lays raw instructions out unchanged. Every instruction starts at
// a MAU boundary and its references are fixed once the layout is known.
type identity struct {
	ctx       *Context
	mauWidth  int
	addresses map[string][]uint64
}

func newIdentity(ctx *Context) Compressor {
	return &identity{ctx: ctx, addresses: make(map[string][]uint64)}
}

func (c *identity) Name() string { return "identity" }

func (c *identity) Description() string {
	return "Stores instructions uncompressed. Each instruction starts at a MAU boundary of the instruction memory."
}

func (c *identity) Prepare() error { return nil }

func (c *identity) MAUWidth() int {
	if c.mauWidth == 0 {
		c.mauWidth = c.resolveMAUWidth()
	}
	return c.mauWidth
}

func (c *identity) resolveMAUWidth() int {
	if c.ctx.IMemMAUWidth > 0 {
		return c.ctx.IMemMAUWidth
	}
	if c.ctx.Encoding != nil {
		return c.ctx.Encoding.Width()
	}
	return 0
}

func (c *identity) InstructionAddresses(programName string) ([]uint64, error) {
	a, ok := c.addresses[programName]
	if !ok {
		return nil, fmt.Errorf("program %q has not been compressed: %w", programName, ErrUnknownProgram)
	}
	return a, nil
}

func (c *identity) Compress(programName string) (*bitstream.Stream, error) {
	p, err := c.ctx.program(programName)
	if err != nil {
		return nil, err
	}
	if c.ctx.Encoder == nil {
		return nil, fmt.Errorf("identity: no encoding model: %w", ErrInvalidData)
	}
	mau := c.MAUWidth()
	if mau <= 0 {
		return nil, fmt.Errorf("identity: MAU width %d: %w", mau, ErrInvalidData)
	}

	raw, err := rawInstructions(c.ctx, p, nil)
	if err != nil {
		return nil, err
	}
	addrs := make([]uint64, len(raw))
	next := p.StartAddress
	for i, r := range raw {
		addrs[i] = next
		next += uint64((r.Len() + mau - 1) / mau)
	}

	out := bitstream.New()
	for _, r := range raw {
		if err := out.MarkBoundary(out.Len()); err != nil {
			return nil, err
		}
		if err := out.Append(r); err != nil {
			return nil, err
		}
		if err := out.PadTo(mau); err != nil {
			return nil, err
		}
	}
	for i, ins := range p.Instructions {
		for _, ref := range ins.Refs {
			if err := out.FixAddress(bitstream.InstructionID(ref.Target), addrs[ref.Target]); err != nil {
				return nil, fmt.Errorf("%s: instruction %d: %w", p.Name, i, err)
			}
		}
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	c.addresses[programName] = addrs
	return out, nil
}

func (c *identity) GenerateDecompressor(w io.Writer, entity string) error {
	entity = entityName(entity)
	p := &printer{w: w}
	writeLibraries(p, entity, false)
	writeDecompressorEntity(p, entity)
	p.line(0, "architecture simple_decompressor of %s_decompressor is", entity)
	p.line(0, "begin")
	p.blank()
	writeGlue(p)
	p.line(1, "instructionword <= fetchblock(fetchblock'length-1 downto fetchblock'length-INSTRUCTIONWIDTH);")
	p.blank()
	p.line(0, "end simple_decompressor;")
	return p.err
}

func (c *identity) Snapshot() Snapshot {
	return Snapshot{Compressor: c.Name(), MAUWidth: c.MAUWidth(), Frozen: true}
}
