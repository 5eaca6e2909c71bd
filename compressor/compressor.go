// Package compressor implements the instruction compressors that sit between
// the encoder and the image writers. A compressor lays the instructions of a
// program out in instruction memory, resolves instruction addresses and,
// for the dictionary strategies, replaces raw instruction bits with
// dictionary codes. Each compressor can also describe the hardware
// decompressor that undoes its work.
package compressor

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chazu/pig/bem"
	"github.com/chazu/pig/bitstream"
	"github.com/chazu/pig/encoder"
	"github.com/chazu/pig/program"
	"github.com/tliron/commonlog"
)

var (
	// ErrInvalidData is returned when the dictionaries cannot be built or a
	// program cannot be expressed with them.
	ErrInvalidData = errors.New("invalid data")

	// ErrUnknownCompressor is returned by New for an unregistered name.
	ErrUnknownCompressor = errors.New("unknown compressor")

	// ErrUnknownProgram is returned when compressing a program that is not
	// part of the context.
	ErrUnknownProgram = errors.New("unknown program")
)

// ParamEnsureProgrammability makes the dictionary compressors add the
// self-test program to their dictionaries when set to "yes".
const ParamEnsureProgrammability = "ensure_programmability"

// DefaultEntity is the entity name prefix used when none is given.
const DefaultEntity = "tta0"

var log = commonlog.GetLogger("pig.compressor")

// Context is what a compressor works on during one generation session.
type Context struct {
	Encoding *bem.BinaryEncoding
	Encoder  *encoder.Encoder

	// Programs is the whole corpus. Dictionaries are built over all of
	// them before the first program is emitted.
	Programs []*program.Program

	Parameters map[string]string

	// IMemMAUWidth is the instruction memory MAU width used by the identity
	// compressor. Zero means one instruction word per MAU.
	IMemMAUWidth int
}

// Parameter returns the value of a compressor parameter.
func (c *Context) Parameter(name string) (string, bool) {
	v, ok := c.Parameters[name]
	return v, ok
}

func (c *Context) program(name string) (*program.Program, error) {
	for _, p := range c.Programs {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("program %q: %w", name, ErrUnknownProgram)
}

// Compressor turns programs into instruction memory images.
type Compressor interface {
	Name() string

	// Compress returns the image of the named program. Dictionary
	// compressors build their dictionaries over the whole corpus on the
	// first call and reuse them afterwards.
	Compress(programName string) (*bitstream.Stream, error)

	// Prepare does the work Compress needs before the first program, such
	// as building the dictionaries over the corpus. Compress calls it too.
	Prepare() error

	// MAUWidth returns the width of one instruction memory MAU in the
	// compressed image. It is known once Prepare or Compress has run.
	MAUWidth() int

	// InstructionAddresses returns the address, in MAUs, of every
	// instruction of a compressed program.
	InstructionAddresses(programName string) ([]uint64, error)

	// GenerateDecompressor writes the VHDL decompressor for the entity.
	GenerateDecompressor(w io.Writer, entity string) error

	Description() string

	// Snapshot returns the frozen dictionaries, if any.
	Snapshot() Snapshot
}

// Info names a registered compressor.
type Info struct {
	Name        string
	Description string
}

type factory func(ctx *Context) Compressor

var factories = map[string]factory{
	"identity":               newIdentity,
	"instruction_dictionary": newInstructionDictionary,
	"move_slot_dictionary":   newMoveSlotDictionary,
}

var aliases = map[string]string{
	"":     "identity",
	"none": "identity",
}

// New returns the named compressor working on ctx.
func New(name string, ctx *Context) (Compressor, error) {
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("compressor %q: %w", name, ErrUnknownCompressor)
	}
	if ctx.Encoder == nil && ctx.Encoding != nil {
		ctx.Encoder = encoder.New(ctx.Encoding)
	}
	return f(ctx), nil
}

// Available lists the registered compressors in name order.
func Available() []Info {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Info, len(names))
	for i, name := range names {
		out[i] = Info{Name: name, Description: factories[name](&Context{}).Description()}
	}
	return out
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// rawInstructions encodes every instruction of p. When addressOf is not nil
// the references of each instruction are fixed with it.
func rawInstructions(ctx *Context, p *program.Program, addressOf func(target int) uint64) ([]*bitstream.Stream, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := make([]*bitstream.Stream, len(p.Instructions))
	for i, ins := range p.Instructions {
		st, err := ctx.Encoder.Encode(ins)
		if err != nil {
			return nil, fmt.Errorf("%s: instruction %d: %w", p.Name, i, err)
		}
		if addressOf != nil {
			for _, ref := range ins.Refs {
				if err := st.FixAddress(bitstream.InstructionID(ref.Target), addressOf(ref.Target)); err != nil {
					return nil, fmt.Errorf("%s: instruction %d: %w", p.Name, i, err)
				}
			}
			if err := st.Validate(); err != nil {
				return nil, fmt.Errorf("%s: instruction %d: %w", p.Name, i, err)
			}
		}
		out[i] = st
	}
	return out, nil
}

// sequentialAddresses returns StartAddress+i for every instruction.
func sequentialAddresses(p *program.Program) []uint64 {
	out := make([]uint64, len(p.Instructions))
	for i := range out {
		out[i] = p.StartAddress + uint64(i)
	}
	return out
}

func entityName(entity string) string {
	if entity == "" {
		return DefaultEntity
	}
	return entity
}

// printer writes lines and keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(indent int, format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, "%s%s\n", strings.Repeat("    ", indent), fmt.Sprintf(format, args...))
}

func (p *printer) blank() {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, "\n")
}
