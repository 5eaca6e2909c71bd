// Package pig ties the encoding model, the compressors and the image
// writers together into one generation session.
package pig

import (
	"errors"
	"fmt"
	"io"

	"github.com/chazu/pig/bem"
	"github.com/chazu/pig/bitstream"
	"github.com/chazu/pig/compressor"
	"github.com/chazu/pig/encoder"
	"github.com/chazu/pig/imagewriter"
	"github.com/chazu/pig/program"
	"github.com/tliron/commonlog"
)

var (
	// ErrUnknownAddressSpace is returned for a data image of an address
	// space the program has no data for.
	ErrUnknownAddressSpace = errors.New("unknown address space")

	// ErrNotRestorable is returned when restoring a snapshot into a
	// compressor without dictionaries.
	ErrNotRestorable = errors.New("compressor cannot be restored")
)

var log = commonlog.GetLogger("pig")

// Options configure a session.
type Options struct {
	// Compressor names the compressor. Empty selects identity.
	Compressor string

	// Parameters are passed to the compressor.
	Parameters map[string]string

	// IMemMAUWidth is the instruction memory MAU width. Zero means one
	// instruction word per MAU.
	IMemMAUWidth int

	// Entity prefixes generated VHDL names.
	Entity string
}

// Generator is one generation session: an encoding, the corpus of programs
// and the compressor built over them. It is not safe for concurrent use.
type Generator struct {
	enc      *bem.BinaryEncoding
	programs []*program.Program
	comp     compressor.Compressor
	entity   string
	images   map[string]*bitstream.Stream
}

// New starts a session. Programs must have distinct names.
func New(enc *bem.BinaryEncoding, programs []*program.Program, opts Options) (*Generator, error) {
	seen := make(map[string]bool)
	for _, p := range programs {
		if seen[p.Name] {
			return nil, fmt.Errorf("program %q given twice: %w", p.Name, program.ErrInvalidProgram)
		}
		seen[p.Name] = true
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	ctx := &compressor.Context{
		Encoding:     enc,
		Encoder:      encoder.New(enc),
		Programs:     programs,
		Parameters:   opts.Parameters,
		IMemMAUWidth: opts.IMemMAUWidth,
	}
	comp, err := compressor.New(opts.Compressor, ctx)
	if err != nil {
		return nil, err
	}
	entity := opts.Entity
	if entity == "" {
		entity = compressor.DefaultEntity
	}
	return &Generator{
		enc:      enc,
		programs: programs,
		comp:     comp,
		entity:   entity,
		images:   make(map[string]*bitstream.Stream),
	}, nil
}

// Encoding returns the encoding of the session.
func (g *Generator) Encoding() *bem.BinaryEncoding { return g.enc }

// Compressor returns the compressor of the session.
func (g *Generator) Compressor() compressor.Compressor { return g.comp }

// Programs returns the names of the programs in the session.
func (g *Generator) Programs() []string {
	out := make([]string, len(g.programs))
	for i, p := range g.programs {
		out[i] = p.Name
	}
	return out
}

func (g *Generator) program(name string) (*program.Program, error) {
	for _, p := range g.programs {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("program %q: %w", name, compressor.ErrUnknownProgram)
}

// ProgramBits returns the compressed image of a program. The image is
// computed once per session.
func (g *Generator) ProgramBits(programName string) (*bitstream.Stream, error) {
	if st, ok := g.images[programName]; ok {
		return st, nil
	}
	st, err := g.comp.Compress(programName)
	if err != nil {
		return nil, err
	}
	g.images[programName] = st
	log.Infof("program %s: %d instructions, %d bits, MAU width %d",
		programName, st.InstructionCount(), st.Len(), g.comp.MAUWidth())
	return st, nil
}

// ProgramImage writes the instruction memory image of a program. Each row
// holds mausPerLine MAUs; zero means one MAU per row.
func (g *Generator) ProgramImage(w io.Writer, programName, format string, mausPerLine int) error {
	if mausPerLine < 0 {
		return fmt.Errorf("negative number of MAUs per line: %w", imagewriter.ErrOutOfRange)
	}
	st, err := g.ProgramBits(programName)
	if err != nil {
		return err
	}
	return imagewriter.Write(w, format, st, imagewriter.Options{
		RowLength: g.comp.MAUWidth() * max(1, mausPerLine),
		Name:      "imem",
		Entity:    g.entity,
	})
}

// DataOptions describe the data memory of one address space.
type DataOptions struct {
	// MAUWidth is the width of one data MAU.
	MAUWidth int

	// MAUsPerLine is the number of MAUs per row. It must be positive.
	MAUsPerLine int
}

// DataBits returns the initial contents of an address space. Sections are
// laid out at their start addresses with zeros in between, and relocated
// values receive the instruction address of their target.
func (g *Generator) DataBits(programName, addressSpace string, mauWidth int) (*bitstream.Stream, error) {
	if mauWidth <= 0 {
		return nil, fmt.Errorf("data MAU width %d: %w", mauWidth, imagewriter.ErrOutOfRange)
	}
	p, err := g.program(programName)
	if err != nil {
		return nil, err
	}
	if _, err := g.ProgramBits(programName); err != nil {
		return nil, err
	}
	addrs, err := g.comp.InstructionAddresses(programName)
	if err != nil {
		return nil, err
	}

	st := bitstream.New()
	found := false
	for _, d := range p.DataSections {
		if d.AddressSpace != addressSpace {
			continue
		}
		found = true
		next := uint64(st.Len() / mauWidth)
		if next > d.Start {
			return nil, fmt.Errorf("%s: data section at %d overlaps the previous one ending at %d: %w",
				addressSpace, d.Start, next, compressor.ErrInvalidData)
		}
		for ; next < d.Start; next++ {
			if err := st.PushBits(0, mauWidth); err != nil {
				return nil, err
			}
		}
		relocs := make(map[int]int, len(d.Relocs))
		for _, r := range d.Relocs {
			relocs[r.Index] = r.Target
		}
		for i, v := range d.Values {
			if target, ok := relocs[i]; ok {
				v = addrs[target]
			}
			if err := st.PushBits(v, mauWidth); err != nil {
				return nil, fmt.Errorf("%s: value %d at %d: %w", addressSpace, v, d.Start+uint64(i), err)
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("program %s has no data in %q: %w", programName, addressSpace, ErrUnknownAddressSpace)
	}
	return st, nil
}

// DataImage writes the data memory image of an address space.
func (g *Generator) DataImage(w io.Writer, programName, addressSpace, format string, opts DataOptions) error {
	if opts.MAUsPerLine < 1 {
		return fmt.Errorf("data memory width in MAUs must be positive: %w", imagewriter.ErrOutOfRange)
	}
	st, err := g.DataBits(programName, addressSpace, opts.MAUWidth)
	if err != nil {
		return err
	}
	return imagewriter.Write(w, format, st, imagewriter.Options{
		RowLength: opts.MAUWidth * opts.MAUsPerLine,
		Name:      addressSpace,
		Entity:    g.entity,
	})
}

// Decompressor writes the VHDL decompressor of the session's compressor.
func (g *Generator) Decompressor(w io.Writer) error {
	return g.comp.GenerateDecompressor(w, g.entity)
}

// IMemMAUPackage writes the <entity>_imem_mau VHDL package the
// decompressor depends on. IMEMMAUWIDTH is the compressor's MAU width, so
// the dictionaries are built first.
func (g *Generator) IMemMAUPackage(w io.Writer) error {
	if err := g.comp.Prepare(); err != nil {
		return err
	}
	return compressor.WriteIMemMAUPackage(w, g.entity, g.comp.MAUWidth())
}

// Snapshot returns the compressor state of the session.
func (g *Generator) Snapshot() compressor.Snapshot { return g.comp.Snapshot() }

// Restore seeds the compressor with an earlier snapshot. It must be called
// before the first image is generated.
func (g *Generator) Restore(s compressor.Snapshot) error {
	r, ok := g.comp.(compressor.Restorer)
	if !ok {
		return fmt.Errorf("%s: %w", g.comp.Name(), ErrNotRestorable)
	}
	return r.Restore(s)
}

// ListCompressors lists the available compressors.
func ListCompressors() []compressor.Info {
	return compressor.Available()
}
