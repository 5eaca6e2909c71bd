// Package program holds the scheduled programs fed to the image generator.
// Programs arrive already scheduled and register allocated: every
// instruction names its template and assigns values to encoding fields.
package program

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

var (
	// ErrInvalidProgram is returned for programs that refer to instructions
	// or data that do not exist.
	ErrInvalidProgram = errors.New("invalid program")
)

// Program is an ordered list of instructions plus initialized data.
type Program struct {
	Name string `toml:"name"`

	// StartAddress is the instruction memory address, in MAUs, of the first
	// instruction.
	StartAddress uint64 `toml:"start-address"`

	Instructions []Instruction `toml:"instruction"`
	DataSections []DataSection `toml:"data"`
}

// Instruction assigns values to the fields of one instruction word.
//
// Field paths are the ones understood by the encoding model ("ic",
// "imm.<name>", "limm.<name>", "<bus>", "<bus>.guard", "<bus>.src",
// "<bus>.dst"), plus "<bus>.src.imm" for the immediate bits of a source
// field. For operation-triggered templates the paths name the encodings of
// the instruction format.
type Instruction struct {
	Template string            `toml:"template"`
	Fields   map[string]uint64 `toml:"fields"`
	Refs     []Ref             `toml:"ref"`
}

// Ref marks fields that hold the address of another instruction. Paths are
// listed most significant first.
type Ref struct {
	Paths  []string `toml:"paths"`
	Target int      `toml:"target"`
}

// DataSection is initialized data for one address space. Each value fills
// one MAU of the address space.
type DataSection struct {
	AddressSpace string   `toml:"address-space"`
	Start        uint64   `toml:"start"`
	Values       []uint64 `toml:"values"`
	Relocs       []Reloc  `toml:"reloc"`
}

// Reloc replaces Values[Index] with the address of instruction Target.
type Reloc struct {
	Index  int `toml:"index"`
	Target int `toml:"target"`
}

// Validate checks that every reference and relocation points inside the
// program.
func (p *Program) Validate() error {
	n := len(p.Instructions)
	for i, ins := range p.Instructions {
		for _, r := range ins.Refs {
			if r.Target < 0 || r.Target >= n {
				return fmt.Errorf("%s: instruction %d refers to instruction %d of %d: %w", p.Name, i, r.Target, n, ErrInvalidProgram)
			}
			if len(r.Paths) == 0 {
				return fmt.Errorf("%s: instruction %d has a reference without fields: %w", p.Name, i, ErrInvalidProgram)
			}
		}
	}
	for _, d := range p.DataSections {
		if d.AddressSpace == "" {
			return fmt.Errorf("%s: data section without address space: %w", p.Name, ErrInvalidProgram)
		}
		for _, r := range d.Relocs {
			if r.Index < 0 || r.Index >= len(d.Values) {
				return fmt.Errorf("%s: relocation at %d outside data section of %d: %w", p.Name, r.Index, len(d.Values), ErrInvalidProgram)
			}
			if r.Target < 0 || r.Target >= n {
				return fmt.Errorf("%s: relocation to instruction %d of %d: %w", p.Name, r.Target, n, ErrInvalidProgram)
			}
		}
	}
	return nil
}

// AddressSpaces returns the names of the address spaces with data, in the
// order they first appear.
func (p *Program) AddressSpaces() []string {
	var out []string
	seen := make(map[string]bool)
	for _, d := range p.DataSections {
		if !seen[d.AddressSpace] {
			seen[d.AddressSpace] = true
			out = append(out, d.AddressSpace)
		}
	}
	return out
}

// LoadFile reads a program from a TOML file. A program without a name is
// named after the file.
func LoadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var p Program
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
