package program

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "loop.toml", `
start-address = 16

[[instruction]]
template = "basic"
fields = { "B1.src" = 3, "B1.dst" = 1 }

[[instruction.ref]]
paths = ["B1.src.imm"]
target = 1

[[instruction]]
template = "basic"

[[data]]
address-space = "data"
start = 4
values = [1, 2, 0]

[[data.reloc]]
index = 2
target = 0
`)

	p, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "loop" {
		t.Errorf("Name = %q, want %q", p.Name, "loop")
	}
	if p.StartAddress != 16 {
		t.Errorf("StartAddress = %d, want 16", p.StartAddress)
	}
	if len(p.Instructions) != 2 {
		t.Fatalf("len(Instructions) = %d, want 2", len(p.Instructions))
	}
	ins := p.Instructions[0]
	if ins.Fields["B1.src"] != 3 || ins.Fields["B1.dst"] != 1 {
		t.Errorf("Fields = %v", ins.Fields)
	}
	if len(ins.Refs) != 1 || ins.Refs[0].Target != 1 || ins.Refs[0].Paths[0] != "B1.src.imm" {
		t.Errorf("Refs = %+v", ins.Refs)
	}
	if len(p.DataSections) != 1 || p.DataSections[0].Relocs[0].Index != 2 {
		t.Errorf("DataSections = %+v", p.DataSections)
	}
	if got := p.AddressSpaces(); len(got) != 1 || got[0] != "data" {
		t.Errorf("AddressSpaces() = %v", got)
	}
}

func TestLoadFileRejectsDanglingReference(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.toml", `
[[instruction]]
template = "basic"

[[instruction.ref]]
paths = ["B1.src"]
target = 4
`)
	if _, err := LoadFile(path); !errors.Is(err, ErrInvalidProgram) {
		t.Errorf("LoadFile = %v, want ErrInvalidProgram", err)
	}
}

func TestValidateRelocations(t *testing.T) {
	p := &Program{
		Name:         "p",
		Instructions: []Instruction{{Template: "basic"}},
		DataSections: []DataSection{{AddressSpace: "data", Values: []uint64{0}, Relocs: []Reloc{{Index: 1}}}},
	}
	if err := p.Validate(); !errors.Is(err, ErrInvalidProgram) {
		t.Errorf("Validate = %v, want ErrInvalidProgram", err)
	}
	p.DataSections[0].Relocs[0].Index = 0
	if err := p.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}
