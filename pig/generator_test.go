package pig

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/pig/bem"
	"github.com/chazu/pig/bitstream"
	"github.com/chazu/pig/compressor"
	"github.com/chazu/pig/imagewriter"
	"github.com/chazu/pig/program"
)

func byteEncoding(t *testing.T) *bem.BinaryEncoding {
	t.Helper()
	e, err := bem.Build(bem.Description{
		MoveSlots: []bem.MoveSlotDescription{{
			Bus:         "B1",
			Destination: &bem.SlotFieldDescription{NOP: &bem.NOPEncoding{Width: 8}},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func byteProgram(name string, values ...uint64) *program.Program {
	p := &program.Program{Name: name}
	for _, v := range values {
		p.Instructions = append(p.Instructions, program.Instruction{Fields: map[string]uint64{"B1": v}})
	}
	return p
}

func dataProgram() *program.Program {
	p := byteProgram("main", 0, 5, 7)
	p.StartAddress = 4
	p.DataSections = []program.DataSection{
		{AddressSpace: "data", Start: 2, Values: []uint64{1, 2, 0}, Relocs: []program.Reloc{{Index: 2, Target: 1}}},
		{AddressSpace: "data", Start: 6, Values: []uint64{255}},
		{AddressSpace: "param", Values: []uint64{9}},
	}
	return p
}

func TestProgramImage(t *testing.T) {
	g, err := New(byteEncoding(t), []*program.Program{byteProgram("main", 1, 2, 1, 3)}, Options{Compressor: "instruction_dictionary"})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		maus int
		want string
	}{
		{0, "00\n01\n00\n10"},
		{1, "00\n01\n00\n10"},
		{2, "0001\n0010"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := g.ProgramImage(&buf, "main", "ascii", tt.maus); err != nil {
			t.Fatal(err)
		}
		if got := buf.String(); got != tt.want {
			t.Errorf("maus %d: image = %q, want %q", tt.maus, got, tt.want)
		}
	}
	var buf bytes.Buffer
	if err := g.ProgramImage(&buf, "main", "ascii", -1); !errors.Is(err, imagewriter.ErrOutOfRange) {
		t.Errorf("negative MAUs per line: %v, want ErrOutOfRange", err)
	}
	if err := g.ProgramImage(&buf, "nope", "ascii", 1); !errors.Is(err, compressor.ErrUnknownProgram) {
		t.Errorf("unknown program: %v, want ErrUnknownProgram", err)
	}
}

func TestDataImage(t *testing.T) {
	g, err := New(byteEncoding(t), []*program.Program{dataProgram()}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := g.DataImage(&buf, "main", "data", "ascii", DataOptions{MAUWidth: 8, MAUsPerLine: 1}); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"00000000", "00000000", "00000001", "00000010", "00000101", "00000000", "11111111",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("data image =\n%s\nwant\n%s", got, want)
	}

	buf.Reset()
	if err := g.DataImage(&buf, "main", "param", "hex", DataOptions{MAUWidth: 8, MAUsPerLine: 2}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "09" {
		t.Errorf("param image = %q, want 09", got)
	}
}

func TestDataImageErrors(t *testing.T) {
	p := dataProgram()
	p.DataSections = append(p.DataSections, program.DataSection{AddressSpace: "data", Start: 0, Values: []uint64{1}})
	g, err := New(byteEncoding(t), []*program.Program{p}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	tests := []struct {
		name  string
		space string
		opts  DataOptions
		want  error
	}{
		{"no MAUs per line", "data", DataOptions{MAUWidth: 8}, imagewriter.ErrOutOfRange},
		{"no MAU width", "data", DataOptions{MAUsPerLine: 1}, imagewriter.ErrOutOfRange},
		{"unknown space", "stack", DataOptions{MAUWidth: 8, MAUsPerLine: 1}, ErrUnknownAddressSpace},
		{"sections out of order", "data", DataOptions{MAUWidth: 8, MAUsPerLine: 1}, compressor.ErrInvalidData},
		{"value too wide", "param", DataOptions{MAUWidth: 2, MAUsPerLine: 1}, bitstream.ErrInsufficientReservedWidth},
	}
	for _, tt := range tests {
		if err := g.DataImage(&buf, "main", tt.space, "ascii", tt.opts); !errors.Is(err, tt.want) {
			t.Errorf("%s: %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestDecompressor(t *testing.T) {
	g, err := New(byteEncoding(t), []*program.Program{byteProgram("main", 1)}, Options{Entity: "core"})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := g.Decompressor(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "entity core_decompressor is") {
		t.Errorf("decompressor does not use the entity:\n%s", buf.String())
	}
	if err := g.Restore(compressor.Snapshot{}); !errors.Is(err, ErrNotRestorable) {
		t.Errorf("Restore on identity = %v, want ErrNotRestorable", err)
	}
}

func TestIMemMAUPackage(t *testing.T) {
	g, err := New(byteEncoding(t), []*program.Program{byteProgram("main", 1, 2, 1, 3, 4)},
		Options{Compressor: "instruction_dictionary", Entity: "core"})
	if err != nil {
		t.Fatal(err)
	}
	// Written before any program image: the package still sees the
	// width of the frozen dictionary.
	var buf bytes.Buffer
	if err := g.IMemMAUPackage(&buf); err != nil {
		t.Fatal(err)
	}
	if got := g.Compressor().MAUWidth(); got != 2 {
		t.Fatalf("MAUWidth() = %d, want 2", got)
	}
	pkg := buf.String()
	if want := "constant IMEMMAUWIDTH : positive := 2;"; !strings.Contains(pkg, want) {
		t.Errorf("package lacks %q:\n%s", want, pkg)
	}
	if !strings.Contains(pkg, "package core_imem_mau is") {
		t.Errorf("package is not named after the entity:\n%s", pkg)
	}

	buf.Reset()
	if err := g.Decompressor(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "use work.core_imem_mau.all;") {
		t.Errorf("decompressor does not use the package:\n%s", buf.String())
	}

	empty, err := New(byteEncoding(t), []*program.Program{{Name: "main"}}, Options{Compressor: "instruction_dictionary"})
	if err != nil {
		t.Fatal(err)
	}
	if err := empty.IMemMAUPackage(&buf); !errors.Is(err, compressor.ErrInvalidData) {
		t.Errorf("IMemMAUPackage over an empty corpus = %v, want ErrInvalidData", err)
	}
}

func TestSnapshotAcrossSessions(t *testing.T) {
	enc := byteEncoding(t)
	first, err := New(enc, []*program.Program{byteProgram("main", 3, 1, 3)}, Options{Compressor: "instruction_dictionary"})
	if err != nil {
		t.Fatal(err)
	}
	want, err := first.ProgramBits("main")
	if err != nil {
		t.Fatal(err)
	}

	second, err := New(enc, []*program.Program{byteProgram("main", 3, 1, 3)}, Options{Compressor: "instruction_dictionary"})
	if err != nil {
		t.Fatal(err)
	}
	if err := second.Restore(first.Snapshot()); err != nil {
		t.Fatal(err)
	}
	got, err := second.ProgramBits("main")
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != want.String() {
		t.Errorf("restored image = %s, want %s", got, want)
	}
}

func TestNewRejectsDuplicatePrograms(t *testing.T) {
	_, err := New(byteEncoding(t), []*program.Program{byteProgram("a", 1), byteProgram("a", 2)}, Options{})
	if !errors.Is(err, program.ErrInvalidProgram) {
		t.Errorf("New = %v, want ErrInvalidProgram", err)
	}
	if _, err := New(byteEncoding(t), nil, Options{Compressor: "lz"}); !errors.Is(err, compressor.ErrUnknownCompressor) {
		t.Errorf("New = %v, want ErrUnknownCompressor", err)
	}
}

func TestListCompressors(t *testing.T) {
	if got := len(ListCompressors()); got != 3 {
		t.Errorf("len(ListCompressors()) = %d, want 3", got)
	}
}
