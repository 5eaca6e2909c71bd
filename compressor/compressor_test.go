package compressor

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/pig/bem"
	"github.com/chazu/pig/program"
)

// byteEncoding is an 8-bit word holding a single move slot whose value is
// given directly.
func byteEncoding(t *testing.T) *bem.BinaryEncoding {
	t.Helper()
	e, err := bem.Build(bem.Description{
		MoveSlots: []bem.MoveSlotDescription{{
			Bus:         "B1",
			Destination: &bem.SlotFieldDescription{NOP: &bem.NOPEncoding{Encoding: 0, Width: 8}},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// slotEncoding is a 9-bit word:
//
//	| ic (1) | B1 (4) | B2 (4) |
func slotEncoding(t *testing.T) *bem.BinaryEncoding {
	t.Helper()
	e, err := bem.Build(bem.Description{
		MoveSlots: []bem.MoveSlotDescription{
			{Bus: "B1", Position: 1, Destination: &bem.SlotFieldDescription{NOP: &bem.NOPEncoding{Width: 4}}},
			{Bus: "B2", Position: 0, Destination: &bem.SlotFieldDescription{NOP: &bem.NOPEncoding{Width: 4}}},
		},
		ImmediateControl: &bem.ImmediateControlDescription{
			Position:  2,
			Templates: map[string]uint64{"a": 0, "b": 1},
		},
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

func newCompressor(t *testing.T, name string, ctx *Context) Compressor {
	t.Helper()
	c, err := New(name, ctx)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestInstructionDictionary(t *testing.T) {
	ctx := &Context{Encoding: byteEncoding(t), Programs: []*program.Program{byteProgram("main", 1, 2, 1, 3)}}
	c := newCompressor(t, "instruction_dictionary", ctx)

	st, err := c.Compress("main")
	if err != nil {
		t.Fatal(err)
	}
	if got := st.String(); got != "00010010" {
		t.Errorf("compressed = %s, want 00010010", got)
	}
	if got := c.MAUWidth(); got != 2 {
		t.Errorf("MAUWidth() = %d, want 2", got)
	}
	if got := st.InstructionCount(); got != 4 {
		t.Errorf("InstructionCount() = %d, want 4", got)
	}
	d := c.(*InstructionDictionary).Dictionaries()[0]
	want := []string{"00000001", "00000010", "00000011"}
	if got := d.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %v, want %v", got, want)
	}
	if code, ok := d.Code("00000011"); !ok || code != 2 {
		t.Errorf("Code(00000011) = %d, %v, want 2, true", code, ok)
	}
}

func TestDictionaryIdempotence(t *testing.T) {
	ctx := &Context{Encoding: byteEncoding(t), Programs: []*program.Program{
		byteProgram("a", 1, 2, 1, 3),
		byteProgram("b", 3, 4),
	}}
	c := newCompressor(t, "instruction_dictionary", ctx)

	first, err := c.Compress("a")
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Compress("a")
	if err != nil {
		t.Fatal(err)
	}
	if first.String() != second.String() {
		t.Errorf("second compress = %s, first = %s", second, first)
	}
	// The dictionary covers the whole corpus before the first emission.
	b, err := c.Compress("b")
	if err != nil {
		t.Fatal(err)
	}
	if got := b.String(); got != "1011" {
		t.Errorf("b = %s, want 1011", got)
	}
	if got := c.(*InstructionDictionary).Dictionaries()[0].Len(); got != 4 {
		t.Errorf("dictionary size = %d, want 4", got)
	}
}

func TestDictionarySizeOne(t *testing.T) {
	ctx := &Context{Encoding: byteEncoding(t), Programs: []*program.Program{byteProgram("main", 1, 1, 1)}}
	c := newCompressor(t, "instruction_dictionary", ctx)
	st, err := c.Compress("main")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.(*InstructionDictionary).Dictionaries()[0].CodeWidth(); got != 0 {
		t.Errorf("CodeWidth() = %d, want 0", got)
	}
	if got := st.String(); got != "000" {
		t.Errorf("compressed = %s, want 000", got)
	}

	var buf bytes.Buffer
	if err := c.GenerateDecompressor(&buf, ""); err != nil {
		t.Fatal(err)
	}
	vhdl := buf.String()
	if !strings.Contains(vhdl, `constant dict_init : std_logic_vector(8-1 downto 0) := "00000001";`) {
		t.Errorf("decompressor lacks the constant entry:\n%s", vhdl)
	}
	if strings.Contains(vhdl, "std_logic_dict_matrix") || strings.Contains(vhdl, "dict_line") {
		t.Errorf("decompressor has a lookup table:\n%s", vhdl)
	}
	if !strings.Contains(vhdl, "entity tta0_decompressor is") {
		t.Errorf("decompressor does not use the default entity:\n%s", vhdl)
	}
}

func TestInstructionDictionaryDecompressor(t *testing.T) {
	ctx := &Context{Encoding: byteEncoding(t), Programs: []*program.Program{byteProgram("main", 1, 2, 1, 3)}}
	c := newCompressor(t, "instruction_dictionary", ctx)
	var buf bytes.Buffer
	if err := c.GenerateDecompressor(&buf, "core"); err != nil {
		t.Fatal(err)
	}
	vhdl := buf.String()
	for _, want := range []string{
		"package core_dict_init is",
		"type std_logic_dict_matrix is array (natural range <>) of std_logic_vector(7 downto 0);",
		`        "00000011");`,
		"use work.core_dict_init.all;",
		"entity core_decompressor is",
		"dict_line <= conv_integer(unsigned(fetchblock(fetchblock'length-1 downto fetchblock'length-2)));",
		"instructionword <= dict(dict_line);",
	} {
		if !strings.Contains(vhdl, want) {
			t.Errorf("decompressor lacks %q:\n%s", want, vhdl)
		}
	}
}

func TestEnsureProgrammability(t *testing.T) {
	main := byteProgram("main", 1, 2, 1, 3)
	ctx := &Context{
		Encoding:   byteEncoding(t),
		Programs:   []*program.Program{main},
		Parameters: map[string]string{ParamEnsureProgrammability: "yes"},
	}
	c := newCompressor(t, "instruction_dictionary", ctx)
	st, err := c.Compress("main")
	if err != nil {
		t.Fatal(err)
	}
	d := c.(*InstructionDictionary).Dictionaries()[0]
	want := []string{"00000000", "00000001", "00000010", "00000011"}
	if got := d.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %v, want %v", got, want)
	}
	if got := st.String(); got != "01100111" {
		t.Errorf("compressed = %s, want 01100111", got)
	}

	// Changing the parameter later has no effect on this instance.
	ctx.Parameters[ParamEnsureProgrammability] = "no"
	if _, err := c.Compress("main"); err != nil {
		t.Fatal(err)
	}
	if got := d.Len(); got != 4 {
		t.Errorf("dictionary size after second compress = %d, want 4", got)
	}
}

func TestPreScanFailure(t *testing.T) {
	enc, err := bem.Build(bem.Description{
		ImmediateSlots: []bem.ImmediateSlotDescription{{Name: "i", Width: 4}},
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := &Context{
		Encoding:   enc,
		Programs:   []*program.Program{{Name: "main", Instructions: []program.Instruction{{}}}},
		Parameters: map[string]string{ParamEnsureProgrammability: "yes"},
	}
	c := newCompressor(t, "instruction_dictionary", ctx)
	_, err = c.Compress("main")
	if !errors.Is(err, ErrInvalidData) {
		t.Errorf("Compress = %v, want ErrInvalidData", err)
	}
	if !errors.Is(err, bem.ErrNotFound) {
		t.Errorf("Compress = %v, want the cause to be kept", err)
	}
}

func TestMoveSlotDictionary(t *testing.T) {
	p := &program.Program{Name: "main", Instructions: []program.Instruction{
		{Template: "a", Fields: map[string]uint64{"B1": 1, "B2": 1}},
		{Template: "b", Fields: map[string]uint64{"B1": 2, "B2": 1}},
		{Template: "a", Fields: map[string]uint64{"B1": 1, "B2": 3}},
	}}
	ctx := &Context{Encoding: slotEncoding(t), Programs: []*program.Program{p}}
	c := newCompressor(t, "move_slot_dictionary", ctx)

	st, err := c.Compress("main")
	if err != nil {
		t.Fatal(err)
	}
	if got := st.String(); got != "000110001" {
		t.Errorf("compressed = %s, want 000110001", got)
	}
	if got := c.MAUWidth(); got != 3 {
		t.Errorf("MAUWidth() = %d, want 3", got)
	}
	dicts := c.(*MoveSlotDictionary).Dictionaries()
	if len(dicts) != 2 || dicts[0].Name() != "B1" || dicts[1].Name() != "B2" {
		t.Fatalf("Dictionaries() = %v", dicts)
	}
	if got := dicts[1].Entries(); !reflect.DeepEqual(got, []string{"0001", "0011"}) {
		t.Errorf("B2 entries = %v", got)
	}

	var buf bytes.Buffer
	if err := c.GenerateDecompressor(&buf, "tta0"); err != nil {
		t.Fatal(err)
	}
	vhdl := buf.String()
	for _, want := range []string{
		"architecture move_slot_dict of tta0_decompressor is",
		"signal limm_field : std_logic_vector(1-1 downto 0);",
		"limm_field <= fetchblock(fetchblock'length-1 downto fetchblock'length-1);",
		"dict_line_0 <= conv_integer(unsigned(fetchblock(fetchblock'length-2 downto fetchblock'length-2)));",
		"dict_line_1 <= conv_integer(unsigned(fetchblock(fetchblock'length-3 downto fetchblock'length-3)));",
		"process (limm_field, dict_line_0, dict_line_1)",
		"instructionword <= limm_field&dict_0(dict_line_0)&dict_1(dict_line_1);",
	} {
		if !strings.Contains(vhdl, want) {
			t.Errorf("decompressor lacks %q:\n%s", want, vhdl)
		}
	}
}

func TestMoveSlotDictionaryRejectsFormats(t *testing.T) {
	enc := slotEncoding(t)
	f, err := enc.AddInstructionFormat("ot")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.AddEncoding(bem.FormatEncoding{Name: "op", Pieces: []bem.Piece{{Width: 3}}}); err != nil {
		t.Fatal(err)
	}
	p := &program.Program{Name: "main", Instructions: []program.Instruction{{Template: "ot"}}}
	c := newCompressor(t, "move_slot_dictionary", &Context{Encoding: enc, Programs: []*program.Program{p}})
	if _, err := c.Compress("main"); !errors.Is(err, ErrInvalidData) {
		t.Errorf("Compress = %v, want ErrInvalidData", err)
	}
}

func TestDictionaryFixesAddresses(t *testing.T) {
	p := &program.Program{Name: "main", StartAddress: 4, Instructions: []program.Instruction{
		{Fields: map[string]uint64{"B1": 0}, Refs: []program.Ref{{Paths: []string{"B1"}, Target: 2}}},
		{Fields: map[string]uint64{"B1": 5}},
		{Fields: map[string]uint64{"B1": 7}},
	}}
	c := newCompressor(t, "instruction_dictionary", &Context{Encoding: byteEncoding(t), Programs: []*program.Program{p}})
	if _, err := c.Compress("main"); err != nil {
		t.Fatal(err)
	}
	if got := c.(*InstructionDictionary).Dictionaries()[0].Entry(0); got != "00000110" {
		t.Errorf("Entry(0) = %s, want 00000110", got)
	}
	addrs, err := c.InstructionAddresses("main")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(addrs, []uint64{4, 5, 6}) {
		t.Errorf("InstructionAddresses = %v", addrs)
	}
}

func TestIdentity(t *testing.T) {
	p := &program.Program{Name: "main", StartAddress: 4, Instructions: []program.Instruction{
		{Fields: map[string]uint64{"B1": 0}, Refs: []program.Ref{{Paths: []string{"B1"}, Target: 2}}},
		{Fields: map[string]uint64{"B1": 5}},
		{Fields: map[string]uint64{"B1": 7}},
	}}
	tests := []struct {
		mau   int
		bits  string
		addrs []uint64
	}{
		{0, "000001100000010100000111", []uint64{4, 5, 6}},
		{4, "000010000000010100000111", []uint64{4, 6, 8}},
		{16, "000001100000000000000101000000000000011100000000", []uint64{4, 5, 6}},
	}
	for _, tt := range tests {
		ctx := &Context{Encoding: byteEncoding(t), Programs: []*program.Program{p}, IMemMAUWidth: tt.mau}
		c := newCompressor(t, "none", ctx)
		st, err := c.Compress("main")
		if err != nil {
			t.Fatalf("mau %d: %v", tt.mau, err)
		}
		if got := st.String(); got != tt.bits {
			t.Errorf("mau %d: bits = %s, want %s", tt.mau, got, tt.bits)
		}
		addrs, err := c.InstructionAddresses("main")
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(addrs, tt.addrs) {
			t.Errorf("mau %d: addresses = %v, want %v", tt.mau, addrs, tt.addrs)
		}
		if start, err := st.InstructionStart(2); err != nil || start != 2*len(tt.bits)/3 {
			t.Errorf("mau %d: InstructionStart(2) = %d, %v", tt.mau, start, err)
		}
	}
}

func TestIdentityDecompressor(t *testing.T) {
	c := newCompressor(t, "identity", &Context{Encoding: byteEncoding(t)})
	var buf bytes.Buffer
	if err := c.GenerateDecompressor(&buf, "tta0"); err != nil {
		t.Fatal(err)
	}
	vhdl := buf.String()
	if strings.Contains(vhdl, "dict_init") {
		t.Errorf("identity decompressor refers to a dictionary:\n%s", vhdl)
	}
	if !strings.Contains(vhdl, "instructionword <= fetchblock(fetchblock'length-1 downto fetchblock'length-INSTRUCTIONWIDTH);") {
		t.Errorf("identity decompressor is not a pass-through:\n%s", vhdl)
	}
}

func TestNewUnknown(t *testing.T) {
	if _, err := New("zip", &Context{}); !errors.Is(err, ErrUnknownCompressor) {
		t.Errorf("New(zip) = %v, want ErrUnknownCompressor", err)
	}
	c := newCompressor(t, "", &Context{})
	if c.Name() != "identity" {
		t.Errorf("New(\"\").Name() = %q, want identity", c.Name())
	}
}

func TestUnknownProgram(t *testing.T) {
	c := newCompressor(t, "instruction_dictionary", &Context{Encoding: byteEncoding(t)})
	if _, err := c.Compress("missing"); !errors.Is(err, ErrUnknownProgram) {
		t.Errorf("Compress = %v, want ErrUnknownProgram", err)
	}
	if _, err := c.InstructionAddresses("missing"); !errors.Is(err, ErrUnknownProgram) {
		t.Errorf("InstructionAddresses = %v, want ErrUnknownProgram", err)
	}
}

func TestAvailable(t *testing.T) {
	var names []string
	for _, info := range Available() {
		names = append(names, info.Name)
		if info.Description == "" {
			t.Errorf("%s has no description", info.Name)
		}
	}
	want := []string{"identity", "instruction_dictionary", "move_slot_dictionary"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Available() = %v, want %v", names, want)
	}
}

func TestSnapshotRestore(t *testing.T) {
	enc := byteEncoding(t)
	main := byteProgram("main", 1, 2, 1, 3)
	c := newCompressor(t, "instruction_dictionary", &Context{Encoding: enc, Programs: []*program.Program{main}})
	want, err := c.Compress("main")
	if err != nil {
		t.Fatal(err)
	}
	data, err := MarshalSnapshot(c.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	s, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s, c.Snapshot()) {
		t.Errorf("snapshot = %+v, want %+v", s, c.Snapshot())
	}

	other := byteProgram("other", 3, 1, 9)
	restored := newCompressor(t, "instruction_dictionary", &Context{Encoding: enc, Programs: []*program.Program{main, other}})
	if err := restored.(Restorer).Restore(s); err != nil {
		t.Fatal(err)
	}
	got, err := restored.Compress("main")
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != want.String() {
		t.Errorf("restored compress = %s, want %s", got, want)
	}
	if _, err := restored.Compress("other"); !errors.Is(err, ErrInvalidData) {
		t.Errorf("Compress(other) = %v, want ErrInvalidData", err)
	}

	ms := newCompressor(t, "move_slot_dictionary", &Context{Encoding: enc})
	if err := ms.(Restorer).Restore(s); !errors.Is(err, ErrInvalidData) {
		t.Errorf("Restore into another strategy = %v, want ErrInvalidData", err)
	}
}

func TestRestoreRejectsInconsistentSnapshots(t *testing.T) {
	enc := byteEncoding(t)
	main := byteProgram("main", 1, 2, 1, 3)
	c := newCompressor(t, "instruction_dictionary", &Context{Encoding: enc, Programs: []*program.Program{main}})
	if _, err := c.Compress("main"); err != nil {
		t.Fatal(err)
	}
	good := c.Snapshot()

	// edited returns a copy of the snapshot changed by fn.
	edited := func(fn func(*Snapshot)) Snapshot {
		s := good
		s.Dictionaries = nil
		for _, d := range good.Dictionaries {
			s.Dictionaries = append(s.Dictionaries, DictionarySnapshot{
				Name:    d.Name,
				Entries: append([]string(nil), d.Entries...),
			})
		}
		fn(&s)
		return s
	}
	tests := []struct {
		name string
		snap Snapshot
	}{
		{"narrow MAU", edited(func(s *Snapshot) { s.MAUWidth = 1 })},
		{"wide MAU", edited(func(s *Snapshot) { s.MAUWidth = 5 })},
		{"prefix width", edited(func(s *Snapshot) { s.PrefixWidth = 1 })},
		{"repeated entry", edited(func(s *Snapshot) {
			s.Dictionaries[0].Entries = append(s.Dictionaries[0].Entries, s.Dictionaries[0].Entries[0])
		})},
		{"empty dictionary", edited(func(s *Snapshot) {
			s.Dictionaries[0].Entries = nil
			s.MAUWidth = 1
		})},
	}
	for _, tt := range tests {
		r := newCompressor(t, "instruction_dictionary", &Context{Encoding: enc, Programs: []*program.Program{main}})
		if err := r.(Restorer).Restore(tt.snap); !errors.Is(err, ErrInvalidData) {
			t.Errorf("%s: Restore = %v, want ErrInvalidData", tt.name, err)
		}
	}

	r := newCompressor(t, "instruction_dictionary", &Context{Encoding: enc, Programs: []*program.Program{main}})
	if err := r.(Restorer).Restore(edited(func(*Snapshot) {})); err != nil {
		t.Errorf("Restore of an unchanged copy = %v", err)
	}
}

func TestEmptyCorpus(t *testing.T) {
	empty := &program.Program{Name: "main"}
	for _, name := range []string{"instruction_dictionary", "move_slot_dictionary"} {
		enc := byteEncoding(t)
		if name == "move_slot_dictionary" {
			enc = slotEncoding(t)
		}
		c := newCompressor(t, name, &Context{Encoding: enc, Programs: []*program.Program{empty}})
		var buf bytes.Buffer
		if err := c.GenerateDecompressor(&buf, ""); !errors.Is(err, ErrInvalidData) {
			t.Errorf("%s: GenerateDecompressor = %v, want ErrInvalidData", name, err)
		}
		if strings.Contains(buf.String(), "-1 downto 0") {
			t.Errorf("%s: wrote a zero width dictionary:\n%s", name, buf.String())
		}
		if _, err := c.Compress("main"); !errors.Is(err, ErrInvalidData) {
			t.Errorf("%s: Compress = %v, want ErrInvalidData", name, err)
		}
	}

	// The self-test program fills the dictionary even without instructions.
	c := newCompressor(t, "instruction_dictionary", &Context{
		Encoding:   byteEncoding(t),
		Programs:   []*program.Program{empty},
		Parameters: map[string]string{ParamEnsureProgrammability: "yes"},
	})
	if err := c.Prepare(); err != nil {
		t.Errorf("Prepare with ensure_programmability = %v", err)
	}
}

func TestIMemMAUPackage(t *testing.T) {
	c := newCompressor(t, "instruction_dictionary", &Context{
		Encoding: byteEncoding(t),
		Programs: []*program.Program{byteProgram("main", 1, 2, 1, 3)},
	})
	if err := c.Prepare(); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteIMemMAUPackage(&buf, "core", c.MAUWidth()); err != nil {
		t.Fatal(err)
	}
	want := "package core_imem_mau is\n" +
		"    constant IMEMMAUWIDTH : positive := 2;\n" +
		"end core_imem_mau;\n"
	if got := buf.String(); got != want {
		t.Errorf("package = %q, want %q", got, want)
	}
	if err := WriteIMemMAUPackage(&buf, "core", 0); !errors.Is(err, ErrInvalidData) {
		t.Errorf("zero MAU width = %v, want ErrInvalidData", err)
	}
}
