package imagewriter

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/chazu/pig/bitstream"
)

func render(t *testing.T, format, bits string, opts Options) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(&buf, format, bitstream.MustParse(bits), opts); err != nil {
		t.Fatalf("%s: %v", format, err)
	}
	return buf.String()
}

func TestFormats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		bits   string
		opts   Options
		want   string
	}{
		{"ascii rows", "ascii", "10110100", Options{RowLength: 4}, "1011\n0100"},
		{"ascii one row", "ascii", "10110100", Options{}, "10110100"},
		{"ascii partial row", "ascii", "101101", Options{RowLength: 4}, "1011\n01"},
		{"binary", "binary", "101", Options{}, "\xa0"},
		{"binary two bytes", "binary", "1111000011", Options{}, "\xf0\xc0"},
		{"bin2n", "bin2n", "11010", Options{RowLength: 5}, "\x1a"},
		{"bin2n reversed", "bin2n", "000100100011", Options{RowLength: 12}, "\x23\x01"},
		{"hex whole", "hex", "101101", Options{}, "2D"},
		{"hex rows", "hex", "1010101111", Options{RowLength: 8}, "AB\n3"},
		{"array", "array", "101101", Options{RowLength: 4}, "\"1011\",\n\"0100\""},
		{
			"array named", "array", "101101", Options{RowLength: 4, Name: "img"},
			"type img_type is array (natural range <>) of std_logic_vector(4-1 downto 0);\n" +
				"constant img : img_type := (\n" +
				"\"1011\",\n" +
				"\"0100\");\n",
		},
		{
			"mif", "mif", "101101", Options{RowLength: 4},
			"WIDTH = 4;\nDEPTH = 2;\nADDRESS_RADIX = DEC;\nDATA_RADIX = BIN;\nCONTENT BEGIN\n" +
				"0 : 1011;\n1 : 0100;\nEND;\n",
		},
		{
			"mif empty", "mif", "", Options{RowLength: 4},
			"WIDTH = 4;\nDEPTH = 1;\nADDRESS_RADIX = DEC;\nDATA_RADIX = BIN;\nCONTENT BEGIN\n" +
				"0 : 0000;\nEND;\n",
		},
		{
			"coe", "coe", "101101", Options{RowLength: 4},
			"memory_initialization_radix=2;\nmemory_initialization_vector=\n1011,\n0100;\n",
		},
		{"array empty", "array", "", Options{}, "\"0\""},
		{
			"array named empty", "array", "", Options{Name: "img"},
			"type img_type is array (natural range <>) of std_logic_vector(1-1 downto 0);\n" +
				"constant img : img_type := (\n" +
				"\"0\");\n",
		},
		{
			"array named empty rows", "array", "", Options{RowLength: 4, Name: "img"},
			"type img_type is array (natural range <>) of std_logic_vector(4-1 downto 0);\n" +
				"constant img : img_type := (\n" +
				"\"0000\");\n",
		},
		{
			"coe empty", "coe", "", Options{RowLength: 4},
			"memory_initialization_radix=2;\nmemory_initialization_vector=\n0000;\n",
		},
	}
	for _, tt := range tests {
		if got := render(t, tt.format, tt.bits, tt.opts); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestVHDL(t *testing.T) {
	got := render(t, "vhdl", "10110100", Options{RowLength: 4, Entity: "core"})
	for _, want := range []string{
		"package core_imem_image is",
		"type std_logic_imem_matrix is array (natural range <>) of std_logic_vector(4-1 downto 0);",
		"constant imem_array : std_logic_imem_matrix := (",
		"        \"1011\",\n        \"0100\");",
		"end core_imem_image;",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("vhdl image lacks %q:\n%s", want, got)
		}
	}
}

func TestGoSource(t *testing.T) {
	got := render(t, "gosrc", "101", Options{Package: "firmware", Name: "boot_rom"})
	for _, want := range []string{
		"// Code generated by pig. DO NOT EDIT.",
		"package firmware",
		"const BootRomBits = 3",
		"var BootRom = []byte{0xa0}",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("go source lacks %q:\n%s", want, got)
		}
	}
}

// decode undoes each format's documented padding.
func decode(t *testing.T, format, out string, rowLen, size int) string {
	t.Helper()
	switch format {
	case "ascii":
		return strings.ReplaceAll(out, "\n", "")
	case "binary":
		var sb strings.Builder
		for _, b := range []byte(out) {
			fmt.Fprintf(&sb, "%08b", b)
		}
		return sb.String()[:size]
	case "array":
		s := strings.ReplaceAll(strings.ReplaceAll(out, "\"", ""), ",\n", "")
		return s[:size]
	case "coe":
		body := strings.TrimPrefix(out, "memory_initialization_radix=2;\nmemory_initialization_vector=\n")
		body = strings.TrimSuffix(body, ";\n")
		return strings.ReplaceAll(body, ",\n", "")[:size]
	case "mif":
		var sb strings.Builder
		for _, line := range strings.Split(out, "\n") {
			if _, row, ok := strings.Cut(line, " : "); ok {
				sb.WriteString(strings.TrimSuffix(row, ";"))
			}
		}
		return sb.String()[:size]
	case "hex":
		var sb strings.Builder
		for _, line := range strings.Split(out, "\n") {
			var bits strings.Builder
			for _, digit := range line {
				v, err := strconv.ParseUint(string(digit), 16, 4)
				if err != nil {
					t.Fatalf("hex digit %q: %v", digit, err)
				}
				fmt.Fprintf(&bits, "%04b", v)
			}
			n := min(rowLen, size-sb.Len())
			sb.WriteString(bits.String()[bits.Len()-n:])
		}
		return sb.String()
	case "bin2n":
		width := paddedWidth(rowLen)
		data := []byte(out)
		var sb strings.Builder
		for i := 0; i < len(data); i += width / 8 {
			word := slices.Clone(data[i : i+width/8])
			slices.Reverse(word)
			var bits strings.Builder
			for _, b := range word {
				fmt.Fprintf(&bits, "%08b", b)
			}
			n := min(rowLen, size-sb.Len())
			sb.WriteString(bits.String()[width-n:])
		}
		return sb.String()
	}
	t.Fatalf("no decoder for %s", format)
	return ""
}

func TestRoundTrip(t *testing.T) {
	streams := []string{
		"1",
		"10110100",
		"0110100111010",
		"11111111000000001010101011001100111",
	}
	for _, format := range []string{"ascii", "binary", "array", "hex", "coe", "mif", "bin2n"} {
		for _, bits := range streams {
			for _, rowLen := range []int{1, 3, 8, 12} {
				out := render(t, format, bits, Options{RowLength: rowLen})
				if got := decode(t, format, out, rowLen, len(bits)); got != bits {
					t.Errorf("%s row %d: decoded %s, want %s", format, rowLen, got, bits)
				}
			}
		}
	}
}

func TestCursor(t *testing.T) {
	c := NewCursor(bitstream.MustParse("110010"))
	row, err := c.Row(4)
	if err != nil || row != "1100" {
		t.Fatalf("Row(4) = %q, %v", row, err)
	}
	if got := c.Remaining(); got != 2 {
		t.Errorf("Remaining() = %d, want 2", got)
	}
	if _, err := c.Row(3); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Row(3) = %v, want ErrOutOfRange", err)
	}
	row, err = c.Row(2)
	if err != nil || row != "10" {
		t.Errorf("Row(2) = %q, %v", row, err)
	}
}

func TestWriteErrors(t *testing.T) {
	st := bitstream.MustParse("1010")
	var buf bytes.Buffer
	if err := Write(&buf, "srec", st, Options{}); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("srec: %v, want ErrUnknownFormat", err)
	}
	for _, format := range []string{"mif", "coe", "bin2n"} {
		if err := Write(&buf, format, st, Options{}); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("%s without row length: %v, want ErrOutOfRange", format, err)
		}
	}
	if err := Write(&buf, "ascii", st, Options{RowLength: -1}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("negative row length: %v, want ErrOutOfRange", err)
	}

	unresolved := bitstream.New()
	unresolved.BeginReference(0)
	if err := unresolved.AddRange(0, 3); err != nil {
		t.Fatal(err)
	}
	if err := unresolved.PushBits(0, 4); err != nil {
		t.Fatal(err)
	}
	if err := Write(&buf, "ascii", unresolved, Options{}); !errors.Is(err, bitstream.ErrUnresolvedReference) {
		t.Errorf("unresolved stream: %v, want ErrUnresolvedReference", err)
	}
}

func TestFormatNames(t *testing.T) {
	want := []string{"array", "ascii", "bin2n", "binary", "coe", "gosrc", "hex", "mif", "vhdl"}
	if got := Formats(); !slices.Equal(got, want) {
		t.Errorf("Formats() = %v, want %v", got, want)
	}
}
