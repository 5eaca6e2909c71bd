package imagewriter

import (
	"fmt"
	"io"
	"math/bits"
	"slices"
	"strconv"
	"strings"
)

func padRight(row string, width int) string {
	if len(row) >= width {
		return row
	}
	return row + strings.Repeat("0", width-len(row))
}

func padLeft(row string, width int) string {
	if len(row) >= width {
		return row
	}
	return strings.Repeat("0", width-len(row)) + row
}

func requireRowLength(format string, n int) error {
	if n <= 0 {
		return fmt.Errorf("%s: row length %d: %w", format, n, ErrOutOfRange)
	}
	return nil
}

// ---------------------------------------------------------------------------
// binary
// ---------------------------------------------------------------------------

// raw packs bits eight per byte, most significant first. The last byte is
// zero padded on the right.
type raw struct{ c *Cursor }

func newRaw(c *Cursor, _ Options) (Writer, error) { return &raw{c: c}, nil }

func (r *raw) WriteImage(w io.Writer) error {
	out := make([]byte, 0, (r.c.Remaining()+7)/8)
	for r.c.Remaining() > 0 {
		row, err := r.c.Row(min(8, r.c.Remaining()))
		if err != nil {
			return err
		}
		b, err := strconv.ParseUint(padRight(row, 8), 2, 8)
		if err != nil {
			return err
		}
		out = append(out, byte(b))
	}
	_, err := w.Write(out)
	return err
}

// ---------------------------------------------------------------------------
// ascii
// ---------------------------------------------------------------------------

type ascii struct {
	c      *Cursor
	rowLen int
}

func newASCII(c *Cursor, opts Options) (Writer, error) {
	return &ascii{c: c, rowLen: opts.RowLength}, nil
}

func (a *ascii) WriteImage(w io.Writer) error {
	rows, err := a.c.rows(a.rowLen)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, strings.Join(rows, "\n"))
	return err
}

// ---------------------------------------------------------------------------
// array
// ---------------------------------------------------------------------------

// array writes quoted rows separated by commas. With a name the rows are
// wrapped in a VHDL constant of an array type.
type array struct {
	c      *Cursor
	rowLen int
	name   string
	indent string
}

func newArray(c *Cursor, opts Options) (Writer, error) {
	return &array{c: c, rowLen: opts.RowLength, name: opts.Name}, nil
}

// elementWidth returns the width of one array element.
func (a *array) elementWidth() int {
	if a.rowLen == 0 {
		return a.c.Remaining()
	}
	return a.rowLen
}

// quotedRows returns the quoted, padded rows. Like mif and coe, an empty
// stream yields a single zero element so the array is never empty.
func (a *array) quotedRows() ([]string, int, error) {
	width := a.elementWidth()
	rows, err := a.c.rows(a.rowLen)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		width = max(width, 1)
		rows = []string{strings.Repeat("0", width)}
	}
	for i, row := range rows {
		rows[i] = a.indent + strconv.Quote(padRight(row, width))
	}
	return rows, width, nil
}

func (a *array) WriteImage(w io.Writer) error {
	rows, width, err := a.quotedRows()
	if err != nil {
		return err
	}
	var sb strings.Builder
	if a.name != "" {
		fmt.Fprintf(&sb, "type %s_type is array (natural range <>) of std_logic_vector(%d-1 downto 0);\n", a.name, width)
		fmt.Fprintf(&sb, "constant %s : %s_type := (\n", a.name, a.name)
	}
	sb.WriteString(strings.Join(rows, ",\n"))
	if a.name != "" {
		sb.WriteString(");\n")
	}
	_, err = io.WriteString(w, sb.String())
	return err
}

// ---------------------------------------------------------------------------
// hex
// ---------------------------------------------------------------------------

type hex struct {
	c      *Cursor
	rowLen int
}

func newHex(c *Cursor, opts Options) (Writer, error) {
	return &hex{c: c, rowLen: opts.RowLength}, nil
}

func (h *hex) WriteImage(w io.Writer) error {
	rows, err := h.c.rows(h.rowLen)
	if err != nil {
		return err
	}
	for i, row := range rows {
		rows[i] = hexDigits(padLeft(row, (len(row)+3)/4*4))
	}
	_, err = io.WriteString(w, strings.Join(rows, "\n"))
	return err
}

func hexDigits(row string) string {
	var sb strings.Builder
	for i := 0; i < len(row); i += 4 {
		v, _ := strconv.ParseUint(row[i:i+4], 2, 4)
		sb.WriteString(strings.ToUpper(strconv.FormatUint(v, 16)))
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// mif and coe
// ---------------------------------------------------------------------------

// memoryRows returns one word per row, the last one zero padded on the
// right. An empty stream yields a single zero word.
func memoryRows(c *Cursor, width int) ([]string, error) {
	rows, err := c.rows(width)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []string{strings.Repeat("0", width)}, nil
	}
	rows[len(rows)-1] = padRight(rows[len(rows)-1], width)
	return rows, nil
}

type mif struct {
	c     *Cursor
	width int
}

func newMIF(c *Cursor, opts Options) (Writer, error) {
	if err := requireRowLength("mif", opts.RowLength); err != nil {
		return nil, err
	}
	return &mif{c: c, width: opts.RowLength}, nil
}

func (m *mif) WriteImage(w io.Writer) error {
	rows, err := memoryRows(m.c, m.width)
	if err != nil {
		return err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "WIDTH = %d;\n", m.width)
	fmt.Fprintf(&sb, "DEPTH = %d;\n", len(rows))
	sb.WriteString("ADDRESS_RADIX = DEC;\n")
	sb.WriteString("DATA_RADIX = BIN;\n")
	sb.WriteString("CONTENT BEGIN\n")
	for i, row := range rows {
		fmt.Fprintf(&sb, "%d : %s;\n", i, row)
	}
	sb.WriteString("END;\n")
	_, err = io.WriteString(w, sb.String())
	return err
}

type coe struct {
	c     *Cursor
	width int
}

func newCOE(c *Cursor, opts Options) (Writer, error) {
	if err := requireRowLength("coe", opts.RowLength); err != nil {
		return nil, err
	}
	return &coe{c: c, width: opts.RowLength}, nil
}

func (m *coe) WriteImage(w io.Writer) error {
	rows, err := memoryRows(m.c, m.width)
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString("memory_initialization_radix=2;\n")
	sb.WriteString("memory_initialization_vector=\n")
	sb.WriteString(strings.Join(rows, ",\n"))
	sb.WriteString(";\n")
	_, err = io.WriteString(w, sb.String())
	return err
}

// ---------------------------------------------------------------------------
// bin2n
// ---------------------------------------------------------------------------

// bin2n widens every row on the left to a power of two of at least eight
// bits and writes its bytes least significant first.
type bin2n struct {
	c      *Cursor
	rowLen int
}

func newBin2n(c *Cursor, opts Options) (Writer, error) {
	if err := requireRowLength("bin2n", opts.RowLength); err != nil {
		return nil, err
	}
	return &bin2n{c: c, rowLen: opts.RowLength}, nil
}

// paddedWidth returns max(8, the smallest power of two >= n).
func paddedWidth(n int) int {
	if n <= 8 {
		return 8
	}
	return 1 << bits.Len(uint(n-1))
}

func (b *bin2n) WriteImage(w io.Writer) error {
	rows, err := b.c.rows(b.rowLen)
	if err != nil {
		return err
	}
	width := paddedWidth(b.rowLen)
	var out []byte
	for _, row := range rows {
		row = padLeft(row, width)
		word := make([]byte, width/8)
		for i := range word {
			v, err := strconv.ParseUint(row[i*8:i*8+8], 2, 8)
			if err != nil {
				return err
			}
			word[i] = byte(v)
		}
		slices.Reverse(word)
		out = append(out, word...)
	}
	_, err = w.Write(out)
	return err
}
