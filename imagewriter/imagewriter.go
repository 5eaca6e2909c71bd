// Package imagewriter renders finished bit streams as memory images. Every
// writer consumes its stream strictly left to right through a Cursor, one
// row at a time.
package imagewriter

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/chazu/pig/bitstream"
)

var (
	// ErrUnknownFormat is returned by New for an unregistered format name.
	ErrUnknownFormat = errors.New("unknown image format")

	// ErrOutOfRange is returned when a row is requested past the end of the
	// stream, or for a row length the format cannot use.
	ErrOutOfRange = errors.New("out of range")
)

// Options configure a writer.
type Options struct {
	// RowLength is the number of bits per row. Zero puts the whole stream
	// on one row for the formats that allow it.
	RowLength int

	// Name names the array of the array format, and the image of the vhdl
	// and gosrc formats.
	Name string

	// Entity prefixes the VHDL package name.
	Entity string

	// Package is the Go package of the gosrc format.
	Package string
}

// Writer renders one stream.
type Writer interface {
	WriteImage(w io.Writer) error
}

type constructor func(c *Cursor, opts Options) (Writer, error)

var formats = map[string]constructor{
	"binary": newRaw,
	"ascii":  newASCII,
	"array":  newArray,
	"hex":    newHex,
	"mif":    newMIF,
	"coe":    newCOE,
	"bin2n":  newBin2n,
	"vhdl":   newVHDL,
	"gosrc":  newGoSource,
}

// Formats lists the format names in sorted order.
func Formats() []string {
	out := make([]string, 0, len(formats))
	for name := range formats {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New returns the writer of the named format for st. The stream must have
// all of its references resolved.
func New(format string, st *bitstream.Stream, opts Options) (Writer, error) {
	ctor, ok := formats[format]
	if !ok {
		return nil, fmt.Errorf("format %q: %w", format, ErrUnknownFormat)
	}
	if opts.RowLength < 0 {
		return nil, fmt.Errorf("row length %d: %w", opts.RowLength, ErrOutOfRange)
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return ctor(NewCursor(st), opts)
}

// Write renders st in the named format.
func Write(w io.Writer, format string, st *bitstream.Stream, opts Options) error {
	wr, err := New(format, st, opts)
	if err != nil {
		return err
	}
	return wr.WriteImage(w)
}

// ---------------------------------------------------------------------------
// Cursor
// ---------------------------------------------------------------------------

// Cursor reads consecutive rows of a stream. It never moves backwards.
type Cursor struct {
	st   *bitstream.Stream
	next int
}

// NewCursor returns a cursor at the first bit of st.
func NewCursor(st *bitstream.Stream) *Cursor {
	return &Cursor{st: st}
}

// Len returns the length of the underlying stream.
func (c *Cursor) Len() int { return c.st.Len() }

// Remaining returns the number of unread bits.
func (c *Cursor) Remaining() int { return c.st.Len() - c.next }

// Row returns the next n bits as a string of '0' and '1' and advances past
// them.
func (c *Cursor) Row(n int) (string, error) {
	if n < 0 || n > c.Remaining() {
		return "", fmt.Errorf("row of %d bits at bit %d of %d: %w", n, c.next, c.st.Len(), ErrOutOfRange)
	}
	s, err := c.st.Segment(c.next, c.next+n)
	if err != nil {
		return "", err
	}
	c.next += n
	return s, nil
}

// rows reads the rest of the stream as rows of n bits. The last row holds
// whatever is left and may be shorter. n == 0 reads a single row.
func (c *Cursor) rows(n int) ([]string, error) {
	if n == 0 {
		n = c.Remaining()
	}
	var out []string
	for c.Remaining() > 0 {
		w := min(n, c.Remaining())
		row, err := c.Row(w)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}
