package imagewriter

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/dave/jennifer/jen"
)

// goSource writes the raw image as a byte slice in a generated Go file,
// next to a constant holding the image length in bits.
type goSource struct {
	raw  *raw
	c    *Cursor
	pkg  string
	name string
}

func newGoSource(c *Cursor, opts Options) (Writer, error) {
	pkg := opts.Package
	if pkg == "" {
		pkg = "image"
	}
	name := opts.Name
	if name == "" {
		name = "imem"
	}
	return &goSource{raw: &raw{c: c}, c: c, pkg: pkg, name: exported(name)}, nil
}

// exported turns an image name such as "imem" or "data_mem" into an
// exported Go identifier.
func exported(name string) string {
	var sb strings.Builder
	upper := true
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		sb.WriteRune(r)
	}
	out := sb.String()
	if out == "" || unicode.IsDigit(rune(out[0])) {
		out = "Image" + out
	}
	return out
}

func (g *goSource) WriteImage(w io.Writer) error {
	nbits := g.c.Remaining()
	var buf strings.Builder
	if err := g.raw.WriteImage(&buf); err != nil {
		return err
	}
	data := []byte(buf.String())

	f := jen.NewFile(g.pkg)
	f.HeaderComment("Code generated by pig. DO NOT EDIT.")

	f.Commentf("%sBits is the length of %s in bits. The last byte is zero padded.", g.name, g.name)
	f.Const().Id(g.name + "Bits").Op("=").Lit(nbits)

	f.Commentf("%s holds the image, eight bits per byte, most significant bit first.", g.name)
	f.Var().Id(g.name).Op("=").Index().Byte().ValuesFunc(func(grp *jen.Group) {
		for _, b := range data {
			grp.Op(fmt.Sprintf("0x%02x", b))
		}
	})
	return f.Render(w)
}
