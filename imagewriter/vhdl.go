package imagewriter

import (
	"fmt"
	"io"
	"strings"
)

// vhdl wraps array rows in a VHDL package that holds the image as a
// constant.
type vhdl struct {
	arr    *array
	entity string
	name   string
}

func newVHDL(c *Cursor, opts Options) (Writer, error) {
	name := opts.Name
	if name == "" {
		name = "imem"
	}
	entity := opts.Entity
	if entity == "" {
		entity = "tta0"
	}
	return &vhdl{
		arr:    &array{c: c, rowLen: opts.RowLength, indent: "        "},
		entity: entity,
		name:   name,
	}, nil
}

func (v *vhdl) WriteImage(w io.Writer) error {
	rows, width, err := v.arr.quotedRows()
	if err != nil {
		return err
	}
	pkg := fmt.Sprintf("%s_%s_image", v.entity, v.name)
	var sb strings.Builder
	sb.WriteString("library ieee;\n")
	sb.WriteString("use ieee.std_logic_1164.all;\n")
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "package %s is\n\n", pkg)
	fmt.Fprintf(&sb, "    type std_logic_%s_matrix is array (natural range <>) of std_logic_vector(%d-1 downto 0);\n\n", v.name, width)
	fmt.Fprintf(&sb, "    constant %s_array : std_logic_%s_matrix := (\n", v.name, v.name)
	sb.WriteString(strings.Join(rows, ",\n"))
	sb.WriteString(");\n\n")
	fmt.Fprintf(&sb, "end %s;\n", pkg)
	_, err = io.WriteString(w, sb.String())
	return err
}
