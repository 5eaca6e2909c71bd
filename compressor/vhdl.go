package compressor

import (
	"fmt"
	"io"
)

// VHDL fragments shared by the decompressors.

func writeLibraries(p *printer, entity string, dictPackage bool) {
	p.line(0, "library ieee;")
	p.line(0, "use ieee.std_logic_1164.all;")
	p.line(0, "use ieee.std_logic_arith.all;")
	p.line(0, "use work.%s_globals.all;", entity)
	if dictPackage {
		p.line(0, "use work.%s_dict_init.all;", entity)
	}
	p.line(0, "use work.%s_imem_mau.all;", entity)
	p.blank()
}

func writeDecompressorEntity(p *printer, entity string) {
	p.line(0, "entity %s_decompressor is", entity)
	p.line(1, "port (")
	p.line(2, "fetch_en : out std_logic;")
	p.line(2, "lock : in std_logic;")
	p.line(2, "fetchblock : in std_logic_vector(IMEMWIDTHINMAUS*IMEMMAUWIDTH-1 downto 0);")
	p.line(2, "instructionword : out std_logic_vector(INSTRUCTIONWIDTH-1 downto 0);")
	p.line(2, "glock : out std_logic;")
	p.line(2, "lock_r : in std_logic;")
	p.line(2, "clk : in std_logic;")
	p.line(2, "rstx : in std_logic);")
	p.blank()
	p.line(0, "end %s_decompressor;", entity)
	p.blank()
}

func writePackageStart(p *printer, entity string) {
	p.line(0, "library ieee;")
	p.line(0, "use ieee.std_logic_1164.all;")
	p.line(0, "use ieee.std_logic_arith.all;")
	p.blank()
	p.line(0, "package %s_dict_init is", entity)
	p.blank()
}

func writePackageEnd(p *printer, entity string) {
	p.line(0, "end %s_dict_init;", entity)
	p.blank()
}

// writeTable writes the entries of a dictionary as a constant array, or as a
// single constant vector when the dictionary has only one entry.
func writeTable(p *printer, d *Dictionary, suffix string) {
	w := d.EntryWidth()
	if d.Len() == 1 {
		p.line(1, "constant dict_init%s : std_logic_vector(%d-1 downto 0) := \"%s\";", suffix, w, d.Entry(0))
		p.blank()
		return
	}
	p.line(1, "type std_logic_dict_matrix%s is array (natural range <>) of std_logic_vector(%d downto 0);", suffix, w-1)
	p.blank()
	p.line(1, "constant dict_init%s : std_logic_dict_matrix%s := (", suffix, suffix)
	for i := 0; i < d.Len(); i++ {
		sep := ","
		if i+1 == d.Len() {
			sep = ");"
		}
		p.line(2, "\"%s\"%s", d.Entry(i), sep)
	}
	p.blank()
}

// writeGlue writes the lock and fetch enable assignments.
func writeGlue(p *printer) {
	p.line(1, "glock <= lock;")
	p.line(1, "fetch_en <= not lock_r;")
	p.blank()
}

// WriteIMemMAUPackage writes the <entity>_imem_mau package the decompressors
// use. IMEMMAUWIDTH is the width of one instruction memory MAU, which is the
// compressed instruction width for the dictionary compressors.
func WriteIMemMAUPackage(w io.Writer, entity string, mauWidth int) error {
	if mauWidth <= 0 {
		return fmt.Errorf("instruction memory MAU width %d: %w", mauWidth, ErrInvalidData)
	}
	entity = entityName(entity)
	p := &printer{w: w}
	p.line(0, "package %s_imem_mau is", entity)
	p.line(1, "constant IMEMMAUWIDTH : positive := %d;", mauWidth)
	p.line(0, "end %s_imem_mau;", entity)
	return p.err
}
