package compressor

import (
	"io"

	"github.com/chazu/pig/bitstream"
)

// wholeInstruction keys the dictionary with the complete raw instruction.
type wholeInstruction struct{}

func (wholeInstruction) dictionaryNames() []string { return []string{"instruction"} }

func (wholeInstruction) prefixWidth() int { return 0 }

func (wholeInstruction) split(raw *bitstream.Stream) (string, []string, error) {
	return "", []string{raw.String()}, nil
}

// InstructionDictionary replaces every instruction with its index in a
// dictionary of all distinct instructions of the corpus.
type InstructionDictionary struct {
	dictionaryCompressor
}

func newInstructionDictionary(ctx *Context) Compressor {
	return &InstructionDictionary{newDictionaryCompressor("instruction_dictionary", ctx,
		func(*Context) (segmenter, error) { return wholeInstruction{}, nil })}
}

func (c *InstructionDictionary) Description() string {
	return "Generates the program image using instruction-based dictionary compression.\n\n" +
		"Each instruction occupies one MAU of the compressed image, so jump and call " +
		"addresses count instructions. The dictionary is built on the level of whole instructions.\n\n" +
		"Parameters accepted:\n" +
		"----------------------\n" +
		ParamEnsureProgrammability + "\n" +
		"If the value is 'yes', instructions that ensure programmability of the " +
		"processor are added to the dictionary automatically."
}

// Snapshot returns the frozen dictionary.
func (c *InstructionDictionary) Snapshot() Snapshot { return c.snapshot() }

// Restore freezes the compressor with the dictionary of an earlier session.
func (c *InstructionDictionary) Restore(s Snapshot) error { return c.restore(s) }

func (c *InstructionDictionary) GenerateDecompressor(w io.Writer, entity string) error {
	if err := c.prepare(); err != nil {
		return err
	}
	entity = entityName(entity)
	d := c.dicts[0]
	p := &printer{w: w}

	writePackageStart(p, entity)
	writeTable(p, d, "")
	writePackageEnd(p, entity)

	writeLibraries(p, entity, true)
	writeDecompressorEntity(p, entity)

	p.line(0, "architecture simple_dict of %s_decompressor is", entity)
	p.blank()
	if d.Len() > 1 {
		p.line(1, "subtype dict_index is integer range 0 to dict_init'length-1;")
		p.line(1, "signal dict_line : dict_index;")
		p.line(1, "constant dict : std_logic_dict_matrix(0 to dict_init'length-1) := dict_init;")
		p.blank()
	}
	p.line(0, "begin")
	p.blank()
	writeGlue(p)
	if d.Len() > 1 {
		p.line(1, "dict_line <= conv_integer(unsigned(fetchblock(fetchblock'length-1 downto fetchblock'length-%d)));", d.CodeWidth())
		p.blank()
		p.line(1, "process (dict_line)")
		p.line(1, "begin")
		p.line(2, "instructionword <= dict(dict_line);")
		p.line(1, "end process;")
	} else {
		p.line(1, "instructionword <= dict_init;")
	}
	p.blank()
	p.line(0, "end simple_dict;")
	return p.err
}
