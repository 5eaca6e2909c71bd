package compressor

import (
	"fmt"
	"io"
	"strings"

	"github.com/chazu/pig/bitstream"
)

// slotLayout cuts a raw instruction into the long immediate prefix and one
// segment per move slot. The move slots must be contiguous and end at the
// right edge of the instruction word; everything to their left is the
// prefix.
type slotLayout struct {
	names  []string
	widths []int
	prefix int
	width  int
}

func newSlotLayout(ctx *Context) (segmenter, error) {
	enc := ctx.Encoder.Encoding()
	slots := enc.MoveSlots()
	if len(slots) == 0 {
		return nil, fmt.Errorf("move_slot_dictionary: encoding has no move slots: %w", ErrInvalidData)
	}
	l := &slotLayout{width: enc.Width()}
	next := -1
	for _, s := range slots {
		off, err := enc.FieldOffset(s)
		if err != nil {
			return nil, fmt.Errorf("move_slot_dictionary: %w", err)
		}
		if next < 0 {
			l.prefix = off
		} else if off != next {
			return nil, fmt.Errorf("move_slot_dictionary: move slot %s at bit %d does not follow the previous slot: %w",
				s.Name(), off, ErrInvalidData)
		}
		l.names = append(l.names, s.Name())
		l.widths = append(l.widths, s.Width())
		next = off + s.Width()
	}
	if next != l.width {
		return nil, fmt.Errorf("move_slot_dictionary: move slots end at bit %d of %d: %w", next, l.width, ErrInvalidData)
	}
	return l, nil
}

func (l *slotLayout) dictionaryNames() []string { return l.names }

func (l *slotLayout) prefixWidth() int { return l.prefix }

func (l *slotLayout) split(raw *bitstream.Stream) (string, []string, error) {
	if raw.Len() != l.width {
		return "", nil, fmt.Errorf("instruction is %d bits, move slot layout needs %d: %w", raw.Len(), l.width, ErrInvalidData)
	}
	bits := raw.String()
	patterns := make([]string, len(l.widths))
	begin := l.prefix
	for i, w := range l.widths {
		patterns[i] = bits[begin : begin+w]
		begin += w
	}
	return bits[:l.prefix], patterns, nil
}

// MoveSlotDictionary keeps one dictionary per move slot. Long immediate
// bits in front of the move slots are copied unchanged.
type MoveSlotDictionary struct {
	dictionaryCompressor
}

func newMoveSlotDictionary(ctx *Context) Compressor {
	return &MoveSlotDictionary{newDictionaryCompressor("move_slot_dictionary", ctx, newSlotLayout)}
}

func (c *MoveSlotDictionary) Description() string {
	return "Generates the program image using move slot based dictionary compression.\n\n" +
		"Each instruction occupies one MAU of the compressed image, so jump and call " +
		"addresses count instructions. The dictionary is built on the move slot level.\n\n" +
		"Parameters accepted:\n" +
		"----------------------\n" +
		ParamEnsureProgrammability + "\n" +
		"If the value is 'yes', instructions that ensure programmability of the " +
		"processor are added to the dictionaries automatically."
}

// Snapshot returns the frozen dictionaries, one per move slot.
func (c *MoveSlotDictionary) Snapshot() Snapshot { return c.snapshot() }

// Restore freezes the compressor with the dictionaries of an earlier session.
func (c *MoveSlotDictionary) Restore(s Snapshot) error { return c.restore(s) }

func (c *MoveSlotDictionary) GenerateDecompressor(w io.Writer, entity string) error {
	if err := c.prepare(); err != nil {
		return err
	}
	entity = entityName(entity)
	prefix := c.seg.prefixWidth()
	p := &printer{w: w}

	writePackageStart(p, entity)
	for i, d := range c.dicts {
		p.line(1, "-- move slot %s", d.Name())
		writeTable(p, d, fmt.Sprintf("_%d", i))
	}
	writePackageEnd(p, entity)

	writeLibraries(p, entity, true)
	writeDecompressorEntity(p, entity)

	p.line(0, "architecture move_slot_dict of %s_decompressor is", entity)
	p.blank()
	for i, d := range c.dicts {
		if d.Len() > 1 {
			p.line(1, "subtype dict_index_%d is integer range 0 to dict_init_%d'length-1;", i, i)
			p.line(1, "signal dict_line_%d : dict_index_%d;", i, i)
			p.line(1, "constant dict_%d : std_logic_dict_matrix_%d(0 to dict_init_%d'length-1) := dict_init_%d;", i, i, i, i)
		} else {
			p.line(1, "constant dict_%d : std_logic_vector(%d-1 downto 0) := dict_init_%d;", i, d.EntryWidth(), i)
		}
		p.blank()
	}
	if prefix > 0 {
		p.line(1, "signal limm_field : std_logic_vector(%d-1 downto 0);", prefix)
		p.blank()
	}

	p.line(0, "begin")
	p.blank()
	writeGlue(p)
	if prefix > 0 {
		p.line(1, "limm_field <= fetchblock(fetchblock'length-1 downto fetchblock'length-%d);", prefix)
		p.blank()
	}
	var sensitivity, word []string
	if prefix > 0 {
		sensitivity = append(sensitivity, "limm_field")
		word = append(word, "limm_field")
	}
	begin := prefix
	for i, d := range c.dicts {
		if d.Len() > 1 {
			p.line(1, "dict_line_%d <= conv_integer(unsigned(fetchblock(fetchblock'length-%d downto fetchblock'length-%d)));",
				i, begin+1, begin+d.CodeWidth())
			p.blank()
			sensitivity = append(sensitivity, fmt.Sprintf("dict_line_%d", i))
			word = append(word, fmt.Sprintf("dict_%d(dict_line_%d)", i, i))
		} else {
			word = append(word, fmt.Sprintf("dict_%d", i))
		}
		begin += d.CodeWidth()
	}
	if len(sensitivity) > 0 {
		p.line(1, "process (%s)", strings.Join(sensitivity, ", "))
		p.line(1, "begin")
		p.line(2, "instructionword <= %s;", strings.Join(word, "&"))
		p.line(1, "end process;")
	} else {
		p.line(1, "instructionword <= %s;", strings.Join(word, "&"))
	}
	p.blank()
	p.line(0, "end move_slot_dict;")
	return p.err
}
