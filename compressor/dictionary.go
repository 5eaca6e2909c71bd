package compressor

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/chazu/pig/bitstream"
	"github.com/chazu/pig/program"
)

// Dictionary maps raw bit patterns to codes in the order they were first
// seen. It is frozen once the corpus has been scanned.
type Dictionary struct {
	name    string
	entries []string
	codes   map[string]int
}

func newDictionary(name string) *Dictionary {
	return &Dictionary{name: name, codes: make(map[string]int)}
}

// Name returns the name of the dictionary: "instruction" for the whole
// instruction dictionary, the bus name for move slot dictionaries.
func (d *Dictionary) Name() string { return d.name }

// Len returns the number of entries.
func (d *Dictionary) Len() int { return len(d.entries) }

// Code returns the code of a raw pattern.
func (d *Dictionary) Code(pattern string) (int, bool) {
	c, ok := d.codes[pattern]
	return c, ok
}

// CodeWidth returns ceil(log2(max(size, 1))). A dictionary with a single
// entry needs no code bits.
func (d *Dictionary) CodeWidth() int {
	if len(d.entries) <= 1 {
		return 0
	}
	return bits.Len(uint(len(d.entries) - 1))
}

// EntryWidth returns the width of the widest entry.
func (d *Dictionary) EntryWidth() int {
	w := 0
	for _, e := range d.entries {
		if len(e) > w {
			w = len(e)
		}
	}
	return w
}

// Entry returns entry i right padded with zeros to EntryWidth.
func (d *Dictionary) Entry(i int) string {
	e := d.entries[i]
	if pad := d.EntryWidth() - len(e); pad > 0 {
		e += strings.Repeat("0", pad)
	}
	return e
}

// Entries returns the raw patterns ordered by code.
func (d *Dictionary) Entries() []string {
	return append([]string(nil), d.entries...)
}

func (d *Dictionary) add(pattern string) {
	if _, ok := d.codes[pattern]; ok {
		return
	}
	d.codes[pattern] = len(d.entries)
	d.entries = append(d.entries, pattern)
}

// ---------------------------------------------------------------------------
// Dictionary compressor core
// ---------------------------------------------------------------------------

// segmenter splits a raw instruction into bits copied verbatim (the prefix)
// and one pattern per dictionary.
type segmenter interface {
	dictionaryNames() []string
	prefixWidth() int
	split(raw *bitstream.Stream) (prefix string, patterns []string, err error)
}

// dictionaryCompressor holds what both dictionary strategies share: the
// one-time corpus scan, the frozen dictionaries and the emission loop.
// Every instruction occupies exactly one MAU of the compressed image.
type dictionaryCompressor struct {
	name string
	ctx  *Context

	// newSegmenter is called on first use, once the context is complete.
	newSegmenter func(ctx *Context) (segmenter, error)
	seg          segmenter

	ensureProgrammability bool
	selfTestDone          bool

	dicts     []*Dictionary
	frozen    bool
	mauWidth  int
	addresses map[string][]uint64
}

func newDictionaryCompressor(name string, ctx *Context, newSeg func(*Context) (segmenter, error)) dictionaryCompressor {
	v, _ := ctx.Parameter(ParamEnsureProgrammability)
	return dictionaryCompressor{
		name:                  name,
		ctx:                   ctx,
		newSegmenter:          newSeg,
		ensureProgrammability: v == "yes",
		addresses:             make(map[string][]uint64),
	}
}

func (c *dictionaryCompressor) Name() string { return c.name }

func (c *dictionaryCompressor) MAUWidth() int { return c.mauWidth }

// Dictionaries returns the frozen dictionaries. It is empty until the first
// program has been compressed.
func (c *dictionaryCompressor) Dictionaries() []*Dictionary {
	if !c.frozen {
		return nil
	}
	return append([]*Dictionary(nil), c.dicts...)
}

func (c *dictionaryCompressor) InstructionAddresses(programName string) ([]uint64, error) {
	a, ok := c.addresses[programName]
	if !ok {
		return nil, fmt.Errorf("program %q has not been compressed: %w", programName, ErrUnknownProgram)
	}
	return a, nil
}

func (c *dictionaryCompressor) segmenter() (segmenter, error) {
	if c.seg != nil {
		return c.seg, nil
	}
	if c.ctx.Encoder == nil {
		return nil, fmt.Errorf("%s: no encoding model: %w", c.name, ErrInvalidData)
	}
	seg, err := c.newSegmenter(c.ctx)
	if err != nil {
		return nil, err
	}
	c.seg = seg
	return seg, nil
}

// prepare scans the corpus and freezes the dictionaries. It does nothing
// once the dictionaries are frozen.
func (c *dictionaryCompressor) prepare() error {
	if c.frozen {
		return nil
	}
	seg, err := c.segmenter()
	if err != nil {
		return err
	}
	if c.dicts == nil {
		for _, name := range seg.dictionaryNames() {
			c.dicts = append(c.dicts, newDictionary(name))
		}
	}

	if c.ensureProgrammability && !c.selfTestDone {
		p, err := c.ctx.Encoder.SelfTestProgram()
		if err != nil {
			return fmt.Errorf("%w: unable to ensure programmability: %w", ErrInvalidData, err)
		}
		if err := c.scan(p); err != nil {
			return fmt.Errorf("%w: unable to ensure programmability: %w", ErrInvalidData, err)
		}
		c.selfTestDone = true
	}
	for _, p := range c.ctx.Programs {
		if err := c.scan(p); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidData, err)
		}
	}

	for _, d := range c.dicts {
		if d.Len() == 0 {
			return fmt.Errorf("%s: dictionary %s is empty, the corpus has no instructions: %w",
				c.name, d.Name(), ErrInvalidData)
		}
	}

	c.frozen = true
	c.mauWidth = compressedWidth(seg, c.dicts)
	log.Noticef("%s: compressed instruction width %d bits (%d bytes)", c.name, c.mauWidth, (c.mauWidth+7)/8)
	for _, d := range c.dicts {
		size := d.Len() * d.EntryWidth()
		log.Infof("%s: dictionary %s: %d entries, code width %d, size %d bits (%d bytes)",
			c.name, d.Name(), d.Len(), d.CodeWidth(), size, (size+7)/8)
	}
	return nil
}

// compressedWidth returns the width of one compressed instruction: the
// verbatim prefix followed by one code per dictionary.
func compressedWidth(seg segmenter, dicts []*Dictionary) int {
	w := seg.prefixWidth()
	for _, d := range dicts {
		w += d.CodeWidth()
	}
	if w == 0 {
		// A machine whose whole corpus is one pattern still needs one bit
		// per instruction to be addressable.
		w = 1
	}
	return w
}

// Prepare scans the corpus and freezes the dictionaries.
func (c *dictionaryCompressor) Prepare() error { return c.prepare() }

func (c *dictionaryCompressor) scan(p *program.Program) error {
	addrs := sequentialAddresses(p)
	raw, err := rawInstructions(c.ctx, p, func(t int) uint64 { return addrs[t] })
	if err != nil {
		return err
	}
	for i, r := range raw {
		_, patterns, err := c.seg.split(r)
		if err != nil {
			return fmt.Errorf("%s: instruction %d: %w", p.Name, i, err)
		}
		for j, pat := range patterns {
			c.dicts[j].add(pat)
		}
	}
	return nil
}

func (c *dictionaryCompressor) Compress(programName string) (*bitstream.Stream, error) {
	p, err := c.ctx.program(programName)
	if err != nil {
		return nil, err
	}
	if err := c.prepare(); err != nil {
		return nil, err
	}

	addrs := sequentialAddresses(p)
	raw, err := rawInstructions(c.ctx, p, func(t int) uint64 { return addrs[t] })
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	out := bitstream.New()
	for i, r := range raw {
		start := out.Len()
		if err := out.MarkBoundary(start); err != nil {
			return nil, err
		}
		prefix, patterns, err := c.seg.split(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: instruction %d: %w", ErrInvalidData, p.Name, i, err)
		}
		if err := out.PushSegment(prefix); err != nil {
			return nil, err
		}
		for j, pat := range patterns {
			d := c.dicts[j]
			code, ok := d.Code(pat)
			if !ok {
				return nil, fmt.Errorf("%s: instruction %d: pattern %s missing from dictionary %s: %w",
					p.Name, i, pat, d.Name(), ErrInvalidData)
			}
			if err := out.PushBits(uint64(code), d.CodeWidth()); err != nil {
				return nil, err
			}
		}
		for out.Len()-start < c.mauWidth {
			if err := out.PushBit(false); err != nil {
				return nil, err
			}
		}
	}
	c.addresses[programName] = addrs
	log.Debugf("%s: %s compressed to %d bits", c.name, programName, out.Len())
	return out, nil
}

// restore installs dictionaries from a snapshot and freezes them.
func (c *dictionaryCompressor) restore(s Snapshot) error {
	if s.Compressor != c.name {
		return fmt.Errorf("snapshot of %q cannot seed %q: %w", s.Compressor, c.name, ErrInvalidData)
	}
	seg, err := c.segmenter()
	if err != nil {
		return err
	}
	names := seg.dictionaryNames()
	if len(names) != len(s.Dictionaries) {
		return fmt.Errorf("snapshot has %d dictionaries, encoding needs %d: %w", len(s.Dictionaries), len(names), ErrInvalidData)
	}
	dicts := make([]*Dictionary, len(names))
	for i, ds := range s.Dictionaries {
		if ds.Name != names[i] {
			return fmt.Errorf("snapshot dictionary %q, encoding needs %q: %w", ds.Name, names[i], ErrInvalidData)
		}
		if len(ds.Entries) == 0 {
			return fmt.Errorf("snapshot dictionary %q is empty: %w", ds.Name, ErrInvalidData)
		}
		d := newDictionary(ds.Name)
		for _, e := range ds.Entries {
			if _, dup := d.Code(e); dup {
				return fmt.Errorf("snapshot dictionary %q repeats pattern %s: %w", ds.Name, e, ErrInvalidData)
			}
			d.add(e)
		}
		dicts[i] = d
	}
	if s.PrefixWidth != seg.prefixWidth() {
		return fmt.Errorf("snapshot prefix width %d, encoding needs %d: %w", s.PrefixWidth, seg.prefixWidth(), ErrInvalidData)
	}
	if w := compressedWidth(seg, dicts); s.MAUWidth != w {
		return fmt.Errorf("snapshot MAU width %d, dictionaries need %d: %w", s.MAUWidth, w, ErrInvalidData)
	}
	c.dicts = dicts
	c.selfTestDone = true
	c.frozen = true
	c.mauWidth = s.MAUWidth
	return nil
}

func (c *dictionaryCompressor) snapshot() Snapshot {
	s := Snapshot{Compressor: c.name, MAUWidth: c.mauWidth, Frozen: c.frozen}
	if c.seg != nil {
		s.PrefixWidth = c.seg.prefixWidth()
	}
	if c.frozen {
		for _, d := range c.dicts {
			s.Dictionaries = append(s.Dictionaries, DictionarySnapshot{Name: d.Name(), Entries: d.Entries()})
		}
	}
	return s
}
