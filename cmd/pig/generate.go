package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/pig/bem"
	"github.com/chazu/pig/compressor"
	"github.com/chazu/pig/imagewriter"
	"github.com/chazu/pig/manifest"
	"github.com/chazu/pig/pig"
	"github.com/chazu/pig/program"
	"github.com/chazu/pig/store"
)

var log = commonlog.GetLogger("pig.cmd")

var extensions = map[string]string{
	"binary": ".bin",
	"bin2n":  ".bin",
	"ascii":  ".img",
	"array":  ".img",
	"hex":    ".hex",
	"mif":    ".mif",
	"coe":    ".coe",
	"vhdl":   ".vhdl",
	"gosrc":  ".go",
}

func formatNames() []string { return imagewriter.Formats() }

// job is one generator run: settings from pig.toml overridden by flags.
type job struct {
	encodingPath string
	programs     []*program.Program
	programPaths []string

	format       string
	output       string
	mausPerLine  int
	compressor   string
	parameters   map[string]string
	entity       string
	imemMAUWidth int

	dataFormat      string
	dataMAUWidth    int
	dataMAUsPerLine int
	addressSpaces   []string

	storePath       string
	reuseDictionary bool
}

// newJob takes the settings of a manifest. A nil manifest gives the
// defaults.
func newJob(m *manifest.Manifest) (*job, error) {
	j := &job{
		format:          "binary",
		output:          "build",
		compressor:      "identity",
		parameters:      make(map[string]string),
		entity:          compressor.DefaultEntity,
		dataMAUWidth:    8,
		dataMAUsPerLine: 1,
	}
	if m == nil {
		return j, nil
	}

	programs, err := m.LoadPrograms()
	if err != nil {
		return nil, err
	}
	j.encodingPath = m.EncodingPath()
	j.programs = programs
	j.format = m.Image.Format
	j.output = m.OutputDir()
	j.mausPerLine = m.Image.MAUsPerLine
	j.compressor = m.Compressor.Name
	j.parameters = m.CompressorParameters()
	j.entity = m.Image.Entity
	j.imemMAUWidth = m.Image.IMemMAUWidth
	j.dataMAUWidth = m.Data.MAUWidth
	j.dataMAUsPerLine = m.Data.MAUsPerLine
	j.addressSpaces = m.Data.AddressSpaces
	j.storePath = m.StorePath()
	return j, nil
}

// run generates every image of the job and returns the files written.
func (j *job) run() ([]string, error) {
	if j.encodingPath == "" {
		return nil, fmt.Errorf("no encoding: use -m or set [machine] encoding in %s", manifest.FileName)
	}
	enc, err := manifest.LoadEncoding(j.encodingPath)
	if err != nil {
		return nil, err
	}

	programs := j.programs
	for _, path := range j.programPaths {
		p, err := program.LoadFile(path)
		if err != nil {
			return nil, err
		}
		programs = append(programs, p)
	}
	if len(programs) == 0 {
		return nil, errors.New("no programs given")
	}

	gen, err := pig.New(enc, programs, pig.Options{
		Compressor:   j.compressor,
		Parameters:   j.parameters,
		IMemMAUWidth: j.imemMAUWidth,
		Entity:       j.entity,
	})
	if err != nil {
		return nil, err
	}

	var st *store.Store
	var snapshotKey string
	if j.storePath != "" {
		st, err = store.Open(j.storePath)
		if err != nil {
			return nil, err
		}
		defer st.Close()

		encBytes, err := bem.MarshalSnapshot(enc)
		if err != nil {
			return nil, err
		}
		snapshotKey = store.SnapshotKey(gen.Compressor().Name(), encBytes)
	}
	if j.reuseDictionary {
		if st == nil {
			return nil, errors.New("-reuse-dictionary needs the image store")
		}
		snap, err := st.GetSnapshot(snapshotKey)
		switch {
		case err == nil:
			if err := gen.Restore(snap); err != nil {
				return nil, err
			}
			log.Noticef("restored %s dictionaries from the store", gen.Compressor().Name())
		case errors.Is(err, store.ErrNotFound):
			log.Noticef("no stored dictionaries for %s, building them", gen.Compressor().Name())
		default:
			return nil, err
		}
	}

	if err := os.MkdirAll(j.output, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	var written []string
	emit := func(name, format string, fill func(*bytes.Buffer) error) error {
		var buf bytes.Buffer
		if err := fill(&buf); err != nil {
			return err
		}
		path := filepath.Join(j.output, name+extensions[format])
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			return err
		}
		written = append(written, path)
		if st != nil {
			if _, err := st.PutImage(store.Image{
				Program:    name,
				Format:     format,
				Compressor: gen.Compressor().Name(),
				Data:       buf.Bytes(),
			}); err != nil {
				return err
			}
		}
		return nil
	}

	dataFormat := j.dataFormat
	if dataFormat == "" {
		dataFormat = j.format
	}
	for _, p := range programs {
		err := emit(p.Name, j.format, func(buf *bytes.Buffer) error {
			return gen.ProgramImage(buf, p.Name, j.format, j.mausPerLine)
		})
		if err != nil {
			return nil, err
		}

		spaces := j.addressSpaces
		if len(spaces) == 0 {
			spaces = p.AddressSpaces()
		}
		for _, space := range spaces {
			err := emit(p.Name+"_"+space, dataFormat, func(buf *bytes.Buffer) error {
				return gen.DataImage(buf, p.Name, space, dataFormat, pig.DataOptions{
					MAUWidth:    j.dataMAUWidth,
					MAUsPerLine: j.dataMAUsPerLine,
				})
			})
			if errors.Is(err, pig.ErrUnknownAddressSpace) {
				log.Debugf("%s has no data in %s", p.Name, space)
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}

	vhdlFiles := []struct {
		name  string
		write func(io.Writer) error
	}{
		{j.entity + "_decompressor.vhdl", gen.Decompressor},
		{j.entity + "_imem_mau_pkg.vhdl", gen.IMemMAUPackage},
	}
	for _, f := range vhdlFiles {
		var buf bytes.Buffer
		if err := f.write(&buf); err != nil {
			return nil, err
		}
		path := filepath.Join(j.output, f.name)
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			return nil, err
		}
		written = append(written, path)
	}

	if _, ok := gen.Compressor().(compressor.Restorer); ok && st != nil {
		if err := st.PutSnapshot(snapshotKey, gen.Snapshot()); err != nil {
			return nil, err
		}
	}
	return written, nil
}
