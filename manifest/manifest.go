// Package manifest handles pig.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/chazu/pig/compressor"
	"github.com/chazu/pig/program"
)

// FileName is the name of the project file.
const FileName = "pig.toml"

// ErrInvalidManifest is returned when a pig.toml does not match the schema.
var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest represents a pig.toml project configuration.
type Manifest struct {
	Project    Project          `toml:"project"`
	Machine    Machine          `toml:"machine"`
	Programs   []ProgramEntry   `toml:"program"`
	Image      ImageConfig      `toml:"image"`
	Compressor CompressorConfig `toml:"compressor"`
	Data       DataConfig       `toml:"data"`
	Store      StoreConfig      `toml:"store"`

	// Dir is the directory containing the pig.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Machine locates the encoding model of the target processor.
type Machine struct {
	// Encoding is a TOML encoding description, or a CBOR snapshot when the
	// file name ends in ".cbor".
	Encoding string `toml:"encoding"`
}

// ProgramEntry is one program of the corpus.
type ProgramEntry struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// ImageConfig configures image output.
type ImageConfig struct {
	Format       string `toml:"format"`
	MAUsPerLine  int    `toml:"maus-per-line"`
	Output       string `toml:"output"`
	Entity       string `toml:"entity"`
	IMemMAUWidth int    `toml:"imem-mau-width"`
}

// CompressorConfig selects the instruction compressor.
type CompressorConfig struct {
	Name                  string            `toml:"name"`
	EnsureProgrammability bool              `toml:"ensure-programmability"`
	Parameters            map[string]string `toml:"parameters"`
}

// DataConfig configures data memory images.
type DataConfig struct {
	MAUWidth      int      `toml:"mau-width"`
	MAUsPerLine   int      `toml:"maus-per-line"`
	AddressSpaces []string `toml:"address-spaces"`
}

// StoreConfig locates the image store.
type StoreConfig struct {
	Path string `toml:"path"`
}

// Load parses a pig.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := Validate(data, path); err != nil {
		return nil, err
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Image.Format == "" {
		m.Image.Format = "binary"
	}
	if m.Image.Output == "" {
		m.Image.Output = "build"
	}
	if m.Image.Entity == "" {
		m.Image.Entity = compressor.DefaultEntity
	}
	if m.Compressor.Name == "" {
		m.Compressor.Name = "identity"
	}
	if m.Data.MAUWidth == 0 {
		m.Data.MAUWidth = 8
	}
	if m.Data.MAUsPerLine == 0 {
		m.Data.MAUsPerLine = 1
	}
	if m.Store.Path == "" {
		m.Store.Path = filepath.Join(".pig", "store.db")
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a pig.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.Dir, path)
}

// EncodingPath returns the absolute path of the encoding description.
func (m *Manifest) EncodingPath() string { return m.resolve(m.Machine.Encoding) }

// OutputDir returns the absolute path of the output directory.
func (m *Manifest) OutputDir() string { return m.resolve(m.Image.Output) }

// StorePath returns the absolute path of the image store.
func (m *Manifest) StorePath() string { return m.resolve(m.Store.Path) }

// CompressorParameters returns the compressor parameters including
// ensure_programmability.
func (m *Manifest) CompressorParameters() map[string]string {
	out := make(map[string]string, len(m.Compressor.Parameters)+1)
	for k, v := range m.Compressor.Parameters {
		out[k] = v
	}
	if m.Compressor.EnsureProgrammability {
		out[compressor.ParamEnsureProgrammability] = "yes"
	} else if _, ok := out[compressor.ParamEnsureProgrammability]; !ok {
		out[compressor.ParamEnsureProgrammability] = "no"
	}
	return out
}

// LoadPrograms reads every program listed in the manifest. An entry name
// overrides the name in the program file.
func (m *Manifest) LoadPrograms() ([]*program.Program, error) {
	out := make([]*program.Program, 0, len(m.Programs))
	for _, e := range m.Programs {
		p, err := program.LoadFile(m.resolve(e.Path))
		if err != nil {
			return nil, fmt.Errorf("program %q: %w", e.Path, err)
		}
		if e.Name != "" {
			p.Name = e.Name
		}
		out = append(out, p)
	}
	return out, nil
}
