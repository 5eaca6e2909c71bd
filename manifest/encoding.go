package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/chazu/pig/bem"
)

// LoadEncoding reads an encoding model. Files ending in ".cbor" hold a
// snapshot written by bem.MarshalSnapshot; anything else is a TOML
// description.
func LoadEncoding(path string) (*bem.BinaryEncoding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".cbor") {
		enc, err := bem.UnmarshalSnapshot(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return enc, nil
	}

	var d bem.Description
	if err := toml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	enc, err := bem.Build(d)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return enc, nil
}

// SaveEncoding writes an encoding model as a TOML description.
func SaveEncoding(path string, enc *bem.BinaryEncoding) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(enc.Describe()); err != nil {
		f.Close()
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return f.Close()
}

// LoadEncoding reads the encoding model named by the manifest.
func (m *Manifest) LoadEncoding() (*bem.BinaryEncoding, error) {
	if m.Machine.Encoding == "" {
		return nil, fmt.Errorf("no [machine] encoding: %w", ErrInvalidManifest)
	}
	return LoadEncoding(m.EncodingPath())
}
