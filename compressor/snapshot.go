package compressor

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("compressor: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is the state a compressor needs to reproduce its output: the
// compressed MAU width and the frozen dictionaries.
type Snapshot struct {
	Compressor   string               `cbor:"1,keyasint" json:"compressor"`
	MAUWidth     int                  `cbor:"2,keyasint" json:"mau-width"`
	PrefixWidth  int                  `cbor:"3,keyasint,omitempty" json:"prefix-width,omitempty"`
	Frozen       bool                 `cbor:"4,keyasint" json:"frozen"`
	Dictionaries []DictionarySnapshot `cbor:"5,keyasint,omitempty" json:"dictionaries,omitempty"`
}

// DictionarySnapshot lists the entries of one dictionary ordered by code.
type DictionarySnapshot struct {
	Name    string   `cbor:"1,keyasint" json:"name"`
	Entries []string `cbor:"2,keyasint" json:"entries"`
}

// Restorer is implemented by compressors that can be frozen with the
// dictionaries of an earlier session instead of scanning the corpus.
type Restorer interface {
	Restore(s Snapshot) error
}

// MarshalSnapshot serializes a snapshot to canonical CBOR.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot decodes a snapshot written by MarshalSnapshot.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("compressor: unmarshal snapshot: %w", err)
	}
	return s, nil
}
