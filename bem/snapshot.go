package bem

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bem: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalSnapshot serializes the encoding to canonical CBOR. Equal encodings
// produce identical bytes.
func MarshalSnapshot(e *BinaryEncoding) ([]byte, error) {
	return cborEncMode.Marshal(e.Describe())
}

// UnmarshalSnapshot rebuilds an encoding from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*BinaryEncoding, error) {
	var d Description
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("bem: unmarshal snapshot: %w", err)
	}
	return Build(d)
}
