package server

import (
	"encoding/json"
	"fmt"

	"github.com/chazu/pig/program"
	"github.com/fxamacker/cbor/v2"
)

// ServiceName is the fully qualified name of the image service.
const ServiceName = "pig.v1.ImageService"

// Procedure paths of the image service.
const (
	CreateSessionProcedure        = "/" + ServiceName + "/CreateSession"
	GenerateProgramImageProcedure = "/" + ServiceName + "/GenerateProgramImage"
	GenerateDataImageProcedure    = "/" + ServiceName + "/GenerateDataImage"
	GenerateDecompressorProcedure = "/" + ServiceName + "/GenerateDecompressor"
	ListCompressorsProcedure      = "/" + ServiceName + "/ListCompressors"
	CloseSessionProcedure         = "/" + ServiceName + "/CloseSession"
)

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// CreateSessionRequest starts a session over an encoding and a corpus.
type CreateSessionRequest struct {
	Name string `cbor:"1,keyasint,omitempty" json:"name,omitempty"`

	// Encoding is a snapshot written by bem.MarshalSnapshot.
	Encoding []byte            `cbor:"2,keyasint" json:"encoding"`
	Programs []program.Program `cbor:"3,keyasint" json:"programs"`

	Compressor   string            `cbor:"4,keyasint,omitempty" json:"compressor,omitempty"`
	Parameters   map[string]string `cbor:"5,keyasint,omitempty" json:"parameters,omitempty"`
	IMemMAUWidth int               `cbor:"6,keyasint,omitempty" json:"imem-mau-width,omitempty"`
	Entity       string            `cbor:"7,keyasint,omitempty" json:"entity,omitempty"`

	// SnapshotKey names a stored compressor snapshot. When it exists the
	// session is restored from it; otherwise the snapshot is saved under the
	// key when the session closes.
	SnapshotKey string `cbor:"8,keyasint,omitempty" json:"snapshot-key,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string `cbor:"1,keyasint" json:"session-id"`
	Restored  bool   `cbor:"2,keyasint" json:"restored"`
}

type ProgramImageRequest struct {
	SessionID   string `cbor:"1,keyasint" json:"session-id"`
	Program     string `cbor:"2,keyasint" json:"program"`
	Format      string `cbor:"3,keyasint" json:"format"`
	MAUsPerLine int    `cbor:"4,keyasint,omitempty" json:"maus-per-line,omitempty"`
}

type DataImageRequest struct {
	SessionID    string `cbor:"1,keyasint" json:"session-id"`
	Program      string `cbor:"2,keyasint" json:"program"`
	AddressSpace string `cbor:"3,keyasint" json:"address-space"`
	Format       string `cbor:"4,keyasint" json:"format"`
	MAUWidth     int    `cbor:"5,keyasint" json:"mau-width"`
	MAUsPerLine  int    `cbor:"6,keyasint" json:"maus-per-line"`
}

// ImageResponse carries a generated image. Hash is its content address
// when the server keeps a store.
type ImageResponse struct {
	Image []byte `cbor:"1,keyasint" json:"image"`
	Hash  string `cbor:"2,keyasint,omitempty" json:"hash,omitempty"`
}

type DecompressorRequest struct {
	SessionID string `cbor:"1,keyasint" json:"session-id"`
}

type DecompressorResponse struct {
	VHDL string `cbor:"1,keyasint" json:"vhdl"`

	// IMemMAUPackage is the <entity>_imem_mau package the decompressor uses.
	IMemMAUPackage string `cbor:"2,keyasint" json:"imem-mau-package"`
}

type ListCompressorsRequest struct{}

type CompressorInfo struct {
	Name        string `cbor:"1,keyasint" json:"name"`
	Description string `cbor:"2,keyasint" json:"description"`
}

type ListCompressorsResponse struct {
	Compressors []CompressorInfo `cbor:"1,keyasint" json:"compressors"`
}

type CloseSessionRequest struct {
	SessionID string `cbor:"1,keyasint" json:"session-id"`
}

type CloseSessionResponse struct {
	SnapshotSaved bool `cbor:"1,keyasint" json:"snapshot-saved"`
}

// ---------------------------------------------------------------------------
// Codecs
// ---------------------------------------------------------------------------

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// CBORCodec is a connect.Codec for canonical CBOR, served as
// application/cbor.
type CBORCodec struct{}

func (CBORCodec) Name() string { return "cbor" }

func (CBORCodec) Marshal(v any) ([]byte, error) { return cborEncMode.Marshal(v) }

func (CBORCodec) Unmarshal(data []byte, v any) error { return cbor.Unmarshal(data, v) }

// JSONCodec is a connect.Codec for plain JSON, served as application/json.
// It replaces connect's protobuf JSON codec, which only handles generated
// messages.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
