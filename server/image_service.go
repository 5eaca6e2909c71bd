package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/chazu/pig/bem"
	"github.com/chazu/pig/bitstream"
	"github.com/chazu/pig/compressor"
	"github.com/chazu/pig/imagewriter"
	"github.com/chazu/pig/pig"
	"github.com/chazu/pig/program"
	"github.com/chazu/pig/store"
)

// ImageService implements the pig.v1.ImageService Connect handlers.
type ImageService struct {
	worker   *Worker
	sessions *SessionStore
	store    *store.Store
}

// NewImageService creates an ImageService. The store may be nil.
func NewImageService(worker *Worker, sessions *SessionStore, st *store.Store) *ImageService {
	return &ImageService{
		worker:   worker,
		sessions: sessions,
		store:    st,
	}
}

// CreateSession decodes the encoding and the programs and starts a session.
func (s *ImageService) CreateSession(
	ctx context.Context,
	req *connect.Request[CreateSessionRequest],
) (*connect.Response[CreateSessionResponse], error) {
	msg := req.Msg
	if len(msg.Encoding) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("encoding is required"))
	}
	enc, err := bem.UnmarshalSnapshot(msg.Encoding)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	programs := make([]*program.Program, len(msg.Programs))
	for i := range msg.Programs {
		programs[i] = &msg.Programs[i]
	}

	gen, err := pig.New(enc, programs, pig.Options{
		Compressor:   msg.Compressor,
		Parameters:   msg.Parameters,
		IMemMAUWidth: msg.IMemMAUWidth,
		Entity:       msg.Entity,
	})
	if err != nil {
		return nil, connectError(err)
	}

	restored := false
	if msg.SnapshotKey != "" && s.store != nil {
		snap, err := s.store.GetSnapshot(msg.SnapshotKey)
		switch {
		case err == nil:
			if err := gen.Restore(snap); err != nil {
				return nil, connectError(err)
			}
			restored = true
		case !errors.Is(err, store.ErrNotFound):
			return nil, connect.NewError(connect.CodeInternal, err)
		}
	}

	session := s.sessions.Create(msg.Name, msg.SnapshotKey, gen)
	log.Infof("session %s: %d programs, compressor %s", session.ID, len(programs), gen.Compressor().Name())
	return connect.NewResponse(&CreateSessionResponse{
		SessionID: session.ID,
		Restored:  restored,
	}), nil
}

// GenerateProgramImage renders the instruction memory image of a program.
func (s *ImageService) GenerateProgramImage(
	ctx context.Context,
	req *connect.Request[ProgramImageRequest],
) (*connect.Response[ImageResponse], error) {
	msg := req.Msg
	session, err := s.session(msg.SessionID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = s.worker.Do(ctx, func() error {
		return session.Gen.ProgramImage(&buf, msg.Program, msg.Format, msg.MAUsPerLine)
	})
	if err != nil {
		return nil, connectError(err)
	}
	return s.imageResponse(session, msg.Program, msg.Format, buf.Bytes())
}

// GenerateDataImage renders the data memory image of one address space.
func (s *ImageService) GenerateDataImage(
	ctx context.Context,
	req *connect.Request[DataImageRequest],
) (*connect.Response[ImageResponse], error) {
	msg := req.Msg
	session, err := s.session(msg.SessionID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = s.worker.Do(ctx, func() error {
		return session.Gen.DataImage(&buf, msg.Program, msg.AddressSpace, msg.Format, pig.DataOptions{
			MAUWidth:    msg.MAUWidth,
			MAUsPerLine: msg.MAUsPerLine,
		})
	})
	if err != nil {
		return nil, connectError(err)
	}
	return s.imageResponse(session, msg.Program+"/"+msg.AddressSpace, msg.Format, buf.Bytes())
}

// GenerateDecompressor returns the VHDL decompressor of the session and the
// instruction memory MAU package it uses.
func (s *ImageService) GenerateDecompressor(
	ctx context.Context,
	req *connect.Request[DecompressorRequest],
) (*connect.Response[DecompressorResponse], error) {
	session, err := s.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}

	var dec, pkg bytes.Buffer
	err = s.worker.Do(ctx, func() error {
		if err := session.Gen.Decompressor(&dec); err != nil {
			return err
		}
		return session.Gen.IMemMAUPackage(&pkg)
	})
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&DecompressorResponse{
		VHDL:           dec.String(),
		IMemMAUPackage: pkg.String(),
	}), nil
}

// ListCompressors lists the compressors the server knows.
func (s *ImageService) ListCompressors(
	ctx context.Context,
	req *connect.Request[ListCompressorsRequest],
) (*connect.Response[ListCompressorsResponse], error) {
	var out []CompressorInfo
	for _, info := range pig.ListCompressors() {
		out = append(out, CompressorInfo{Name: info.Name, Description: info.Description})
	}
	return connect.NewResponse(&ListCompressorsResponse{Compressors: out}), nil
}

// CloseSession ends a session. A dictionary session created with a
// snapshot key saves its frozen dictionaries under that key.
func (s *ImageService) CloseSession(
	ctx context.Context,
	req *connect.Request[CloseSessionRequest],
) (*connect.Response[CloseSessionResponse], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session-id is required"))
	}
	session, ok := s.sessions.Destroy(req.Msg.SessionID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}

	saved := false
	if _, ok := session.Gen.Compressor().(compressor.Restorer); ok && session.SnapshotKey != "" && s.store != nil {
		var snap compressor.Snapshot
		if err := s.worker.Do(ctx, func() error {
			snap = session.Gen.Snapshot()
			return nil
		}); err != nil {
			return nil, connectError(err)
		}
		if snap.Frozen {
			if err := s.store.PutSnapshot(session.SnapshotKey, snap); err != nil {
				return nil, connect.NewError(connect.CodeInternal, err)
			}
			saved = true
		}
	}
	return connect.NewResponse(&CloseSessionResponse{SnapshotSaved: saved}), nil
}

func (s *ImageService) session(id string) (*Session, error) {
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session-id is required"))
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return session, nil
}

func (s *ImageService) imageResponse(session *Session, name, format string, image []byte) (*connect.Response[ImageResponse], error) {
	resp := &ImageResponse{Image: image}
	if s.store != nil {
		h, err := s.store.PutImage(store.Image{
			Program:    name,
			Format:     format,
			Compressor: session.Gen.Compressor().Name(),
			Data:       image,
		})
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		resp.Hash = h
	}
	return connect.NewResponse(resp), nil
}

// connectError maps generation errors to Connect codes.
func connectError(err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, compressor.ErrUnknownProgram),
		errors.Is(err, pig.ErrUnknownAddressSpace):
		code = connect.CodeNotFound
	case errors.Is(err, compressor.ErrUnknownCompressor),
		errors.Is(err, compressor.ErrInvalidData),
		errors.Is(err, imagewriter.ErrUnknownFormat),
		errors.Is(err, imagewriter.ErrOutOfRange),
		errors.Is(err, program.ErrInvalidProgram),
		errors.Is(err, bitstream.ErrInsufficientReservedWidth),
		errors.Is(err, bem.ErrNotFound),
		errors.Is(err, bem.ErrInvalidArgument):
		code = connect.CodeInvalidArgument
	case errors.Is(err, pig.ErrNotRestorable):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, ErrWorkerStopped):
		code = connect.CodeUnavailable
	}
	return connect.NewError(code, err)
}
