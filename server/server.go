package server

import (
	"net/http"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/pig/store"
)

var log = commonlog.GetLogger("pig.server")

// PigServer serves the image service over Connect (HTTP) with CBOR and
// JSON codecs.
type PigServer struct {
	worker   *Worker
	sessions *SessionStore
	store    *store.Store
	mux      *http.ServeMux
}

// ServerOption configures a PigServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	store *store.Store
}

// WithStore keeps every generated image and dictionary snapshot in st.
func WithStore(st *store.Store) ServerOption {
	return func(c *serverConfig) { c.store = st }
}

// New creates a PigServer.
func New(opts ...ServerOption) *PigServer {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &PigServer{
		worker:   NewWorker(),
		sessions: NewSessionStore(),
		store:    cfg.store,
		mux:      http.NewServeMux(),
	}

	svc := NewImageService(s.worker, s.sessions, s.store)
	handlerOpts := []connect.HandlerOption{
		connect.WithCodec(CBORCodec{}),
		connect.WithCodec(JSONCodec{}),
	}
	s.mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, svc.CreateSession, handlerOpts...))
	s.mux.Handle(GenerateProgramImageProcedure, connect.NewUnaryHandler(GenerateProgramImageProcedure, svc.GenerateProgramImage, handlerOpts...))
	s.mux.Handle(GenerateDataImageProcedure, connect.NewUnaryHandler(GenerateDataImageProcedure, svc.GenerateDataImage, handlerOpts...))
	s.mux.Handle(GenerateDecompressorProcedure, connect.NewUnaryHandler(GenerateDecompressorProcedure, svc.GenerateDecompressor, handlerOpts...))
	s.mux.Handle(ListCompressorsProcedure, connect.NewUnaryHandler(ListCompressorsProcedure, svc.ListCompressors, handlerOpts...))
	s.mux.Handle(CloseSessionProcedure, connect.NewUnaryHandler(CloseSessionProcedure, svc.CloseSession, handlerOpts...))

	return s
}

// Handler returns the HTTP handler serving the image service.
func (s *PigServer) Handler() http.Handler { return s.mux }

// Sessions returns the open sessions.
func (s *PigServer) Sessions() *SessionStore { return s.sessions }

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *PigServer) ListenAndServe(addr string) error {
	log.Noticef("pig image service listening on %s", addr)
	log.Noticef("  Connect (HTTP/CBOR, HTTP/JSON): http://%s%s", addr, CreateSessionProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// Stop shuts down the server.
func (s *PigServer) Stop() {
	s.worker.Stop()
}
