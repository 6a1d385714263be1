// Package httpapi exposes the recovery operations over a small HTTP/JSON
// surface: status, image upload/clear/download, boot target selection, and
// the key-value and file stores. It is a thin boundary: every request is
// decoded into a typed record before any core call, and typed errors map to
// status codes by kind.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/FL0WL0W/ESPRecovery/pkg/recovery"
	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

// MaxJSONBody bounds structured request bodies. Image and file payloads are
// bounded by the writer's own size checks instead.
const MaxJSONBody = 1 << 20

// Server serves the recovery API for one System.
type Server struct {
	sys        *recovery.System
	log        *slog.Logger
	httpServer *http.Server
}

func New(sys *recovery.System, log *slog.Logger) *Server {
	return &Server{sys: sys, log: log}
}

// Handler builds the route table. Exposed so tests can drive the server
// through httptest without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/clear", s.handleClear)
	mux.HandleFunc("GET /api/download", s.handleDownload)
	mux.HandleFunc("GET /api/boot", s.handleBootGet)
	mux.HandleFunc("POST /api/boot", s.handleBootSet)
	mux.HandleFunc("GET /api/kv", s.handleKVGet)
	mux.HandleFunc("POST /api/kv", s.handleKVSet)
	mux.HandleFunc("POST /api/kv/delete", s.handleKVDelete)
	mux.HandleFunc("GET /api/files", s.handleFileList)
	mux.HandleFunc("POST /api/files/upload", s.handleFileUpload)
	mux.HandleFunc("GET /api/files/download", s.handleFileDownload)
	mux.HandleFunc("POST /api/files/delete", s.handleFileDelete)
	return mux
}

// Start begins serving on addr and returns once the listener is bound.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.httpServer = &http.Server{Handler: s.Handler()}
	go func() {
		if err := s.httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", "error", err)
		}
	}()
	s.log.Info("http server listening", "addr", listener.Addr().String())
	return nil
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sys.Status())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	if label == "" {
		writeError(w, errMissingParam("label"))
		return
	}
	if r.ContentLength < 0 {
		writeError(w, &types.Error{Kind: types.ErrKindValidation, Msg: "content length required"})
		return
	}
	report, err := s.sys.Write(label, r.ContentLength, r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Label:         label,
		BytesReceived: report.BytesReceived,
		PagesCompared: report.PagesCompared,
		PagesWritten:  report.PagesWritten,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.sys.Clear(req.Label); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	if label == "" {
		writeError(w, errMissingParam("label"))
		return
	}
	// Resolve before streaming so a bad label still gets a clean status code.
	region, err := s.sys.Registry().Find(label)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", region.Size))
	if _, err := s.sys.Download(label, w); err != nil {
		// Headers are already out; all we can do is log and cut the stream.
		s.log.Error("download aborted", "label", label, "error", err)
	}
}

func (s *Server) handleBootGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, bootResponse{
		BootTarget: s.sys.BootTarget(),
		Running:    s.sys.Running(),
	})
}

func (s *Server) handleBootSet(w http.ResponseWriter, r *http.Request) {
	var req bootRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.sys.SetBootTarget(req.Label); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bootResponse{
		BootTarget: s.sys.BootTarget(),
		Running:    s.sys.Running(),
	})
}

func (s *Server) handleKVGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	label := q.Get("label")
	if label == "" {
		writeError(w, errMissingParam("label"))
		return
	}
	namespace, key := q.Get("namespace"), q.Get("key")
	if namespace != "" && key != "" {
		entry, err := s.sys.KVGet(label, namespace, key)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
		return
	}
	entries, err := s.sys.KVList(label)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kvListResponse{Entries: entries})
}

func (s *Server) handleKVSet(w http.ResponseWriter, r *http.Request) {
	var req kvSetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	typ := types.KVType(req.Type)
	if !typ.Valid() {
		writeError(w, &types.Error{
			Kind: types.ErrKindValidation,
			Msg:  fmt.Sprintf("unknown value type code %d", req.Type),
		})
		return
	}
	if err := s.sys.KVSet(req.Label, req.Namespace, req.Key, typ, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleKVDelete(w http.ResponseWriter, r *http.Request) {
	var req kvDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.sys.KVDelete(req.Label, req.Namespace, req.Key); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleFileList(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	if label == "" {
		writeError(w, errMissingParam("label"))
		return
	}
	files, err := s.sys.FileList(label)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fileListResponse{Files: files})
}

func (s *Server) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	label, name := q.Get("label"), q.Get("name")
	if label == "" {
		writeError(w, errMissingParam("label"))
		return
	}
	if name == "" {
		writeError(w, errMissingParam("name"))
		return
	}
	if r.ContentLength < 0 {
		writeError(w, &types.Error{Kind: types.ErrKindValidation, Msg: "content length required"})
		return
	}
	if err := s.sys.FileUpload(label, name, r.ContentLength, r.Body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	label, name := q.Get("label"), q.Get("name")
	if label == "" {
		writeError(w, errMissingParam("label"))
		return
	}
	if name == "" {
		writeError(w, errMissingParam("name"))
		return
	}
	data, err := s.sys.FileDownload(label, name)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.Write(data)
}

func (s *Server) handleFileDelete(w http.ResponseWriter, r *http.Request) {
	var req fileDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.sys.FileDelete(req.Label, req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// statusFor maps an error to an HTTP status code by its kind.
func statusFor(err error) int {
	var typed *types.Error
	if !errors.As(err, &typed) {
		return http.StatusInternalServerError
	}
	switch typed.Kind {
	case types.ErrKindNotFound:
		return http.StatusNotFound
	case types.ErrKindValidation:
		return http.StatusBadRequest
	case types.ErrKindState:
		return http.StatusConflict
	case types.ErrKindResource:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func errMissingParam(name string) error {
	return &types.Error{Kind: types.ErrKindValidation, Msg: "missing query parameter " + name}
}
