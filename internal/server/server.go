package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiolibrelab/looprec/internal/audio"
	"github.com/audiolibrelab/looprec/internal/metrics"
	"github.com/audiolibrelab/looprec/internal/session"
	"github.com/audiolibrelab/looprec/internal/ui"
)

// Server is the HTTP remote control for a session controller
type Server struct {
	controller *session.Controller
	backend    audio.Backend
	addr       string
}

// ActionResponse is returned by every control endpoint
type ActionResponse struct {
	Success  bool            `json:"success"`
	Error    string          `json:"error,omitempty"`
	State    session.UIState `json:"state"`
	Controls ui.Controls     `json:"controls"`
}

// SourcesResponse represents the JSON response for sources endpoint
type SourcesResponse struct {
	Backend string   `json:"backend"`
	Sources []string `json:"sources"`
}

func New(controller *session.Controller, backend audio.Backend, addr string) *Server {
	return &Server{
		controller: controller,
		backend:    backend,
		addr:       addr,
	}
}

// Handler returns the routes of the remote control
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.instrument("index", s.handleIndex))
	mux.HandleFunc("/record", s.instrument("record", s.post(s.controller.PressRecord)))
	mux.HandleFunc("/playpause", s.instrument("playpause", s.post(s.controller.TogglePlayPause)))
	mux.HandleFunc("/stop", s.instrument("stop", s.post(s.controller.StopPlayback)))
	mux.HandleFunc("/status", s.instrument("status", s.handleStatus))
	mux.HandleFunc("/sources", s.instrument("sources", s.handleSources))
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	_, port, err := net.SplitHostPort(s.addr)
	if err != nil {
		return errors.Wrapf(err, "invalid server address %q", s.addr)
	}

	slog.Info("Starting looprec web server",
		"addr", s.addr,
		"local_url", fmt.Sprintf("http://%s:%s", getLocalIP(), port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
		slog.Info("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)
		metrics.HTTPRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(rec.code)).Inc()
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
		"success": false,
		"error":   "Method not allowed",
	})
}

// statusCode maps controller errors onto HTTP status codes
func statusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrNoDataCollected), errors.Is(err, session.ErrNoRecording):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// post wraps a controller operation as a POST endpoint
func (s *Server) post(op func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}

		err := op(r.Context())
		state := s.controller.State()
		resp := ActionResponse{
			Success:  err == nil,
			State:    state,
			Controls: ui.Project(state),
		}
		if err != nil {
			resp.Error = err.Error()
			slog.Debug("Control request failed", "path", r.URL.Path, "error", err)
		}
		writeJSON(w, statusCode(err), resp)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, newStatusMessage(s.controller.State()))
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	sources, err := s.backend.ListSources()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, SourcesResponse{Backend: string(s.backend.GetType()), Sources: sources})
}

// handleIndex serves the four-button remote control page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(indexHTML))
}

// getLocalIP returns the local IP address for network access
func getLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
