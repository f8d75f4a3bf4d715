// Package status serves read-only run progress over HTTP.
package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nftsnap/nftsnap/pkg/scheduler"
)

// ProgressSource reports the stage in flight.
type ProgressSource interface {
	Progress() scheduler.Progress
}

// Response is the body of GET /v1/progress.
type Response struct {
	RunID     string             `json:"run_id"`
	StartedAt time.Time          `json:"started_at"`
	Progress  scheduler.Progress `json:"progress"`
}

// Server exposes progress for one run.
type Server struct {
	logger    *zap.Logger
	source    ProgressSource
	runID     string
	startedAt time.Time
	server    *http.Server
}

// New builds a server; Start binds it.
func New(logger *zap.Logger, source ProgressSource, runID string) *Server {
	return &Server{
		logger:    logger.Named("status"),
		source:    source,
		runID:     runID,
		startedAt: time.Now().UTC(),
	}
}

// NewRouter returns the routes served by Start.
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/progress", s.HandleProgress).Methods(http.MethodGet)
	return r
}

// HandleHealth answers ok while the process is alive.
func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleProgress returns the current stage counters.
func (s *Server) HandleProgress(w http.ResponseWriter, _ *http.Request) {
	resp := Response{RunID: s.runID, StartedAt: s.startedAt, Progress: s.source.Progress()}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug("Unable to write progress", zap.Error(err))
	}
}

// Start listens on addr in the background and returns the bound address.
// The server shuts down when ctx is done or Shutdown is called.
func (s *Server) Start(ctx context.Context, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.server = &http.Server{Handler: s.NewRouter(), ReadHeaderTimeout: 5 * time.Second}
	s.logger.Info("Starting status server", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("Status server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()
	return ln.Addr().String(), nil
}

// Shutdown stops the server, waiting briefly for in-flight requests.
func (s *Server) Shutdown() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}
