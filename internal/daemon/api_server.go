package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chunkq/internal/api"
	"chunkq/internal/config"
	"chunkq/internal/logging"
	"chunkq/internal/push"
	"chunkq/internal/services"
)

const defaultQueueListLimit = 200

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	token := cfg.Paths.APIToken

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("GET /api/queue", authMiddleware(token, srv.handleQueueList))
	mux.HandleFunc("POST /api/queue", authMiddleware(token, srv.handleEnqueue))
	mux.HandleFunc("GET /api/chunks/{index}/{key...}", authMiddleware(token, srv.handleChunk))
	if d.hub != nil {
		ws := push.NewHandler(d.hub, time.Duration(cfg.Push.WriteTimeoutSeconds)*time.Second, logger)
		mux.HandleFunc("GET /api/ws", authMiddleware(token, ws.ServeHTTP))
	}
	mux.HandleFunc("GET /metrics", authMiddleware(token, promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}).ServeHTTP))
	srv.handler = mux
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
	}
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      st.Running,
		PID:          st.PID,
		DatabasePath: st.DatabasePath,
		LockFilePath: st.LockFilePath,
		Processors:   api.FromProcessorStatuses(st.Processors),
		Push: api.PushStatus{
			Enabled:     st.PushEnabled,
			Subscribers: st.Subscribers,
			Delivered:   st.Delivered,
			Dropped:     st.Dropped,
		},
		Checks: api.FromCheckResults(st.Checks),
	})
}

func (s *apiServer) handleQueueList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := defaultQueueListLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	rows, err := s.daemon.QueueRows(r.Context(), query.Get("index"), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Rows: api.FromRows(rows)})
}

func (s *apiServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req api.EnqueueRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rows, err := s.daemon.Enqueue(r.Context(), req.Index, req.Keys)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.EnqueueResponse{Rows: api.FromRows(rows)})
}

func (s *apiServer) handleChunk(w http.ResponseWriter, r *http.Request) {
	index := r.PathValue("index")
	key := r.PathValue("key")
	if index == "" || key == "" {
		s.writeError(w, http.StatusNotFound, "chunk not found")
		return
	}
	chunk, ok, err := s.daemon.Chunk(r.Context(), index, key)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "chunk not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.ChunkResponse{Chunk: api.FromChunk(chunk)})
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrStoreUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
