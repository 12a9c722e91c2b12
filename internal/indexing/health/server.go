package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatch/internal/alert"
	"github.com/vietddude/buywatch/internal/core/domain"
)

// TestAlerter sends operator test alerts. Implemented by *alert.Dispatcher.
type TestAlerter interface {
	TestAlert(ctx context.Context, token domain.TrackedToken, nativeAmount decimal.Decimal, channels ...string) (alert.Report, error)
}

// TestAlertRequest is the body of POST /alerts/test.
type TestAlertRequest struct {
	Chain   string          `json:"chain"`
	Token   string          `json:"token"`
	Amount  decimal.Decimal `json:"amount"`
	Channel string          `json:"channel,omitempty"`
}

// TestAlertResponse summarizes a test alert.
type TestAlertResponse struct {
	Sent     int      `json:"sent"`
	Fallback int      `json:"fallback"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	monitor *Monitor
	alerter TestAlerter
	server  *http.Server
	log     *slog.Logger
}

// NewServer creates a new health server. alerter may be nil, which disables
// POST /alerts/test.
func NewServer(monitor *Monitor, alerter TestAlerter, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		alerter: alerter,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: slog.Default().With("component", "health"),
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /alerts/test", s.handleTestAlert)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler exposes the routes for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server. It returns nil after Stop.
func (s *Server) Start() error {
	s.log.Info("health server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.Report(r.Context())

	code := http.StatusOK
	if report.SystemStatus == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Report(r.Context()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Status(r.Context()))
}

func (s *Server) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	if s.alerter == nil {
		writeError(w, http.StatusNotImplemented, errors.New("test alerts are disabled"))
		return
	}

	var req TestAlertRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	chain, err := domain.ParseChain(req.Chain)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, err := domain.NormalizeAddress(chain, req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	token := domain.TrackedToken{Chain: chain, Address: addr}
	if s.monitor.registry != nil {
		if entry, ok := s.monitor.registry.Snapshot(chain).Lookup(addr); ok {
			token = entry.Token
		} else if req.Channel == "" {
			writeError(w, http.StatusNotFound, fmt.Errorf("token %s is not tracked", token.Key()))
			return
		}
	}

	var channels []string
	if req.Channel != "" {
		channels = append(channels, req.Channel)
	}
	report, err := s.alerter.TestAlert(r.Context(), token, req.Amount, channels...)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	resp := TestAlertResponse{Sent: report.Sent, Fallback: report.Fallback, Failed: report.Failed}
	for _, e := range report.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	code := http.StatusOK
	if report.Delivered() == 0 {
		code = http.StatusBadGateway
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
