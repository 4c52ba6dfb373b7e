package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/burnwatch/burnwatch/internal/recorder"
	"github.com/burnwatch/burnwatch/internal/scheduler"
	"github.com/burnwatch/burnwatch/internal/slo"
	"github.com/burnwatch/burnwatch/internal/storage"
)

// Server is the operational HTTP surface: health probes, sample
// ingestion, and read-only views of alerts and budget state.
type Server struct {
	scheduler *scheduler.Scheduler
	store     storage.Store
	recorder  *recorder.Recorder
	logger    logrus.FieldLogger
	server    *http.Server
}

// NewServer creates the ops API server.
func NewServer(sched *scheduler.Scheduler, store storage.Store, rec *recorder.Recorder, addr string, logger logrus.FieldLogger) *Server {
	s := &Server{
		scheduler: sched,
		store:     store,
		recorder:  rec,
		logger:    logger,
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	// Ingestion
	mux.HandleFunc("/v1/samples", s.handleSamples)

	// Read-only views
	mux.HandleFunc("/v1/alerts", s.handleAlerts)
	mux.HandleFunc("/v1/state", s.handleState)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.loggingMiddleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("starting ops api")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down ops api")
	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady handles GET /readyz. Readiness fails when the datastore
// is unreachable or the last tick saw persistence failures, because
// suppression and dedup decisions cannot be made safely then.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ready := true
	reasons := []string{}

	if err := s.store.Ping(r.Context()); err != nil {
		ready = false
		reasons = append(reasons, fmt.Sprintf("datastore unreachable: %v", err))
	}
	if !s.scheduler.Healthy() {
		ready = false
		reasons = append(reasons, "last evaluation tick had failures")
	}
	if s.scheduler.Cache().Size() == 0 {
		reasons = append(reasons, "no evaluations cached yet")
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:       ready,
		PairsLoaded: s.scheduler.Cache().Size(),
		Reasons:     reasons,
	})
}

// handleSamples handles POST /v1/samples
func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid sample: %v", err))
		return
	}
	if req.Service == "" || req.Metric == "" {
		respondError(w, http.StatusBadRequest, "service and metric are required")
		return
	}

	sample := recorder.Sample{
		Service: req.Service,
		Metric:  slo.MetricKind(req.Metric),
		Value:   req.Value,
	}
	if req.Timestamp != nil {
		sample.Timestamp = *req.Timestamp
	}

	var err error
	if req.MetSLO != nil {
		err = s.recorder.RecordOutcome(r.Context(), sample, *req.MetSLO)
	} else {
		err = s.recorder.Record(r.Context(), sample)
	}
	if err != nil {
		switch {
		case errors.Is(err, slo.ErrNotFound):
			respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, recorder.ErrNeedsClassification):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// handleAlerts handles GET /v1/alerts
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	alerts, err := s.store.ListActiveAlerts(r.Context(), r.URL.Query().Get("service"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list alerts: %v", err))
		return
	}

	resp := AlertsResponse{Alerts: make([]AlertResponse, 0, len(alerts))}
	for _, a := range alerts {
		resp.Alerts = append(resp.Alerts, AlertResponse{
			ID:                     a.ID,
			Service:                a.Service,
			Metric:                 a.Metric,
			WindowMinutes:          a.WindowMinutes,
			Severity:               string(a.Severity),
			BurnRateMultiple:       a.BurnRateMultiple,
			BudgetRemainingPercent: a.BudgetRemainingPercent,
			EscalationRequired:     a.EscalationRequired,
			Suppressed:             a.Suppressed,
			SuppressionReason:      a.SuppressionReason,
			CreatedAt:              a.CreatedAt,
			ResolvedAt:             a.ResolvedAt,
			ResolutionNote:         a.ResolutionNote,
			EscalatedAt:            a.EscalatedAt,
		})
	}
	resp.Total = len(resp.Alerts)

	respondJSON(w, http.StatusOK, resp)
}

// handleState handles GET /v1/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	states, err := s.store.ListPairStates(r.Context(), r.URL.Query().Get("service"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list states: %v", err))
		return
	}

	resp := StateResponse{States: make([]PairStateResponse, 0, len(states))}
	for _, st := range states {
		resp.States = append(resp.States, PairStateResponse{
			Service:                st.Service,
			Metric:                 string(st.Metric),
			BudgetRemainingPercent: st.BudgetRemainingPercent,
			BurnRates:              st.BurnRates,
			NoData:                 st.NoData,
			EvaluatedAt:            st.EvaluatedAt,
		})
	}

	respondJSON(w, http.StatusOK, resp)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("request")
	})
}
