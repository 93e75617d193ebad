package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/landrepurpose/lrp-smb/internal/domain"
	"github.com/landrepurpose/lrp-smb/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BatchSource exposes the most recent completed evaluation.
type BatchSource interface {
	Latest() (pipeline.BatchResult, bool)
}

// Server exposes health, readiness, metrics and verdict HTTP endpoints.
type Server struct {
	httpServer *http.Server
	batches    BatchSource
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// /verdicts and /parcels/{id} routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, batches BatchSource, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		batches: batches,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /verdicts", s.handleVerdicts)
	mux.HandleFunc("GET /parcels/{id}", s.handleParcel)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type parcelVerdicts struct {
	ParcelID string                     `json:"parcel_id"`
	Verdicts []domain.ComplianceVerdict `json:"verdicts,omitempty"`
	Error    string                     `json:"error,omitempty"`
}

type verdictsResponse struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Parcels    []parcelVerdicts `json:"parcels"`
}

// handleVerdicts serves the latest batch, parcels sorted by id. The optional
// parcel_id and status query parameters narrow the listing; a status filter
// drops failed parcels and parcels with no matching verdict.
func (s *Server) handleVerdicts(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.batches.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no evaluation has completed yet")
		return
	}

	q := r.URL.Query()
	parcelID := q.Get("parcel_id")
	status := domain.VerdictStatus(q.Get("status"))
	switch status {
	case "", domain.VerdictCompliant, domain.VerdictNonCompliant, domain.VerdictIndeterminate:
	default:
		writeError(w, http.StatusBadRequest, "unknown status "+string(status))
		return
	}

	resp := verdictsResponse{
		StartedAt:  batch.StartedAt,
		FinishedAt: batch.FinishedAt,
		Parcels:    []parcelVerdicts{},
	}
	for _, id := range batch.ParcelIDs() {
		if parcelID != "" && id != parcelID {
			continue
		}
		if err, failed := batch.Errors[id]; failed {
			if status == "" {
				resp.Parcels = append(resp.Parcels, parcelVerdicts{ParcelID: id, Error: err.Error()})
			}
			continue
		}
		verdicts := filterStatus(batch.Results[id].Verdicts, status)
		if status != "" && len(verdicts) == 0 {
			continue
		}
		resp.Parcels = append(resp.Parcels, parcelVerdicts{ParcelID: id, Verdicts: verdicts})
	}

	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

// handleParcel serves one parcel's full result: daily trace, period
// summaries and verdicts.
func (s *Server) handleParcel(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.batches.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no evaluation has completed yet")
		return
	}

	id := r.PathValue("id")
	if err, failed := batch.Errors[id]; failed {
		sharedobs.WriteJSON(w, http.StatusUnprocessableEntity, parcelVerdicts{ParcelID: id, Error: err.Error()})
		return
	}
	res, found := batch.Results[id]
	if !found {
		writeError(w, http.StatusNotFound, "parcel "+id+" not in latest evaluation")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

func filterStatus(verdicts []domain.ComplianceVerdict, status domain.VerdictStatus) []domain.ComplianceVerdict {
	if status == "" {
		return verdicts
	}
	var out []domain.ComplianceVerdict
	for _, v := range verdicts {
		if v.Status == status {
			out = append(out, v)
		}
	}
	return out
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
