package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/dto"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/override"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/processor"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/repo"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/scheduler"
)

// Settlement é o lado do scheduler usado pelos endpoints de operação
type Settlement interface {
	TriggerSettlement(ctx context.Context) (processor.Result, error)
	TriggerOverdue(ctx context.Context) (int, error)
	Status() scheduler.Status
}

type Overrider interface {
	Apply(ctx context.Context, req override.Request) (domain.AuditEntry, error)
}

type Server struct {
	log      *zap.Logger
	settle   Settlement
	override Overrider
}

func NewServer(log *zap.Logger, s Settlement, o Overrider) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{log: log, settle: s, override: o}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLog)
	r.Use(chimiddleware.Recoverer)

	r.Route("/settlement", func(r chi.Router) {
		r.Post("/run", s.runSettlement)
		r.Post("/overdue", s.runOverdue)
		r.Get("/status", s.status)
		r.Post("/legs/{id}/override", s.overrideLeg)
	})
	return r
}

// as passadas rodam até o fim mesmo se o cliente desconectar
func (s *Server) runSettlement(w http.ResponseWriter, r *http.Request) {
	res, err := s.settle.TriggerSettlement(context.WithoutCancel(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.RunResponse{
		Success:   true,
		Processed: res.Processed,
		Settled:   res.Settled,
		Failed:    res.Failed,
	})
}

func (s *Server) runOverdue(w http.ResponseWriter, r *http.Request) {
	forced, err := s.settle.TriggerOverdue(context.WithoutCancel(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.OverdueResponse{Success: true, Forced: forced})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settle.Status())
}

func (s *Server) overrideLeg(w http.ResponseWriter, r *http.Request) {
	if s.override == nil {
		writeJSON(w, http.StatusNotImplemented, dto.ErrorResponse{Error: "override disabled"})
		return
	}
	var req dto.OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}

	entry, err := s.override.Apply(r.Context(), override.Request{
		LegID:  chi.URLParam(r, "id"),
		Status: req.Status,
		Actor:  req.Actor,
		Note:   req.Note,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.OverrideResponse{
		Success: true,
		Audit: dto.AuditEntry{
			ID:                 entry.ID,
			LegID:              entry.LegID,
			WagerID:            entry.WagerID,
			Actor:              entry.Actor,
			Note:               entry.Note,
			OldSelectionStatus: string(entry.LegStatusBefore),
			NewSelectionStatus: string(entry.LegStatusAfter),
			OldBetStatus:       string(entry.WagerBefore),
			NewBetStatus:       string(entry.WagerAfter),
			CreatedAt:          entry.CreatedAt,
		},
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("settlement request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, code, dto.ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, override.ErrInvalidStatus), errors.Is(err, override.ErrMissingActor):
		return http.StatusBadRequest
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrPassInProgress),
		errors.Is(err, override.ErrNoChange),
		errors.Is(err, override.ErrWouldReopen),
		errors.Is(err, repo.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("requestId", chimiddleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
