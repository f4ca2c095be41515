package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"notekeeper-zipjobs/internal/attachments"
	"notekeeper-zipjobs/internal/config"
	"notekeeper-zipjobs/internal/logging"
	"notekeeper-zipjobs/internal/models"
	"notekeeper-zipjobs/internal/queue"
	"notekeeper-zipjobs/internal/ratelimit"
	"notekeeper-zipjobs/internal/store"
	"notekeeper-zipjobs/internal/telemetry"
	"notekeeper-zipjobs/internal/zipjobs"
)

// Limiter rations zip submissions per tenant.
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// PoisonReader lists messages the worker gave up on.
type PoisonReader interface {
	PoisonPeek(ctx context.Context, count int64) ([]queue.Poisoned, error)
}

// Deps are the collaborators behind the HTTP surface. Limiter and Poison
// are optional.
type Deps struct {
	Entities    store.EntityStore
	Attachments *attachments.Service
	Submitter   *zipjobs.Submitter
	Results     *zipjobs.Results
	Limiter     Limiter
	Poison      PoisonReader
	Log         logging.Logger
}

// Server wires HTTP handlers for the entity, attachment and zip job API.
type Server struct {
	cfg         config.Config
	entities    store.EntityStore
	attachments *attachments.Service
	submitter   *zipjobs.Submitter
	results     *zipjobs.Results
	limiter     Limiter
	poison      PoisonReader
	log         logging.Logger
}

// New constructs the API server.
func New(cfg config.Config, d Deps) *Server {
	return &Server{
		cfg:         cfg,
		entities:    d.Entities,
		attachments: d.Attachments,
		submitter:   d.Submitter,
		results:     d.Results,
		limiter:     d.Limiter,
		poison:      d.Poison,
		log:         d.Log.With("component", "api"),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/entities", s.handleCreateEntity)
	r.Get("/entities", s.handleListEntities)
	r.Route("/entities/{entityId}", func(r chi.Router) {
		r.Use(requireEntityID)
		r.Get("/", s.handleGetEntity)
		r.Delete("/", s.handleDeleteEntity)

		r.Route("/attachments", func(r chi.Router) {
			r.Use(s.requireEntity)
			r.Get("/", s.handleListAttachments)
			r.Put("/{name}", s.handlePutAttachment)
			r.Get("/{name}", s.handleGetAttachment)
			r.Delete("/{name}", s.handleDeleteAttachment)
		})

		r.Post("/zipjobs", s.handleSubmitZipJob)
		r.Get("/zipjobs", s.handleListZipJobs)
		r.Get("/zipjobs/{jobId}", s.handleGetZipJob)

		r.Get("/results", s.handleListResults)
		r.Get("/results/{jobId}", s.handleDownloadResult)
		r.Delete("/results/{jobId}", s.handleDeleteResult)
	})

	r.Get("/poison", s.handlePoison)
	return r
}

// requireEntityID rejects malformed entity ids with 400 before any lookup.
func requireEntityID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "entityId")
		if !models.ValidEntityID(id) {
			writeError(w, http.StatusBadRequest, ErrorResponse{
				ErrorNumber:      ErrorInvalidIdentifier,
				ErrorDescription: "entityId must be a UUID",
				ParameterName:    "entityId",
				ParameterValue:   id,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireEntity answers 404 for entities that do not exist.
func (s *Server) requireEntity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "entityId")
		ok, err := s.entities.EntityExists(r.Context(), id)
		if err != nil {
			s.writeErr(r.Context(), w, err, "entityId", id)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, ErrorResponse{
				ErrorNumber:      ErrorNotFound,
				ErrorDescription: "entity not found",
				ParameterName:    "entityId",
				ParameterValue:   id,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePoison(w http.ResponseWriter, r *http.Request) {
	if s.poison == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []queue.Poisoned{}})
		return
	}
	items, err := s.poison.PoisonPeek(r.Context(), 100)
	if err != nil {
		s.writeErr(r.Context(), w, err, "", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func tenantFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Tenant-ID"); v != "" {
		return v
	}
	return "default"
}

func rateLimitKey(tenant string) string {
	return fmt.Sprintf("rl:zipjobs:%s", tenant)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
