// Package server exposes the agent's local control surface: a loopback HTTP
// API used by the UI to enqueue mutations, read cached data and observe sync
// progress, plus a websocket feed of operation outcomes.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pathfinderhq/syncagent/internal/cache"
	apperrors "github.com/pathfinderhq/syncagent/internal/errors"
	"github.com/pathfinderhq/syncagent/internal/events"
	"github.com/pathfinderhq/syncagent/internal/logging"
	"github.com/pathfinderhq/syncagent/internal/metrics"
	"github.com/pathfinderhq/syncagent/internal/models"
	"github.com/pathfinderhq/syncagent/internal/queue"
	syncengine "github.com/pathfinderhq/syncagent/internal/sync"
)

const tenantHeader = "X-Tenant-ID"

// Server serves the local control API.
type Server struct {
	engine *syncengine.Engine
	queue  *queue.Store
	cache  *cache.Store
	hub    *Hub

	http    *http.Server
	stopHub func()
}

// New assembles the control server. The listener is not started until Start.
func New(addr string, engine *syncengine.Engine, queueStore *queue.Store, cacheStore *cache.Store, bus *events.Bus) *Server {
	s := &Server{
		engine: engine,
		queue:  queueStore,
		cache:  cacheStore,
		hub:    NewHub(bus),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/sync", s.handleSyncNow)

	r.Route("/api/operations", func(r chi.Router) {
		r.Post("/", s.handleEnqueue)
		r.Get("/", s.handleListOperations)
		r.Delete("/{id}", s.handleRemoveOperation)
	})

	r.Route("/api/cache", func(r chi.Router) {
		r.Delete("/", s.handleClearCache)
		r.Get("/{collection}", s.handleGetCache)
		r.Put("/{collection}", s.handlePutCache)
		r.Delete("/{collection}/{id}", s.handleDeleteCache)
	})

	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/ws", s.hub.Handler())

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start runs the listener until Shutdown is called. It blocks.
func (s *Server) Start() error {
	s.stopHub = s.hub.Run()
	logging.Info("control server listening", zap.String("addr", s.http.Addr))

	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the event relay.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if s.stopHub != nil {
		s.stopHub()
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleSyncNow triggers a drain pass and waits for it. Concurrent calls join
// the in-flight pass.
func (s *Server) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.SyncNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// enqueueRequest is the UI-facing shape of a new mutation.
type enqueueRequest struct {
	Kind        models.Kind     `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	TenantID    string          `json:"tenant_id"`
	UserID      string          `json:"user_id"`
	Priority    models.Priority `json:"priority"`
	MaxAttempts int             `json:"max_attempts"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "malformed request body", err))
		return
	}

	// Reject payloads that do not decode as their declared kind before they
	// become durable and unfixable.
	if _, err := models.DecodePayload(req.Kind, req.Payload); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrValidation, "payload does not match kind", err))
		return
	}

	op := &models.SyncOperation{
		Kind:        req.Kind,
		Payload:     req.Payload,
		TenantID:    req.TenantID,
		UserID:      req.UserID,
		Priority:    req.Priority,
		MaxAttempts: req.MaxAttempts,
	}
	id, err := s.engine.Enqueue(op)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id.String()})
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	var (
		ops []*models.SyncOperation
		err error
	)
	if tenantID := r.Header.Get(tenantHeader); tenantID != "" {
		ops, err = s.queue.ListTenant(tenantID)
	} else {
		ops, err = s.queue.List()
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if ops == nil {
		ops = []*models.SyncOperation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

func (s *Server) handleRemoveOperation(w http.ResponseWriter, r *http.Request) {
	id := models.UUID(chi.URLParam(r, "id"))
	if _, err := s.queue.Get(id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.queue.Remove(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetCache(w http.ResponseWriter, r *http.Request) {
	collection := models.Collection(chi.URLParam(r, "collection"))
	tenantID := r.Header.Get(tenantHeader)
	if tenantID == "" {
		writeError(w, apperrors.New(apperrors.ErrValidation, tenantHeader+" header is required"))
		return
	}

	records, err := s.cache.Get(collection, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []models.CachedRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handlePutCache(w http.ResponseWriter, r *http.Request) {
	collection := models.Collection(chi.URLParam(r, "collection"))
	tenantID := r.Header.Get(tenantHeader)
	if tenantID == "" {
		writeError(w, apperrors.New(apperrors.ErrValidation, tenantHeader+" header is required"))
		return
	}

	var records []models.CachedRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "malformed request body", err))
		return
	}
	if err := s.cache.Put(collection, tenantID, records); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"stored": len(records)})
}

func (s *Server) handleDeleteCache(w http.ResponseWriter, r *http.Request) {
	collection := models.Collection(chi.URLParam(r, "collection"))
	id := chi.URLParam(r, "id")
	tenantID := r.Header.Get(tenantHeader)
	if tenantID == "" {
		writeError(w, apperrors.New(apperrors.ErrValidation, tenantHeader+" header is required"))
		return
	}

	if err := s.cache.Delete(collection, id, tenantID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearCache clears the caller's tenant, or everything when ?all=true.
// Used on logout and tenant switch.
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		if err := s.cache.ClearAll(); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	tenantID := r.Header.Get(tenantHeader)
	if tenantID == "" {
		writeError(w, apperrors.New(apperrors.ErrValidation, tenantHeader+" header is required"))
		return
	}
	if err := s.cache.ClearTenant(tenantID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// errorResponse is the JSON shape of every error the API returns.
type errorResponse struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrInvalid, apperrors.ErrValidation, apperrors.ErrUnknownKind:
		status = http.StatusBadRequest
	case apperrors.ErrNotFound, apperrors.ErrOperationNotFound:
		status = http.StatusNotFound
	case apperrors.ErrTenantMismatch:
		status = http.StatusForbidden
	case apperrors.ErrLockHeld:
		status = http.StatusConflict
	}

	msg := err.Error()
	if appErr, ok := err.(*apperrors.AppError); ok {
		msg = appErr.Message
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode response", err)
	}
}
