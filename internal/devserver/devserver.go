// Package devserver is an in-memory reference implementation of the remote
// API the engine syncs against. It exists for development and end-to-end
// tests: versioned records per entity kind, optimistic-lock rejection with
// the current copy in the 409 body, and incremental reads via ?since.
package devserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/outletpos/syncengine/internal/logging"
	"github.com/outletpos/syncengine/internal/models"
)

type record struct {
	data      map[string]any
	updatedAt time.Time
}

// Server holds the in-memory records and serves the wire contract.
type Server struct {
	mu      sync.Mutex
	records map[models.EntityKind]map[string]*record
	log     logging.Logger
}

// NewServer returns an empty server.
func NewServer(log logging.Logger) *Server {
	if log == nil {
		log = logging.NewDiscardLogger()
	}
	return &Server{
		records: make(map[models.EntityKind]map[string]*record),
		log:     log,
	}
}

// Routes returns the HTTP handler:
//
//	GET    /health
//	GET    /{kind}?since=...&outletId=...
//	POST   /{kind}
//	PUT    /{kind}/{id}
//	DELETE /{kind}/{id}
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/{kind}", func(r chi.Router) {
		r.Use(s.kindCtx)
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
		r.Get("/{id}", s.handleGet)
	})

	return r
}

// Seed inserts a record directly, bypassing the HTTP surface. Intended for
// tests and local fixtures; the record gets version 1 and a current
// timestamp unless the payload already carries a version.
func (s *Server) Seed(kind models.EntityKind, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, _ := data["id"].(string)
	if id == "" {
		return
	}
	if _, ok := data["version"]; !ok {
		data["version"] = float64(1)
	}
	now := time.Now()
	data["updatedAt"] = now.UTC().Format(time.RFC3339Nano)

	s.bucket(kind)[id] = &record{data: data, updatedAt: now}
}

func (s *Server) kindCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := models.ParseEntityKind(chi.URLParam(r, "kind")); err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown entity kind"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	kind := models.EntityKind(chi.URLParam(r, "kind"))

	data, id, ok := decodeBody(w, r)
	if !ok {
		return
	}
	if id == "" {
		// Offline-first clients bring their own ids, but plain REST
		// consumers may not.
		id = uuid.NewString()
		data["id"] = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.bucket(kind)
	if existing, ok := bucket[id]; ok {
		// Duplicate create: the caller's copy diverged, hand back ours.
		writeJSON(w, http.StatusConflict, existing.data)
		return
	}

	now := time.Now()
	data["version"] = float64(1)
	data["updatedAt"] = now.UTC().Format(time.RFC3339Nano)
	bucket[id] = &record{data: data, updatedAt: now}

	s.log.Debug(r.Context(), "record created", "kind", kind, "id", id)
	writeJSON(w, http.StatusCreated, data)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	kind := models.EntityKind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")

	data, _, ok := decodeBody(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.bucket(kind)
	existing, found := bucket[id]
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	force := r.Header.Get("X-Force-Update") == "true"
	if !force && staleVersion(data, existing.data) {
		writeJSON(w, http.StatusConflict, existing.data)
		return
	}

	now := time.Now()
	data["id"] = id
	data["version"] = versionOf(existing.data) + 1
	data["updatedAt"] = now.UTC().Format(time.RFC3339Nano)
	bucket[id] = &record{data: data, updatedAt: now}

	s.log.Debug(r.Context(), "record updated", "kind", kind, "id", id, "forced", force)
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind := models.EntityKind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	delete(s.bucket(kind), id)
	s.mu.Unlock()

	// Idempotent: deleting a record that is already gone succeeds.
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	kind := models.EntityKind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	rec, ok := s.bucket(kind)[id]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec.data)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	kind := models.EntityKind(chi.URLParam(r, "kind"))

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid since"})
			return
		}
		since = t
	}
	outletID := r.URL.Query().Get("outletId")

	s.mu.Lock()
	out := make([]map[string]any, 0)
	for _, rec := range s.bucket(kind) {
		if !since.IsZero() && !rec.updatedAt.After(since) {
			continue
		}
		if outletID != "" {
			if v, _ := rec.data["outletId"].(string); v != outletID {
				continue
			}
		}
		out = append(out, rec.data)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

// bucket returns the per-kind record map, creating it on first use. Callers
// hold s.mu.
func (s *Server) bucket(kind models.EntityKind) map[string]*record {
	if s.records[kind] == nil {
		s.records[kind] = make(map[string]*record)
	}
	return s.records[kind]
}

// staleVersion reports whether the incoming payload carries a version that
// no longer matches the stored record. Payloads without a version are
// accepted as-is.
func staleVersion(incoming, current map[string]any) bool {
	raw, ok := incoming["version"]
	if !ok {
		return false
	}
	v, ok := raw.(float64)
	if !ok {
		return false
	}
	return v != versionOf(current)
}

func versionOf(data map[string]any) float64 {
	v, _ := data["version"].(float64)
	return v
}

func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, string, bool) {
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return nil, "", false
	}
	id, _ := data["id"].(string)
	return data, id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
