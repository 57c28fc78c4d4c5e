package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
	"github.com/ocd-calaccess/internal/store/sqlstore"
)

// Backend is the read side of the persisted store.
type Backend interface {
	Versions(ctx context.Context) ([]ocd.ProcessedVersion, error)
	Version(ctx context.Context, id int64) (ocd.ProcessedVersion, error)
	Files(ctx context.Context, versionID int64) ([]ocd.ProcessedFile, error)
	Person(ctx context.Context, id int64) (sqlstore.PersonRecord, error)
	Merges(ctx context.Context) ([]ocd.PersonMerge, error)
	Stats(ctx context.Context) (map[string]int, error)
}

// APIHandler serves the admin endpoints
type APIHandler struct {
	Store Backend
	Log   *logger.Logger
}

// VersionResponse is a processing run with its stage and export markers.
type VersionResponse struct {
	ocd.ProcessedVersion
	Finished bool                `json:"finished"`
	Files    []ocd.ProcessedFile `json:"files"`
}

// StatsResponse holds row counts per table.
type StatsResponse struct {
	Tables map[string]int `json:"tables"`
}

// ListVersions returns every processing run, oldest first.
func (h *APIHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.Store.Versions(r.Context())
	if err != nil {
		h.fail(w, "list versions", err)
		return
	}
	out := make([]VersionResponse, 0, len(versions))
	for _, v := range versions {
		out = append(out, VersionResponse{ProcessedVersion: v, Finished: v.Finished(), Files: []ocd.ProcessedFile{}})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetVersion returns one processing run with its markers.
func (h *APIHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := h.Store.Version(r.Context(), id)
	if err != nil {
		h.fail(w, "get version", err)
		return
	}
	files, err := h.Store.Files(r.Context(), id)
	if err != nil {
		h.fail(w, "list files", err)
		return
	}
	if files == nil {
		files = []ocd.ProcessedFile{}
	}
	writeJSON(w, http.StatusOK, VersionResponse{ProcessedVersion: v, Finished: v.Finished(), Files: files})
}

// GetPerson returns a person with its candidacies and memberships.
func (h *APIHandler) GetPerson(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.Store.Person(r.Context(), id)
	if err != nil {
		h.fail(w, "get person", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListMerges returns the merge audit trail.
func (h *APIHandler) ListMerges(w http.ResponseWriter, r *http.Request) {
	merges, err := h.Store.Merges(r.Context())
	if err != nil {
		h.fail(w, "list merges", err)
		return
	}
	if merges == nil {
		merges = []ocd.PersonMerge{}
	}
	writeJSON(w, http.StatusOK, merges)
}

// GetStats returns row counts for the graph and raw-input tables.
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.Stats(r.Context())
	if err != nil {
		h.fail(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Tables: stats})
}

func (h *APIHandler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.Log.Error("request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "Database error")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
