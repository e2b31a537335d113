package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/spotter/internal/apperr"
	"github.com/starford/spotter/internal/engine"
	"github.com/starford/spotter/internal/models"
	"github.com/starford/spotter/internal/settings"
)

// Engine is the part of the search engine the API serves.
type Engine interface {
	Search(text string) []engine.Result
	Status() engine.Status
	Rescan(ctx context.Context) error
	CancelScan()
}

// SettingsStore persists settings and aliases.
type SettingsStore interface {
	Current() settings.Settings
	Save(s settings.Settings) error
	Aliases() []models.Alias
	SaveAliases(aliases []models.Alias) error
}

// DropCounter reports how many notifications the event stream dropped.
type DropCounter interface {
	Dropped() int64
}

// Handler holds API route handlers.
type Handler struct {
	eng    Engine
	cfg    SettingsStore
	events DropCounter
}

// NewHandler creates a new Handler.
func NewHandler(eng Engine, cfg SettingsStore) *Handler {
	return &Handler{eng: eng, cfg: cfg}
}

// Search handles GET /api/search.
//
//	@Summary		Ranked search over applications, folders and files
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	false	"Search query; empty gives no results"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	results := h.eng.Search(q)
	if results == nil {
		results = []SearchResult{}
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: q, Results: results})
}

// Status handles GET /api/status.
//
//	@Summary		Engine state and index counts
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{Status: h.eng.Status()}
	if h.events != nil {
		resp.DroppedEvents = h.events.Dropped()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Rescan handles POST /api/rescan.
//
//	@Summary		Clear the index and scan all scopes again
//	@Tags			index
//	@Produce		json
//	@Success		202	{object}	ScanResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rescan [post]
func (h *Handler) Rescan(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Rescan(r.Context()); err != nil {
		writeEngineError(w, "rescan", err)
		return
	}
	writeJSON(w, http.StatusAccepted, ScanResponse{State: h.eng.Status().State})
}

// CancelScan handles POST /api/rescan/cancel.
//
//	@Summary		Stop the scan in flight and index what was scanned
//	@Tags			index
//	@Produce		json
//	@Success		202	{object}	ScanResponse
//	@Security		BearerAuth
//	@Router			/rescan/cancel [post]
func (h *Handler) CancelScan(w http.ResponseWriter, _ *http.Request) {
	h.eng.CancelScan()
	writeJSON(w, http.StatusAccepted, ScanResponse{State: h.eng.Status().State})
}

// GetSettings handles GET /api/settings.
//
//	@Summary		Current index settings
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	settings.Settings
//	@Security		BearerAuth
//	@Router			/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Current())
}

// PutSettings handles PUT /api/settings. Saving triggers a fresh scan.
//
//	@Summary		Replace index settings
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		settings.Settings	true	"New settings"
//	@Success		200		{object}	settings.Settings
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings [put]
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var s settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := s.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.cfg.Save(s); err != nil {
		slog.Error("save settings failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, h.cfg.Current())
}

// GetAliases handles GET /api/aliases.
//
//	@Summary		List aliases
//	@Tags			aliases
//	@Produce		json
//	@Success		200	{object}	AliasesResponse
//	@Security		BearerAuth
//	@Router			/aliases [get]
func (h *Handler) GetAliases(w http.ResponseWriter, _ *http.Request) {
	aliases := h.cfg.Aliases()
	if aliases == nil {
		aliases = []models.Alias{}
	}
	writeJSON(w, http.StatusOK, AliasesResponse{Aliases: aliases})
}

// PutAliases handles PUT /api/aliases.
//
//	@Summary		Replace the alias table
//	@Tags			aliases
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AliasesRequest	true	"New aliases"
//	@Success		200		{object}	AliasesResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/aliases [put]
func (h *Handler) PutAliases(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req AliasesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.cfg.SaveAliases(req.Aliases); err != nil {
		if errors.Is(err, apperr.ErrInvalid) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		slog.Error("save aliases failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, AliasesResponse{Aliases: h.cfg.Aliases()})
}

func writeEngineError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, apperr.ErrStopped) || errors.Is(err, context.Canceled) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("engine unavailable"))
		return
	}
	slog.Error(op+" failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}
