package api

import (
	"github.com/starford/spotter/internal/engine"
	"github.com/starford/spotter/internal/models"
)

// SearchResult is a single search hit in the API response.
type SearchResult = engine.Result

// SearchResponse wraps search results.
type SearchResponse struct {
	Query   string         `json:"query" example:"wx" validate:"required"`
	Results []SearchResult `json:"results" validate:"required"`
}

// StatusResponse is the engine status plus the health of the event stream.
type StatusResponse struct {
	engine.Status
	DroppedEvents int64 `json:"dropped_events"`
}

// AliasesRequest is the request body for replacing the alias table.
type AliasesRequest struct {
	Aliases []models.Alias `json:"aliases" validate:"required"`
}

// AliasesResponse lists the aliases in effect.
type AliasesResponse struct {
	Aliases []models.Alias `json:"aliases" validate:"required"`
}

// ScanResponse acknowledges a scan request.
type ScanResponse struct {
	State string `json:"state" example:"scanning" validate:"required"`
}
