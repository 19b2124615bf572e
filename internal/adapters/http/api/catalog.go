package api

import (
	"net/http"

	"github.com/okian/reputation/internal/domain/types"
)

// CatalogDependencies exposes the aspect catalog.
type CatalogDependencies interface {
	GetCatalog() types.CatalogView
}

// CatalogHandler handles catalog requests.
type CatalogHandler struct {
	deps CatalogDependencies
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(deps CatalogDependencies) *CatalogHandler {
	return &CatalogHandler{deps: deps}
}

// HandleGetCatalog handles GET /catalog.
func (h *CatalogHandler) HandleGetCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.GetCatalog())
}
