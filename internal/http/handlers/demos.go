package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/usmanalidev/demo-agent-ai/internal/catalog"
)

// DemosHandler lists the walkthroughs in the catalog.
type DemosHandler struct {
	catalog *catalog.Catalog
}

func NewDemosHandler(c *catalog.Catalog) *DemosHandler {
	if c == nil {
		c = catalog.Default()
	}
	return &DemosHandler{catalog: c}
}

// List handles GET /demos.
func (h *DemosHandler) List(w http.ResponseWriter, r *http.Request) {
	demos := h.catalog.Demos()
	if demos == nil {
		demos = []catalog.Demo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"demos": demos})
}

// Get handles GET /demos/{feature}.
func (h *DemosHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, ok := h.catalog.Demo(chi.URLParam(r, "feature"))
	if !ok {
		jsonError(w, "demo not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
