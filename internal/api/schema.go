package api

import (
	"net/http"

	"github.com/warechat/warechat/internal/observability"
)

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	catalog, err := deps.Schemas.Snapshot(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, catalog.Summarize())
}

func handleSchemaReload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	catalog, err := deps.Schemas.ForceReload(r.Context())
	if err != nil {
		observability.ObserveSchemaReload(false)
		writeError(r.Context(), w, http.StatusBadGateway, "SCHEMA_RELOAD_FAILED", err.Error(), true, nil)
		return
	}
	observability.ObserveSchemaReload(true)
	writeJSON(w, http.StatusOK, catalog.Summarize())
}
