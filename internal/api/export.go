package api

import (
	"net/http"

	"github.com/warechat/warechat/internal/export"
)

// handleExport runs the full pipeline for the question and returns the
// result as a parquet file. With an uploader configured the file goes to
// the object store and the response carries its key; otherwise the bytes
// are returned inline.
func handleExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAskRequest(w, r)
	if !ok {
		return
	}

	result := deps.Pipeline.Run(r.Context(), req.Question, req.History)
	if result.Failed() {
		writePipelineError(r.Context(), w, result)
		return
	}
	if result.Outcome == nil || len(result.Outcome.Columns) == 0 {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "NOTHING_TO_EXPORT", "query produced no columns", false, nil)
		return
	}

	data, err := export.Parquet(*result.Outcome)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", err.Error(), true, nil)
		return
	}

	if deps.Exporter != nil {
		info, err := deps.Exporter.Upload(r.Context(), "result", data)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadGateway, "EXPORT_UPLOAD_FAILED", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"key":       info.Key,
			"size":      info.Size,
			"row_count": result.Outcome.RowCount,
		})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition", `attachment; filename="result.parquet"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
