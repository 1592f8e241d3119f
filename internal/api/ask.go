package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/warechat/warechat/internal/format"
	"github.com/warechat/warechat/internal/nl2sql"
	"github.com/warechat/warechat/internal/pipeline"
)

type askRequest struct {
	Question string        `json:"question"`
	History  []nl2sql.Turn `json:"history"`
}

type askResponse struct {
	Question        string                `json:"question"`
	GeneratedSQL    string                `json:"generated_sql"`
	DisplaySQL      string                `json:"display_sql"`
	Result          *format.DisplayResult `json:"result"`
	Summary         string                `json:"summary,omitempty"`
	TokensUsed      int                   `json:"tokens_used"`
	ExecutionTimeMs int64                 `json:"execution_time_ms"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAskRequest(w, r)
	if !ok {
		return
	}

	result := deps.Pipeline.Run(r.Context(), req.Question, req.History)
	if result.Failed() {
		writePipelineError(r.Context(), w, result)
		return
	}
	writeJSON(w, http.StatusOK, askResponse{
		Question:        result.Question,
		GeneratedSQL:    result.GeneratedSQL,
		DisplaySQL:      result.DisplaySQL,
		Result:          result.Outcome,
		Summary:         result.Summary,
		TokensUsed:      result.TokensUsed,
		ExecutionTimeMs: result.ExecutionTime.Milliseconds(),
	})
}

func decodeAskRequest(w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid JSON", false, nil)
		return askRequest{}, false
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "question is required", false, nil)
		return askRequest{}, false
	}
	return req, true
}

func writePipelineError(ctx context.Context, w http.ResponseWriter, result pipeline.Result) {
	switch result.ErrorKind {
	case pipeline.KindUnsafe:
		writeError(ctx, w, http.StatusUnprocessableEntity, "UNSAFE_QUERY", result.ErrorMessage, false, map[string]any{
			"generated_sql": result.GeneratedSQL,
		})
	case pipeline.KindGeneration:
		writeError(ctx, w, http.StatusBadGateway, "GENERATION_FAILED", result.ErrorMessage, true, nil)
	case pipeline.KindExecution:
		writeError(ctx, w, http.StatusBadGateway, "EXECUTION_FAILED", result.ErrorMessage, true, map[string]any{
			"execution_time_ms": result.ExecutionTime.Milliseconds(),
		})
	default:
		writeError(ctx, w, http.StatusInternalServerError, "PIPELINE_FAILED", result.ErrorMessage, true, nil)
	}
}
