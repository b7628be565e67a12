package http

import "github.com/kcowger/commcare-forge-sub001/internal/pipeline"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// GenerateRequest is the request body for POST /api/v1/generate.
type GenerateRequest struct {
	Prompt   string `json:"prompt"`
	BaseName string `json:"base_name,omitempty"`
}

// RunResponse is the response body of the pipeline endpoints.
type RunResponse struct {
	Result *pipeline.Result          `json:"result,omitempty"`
	Events []pipeline.ProgressEvent `json:"events"`
	// Error is set when the run aborted.
	Error string `json:"error,omitempty"`
}
