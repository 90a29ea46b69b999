package rest

import "yqhp/tilegraph/pkg/types"

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// RunListResponse lists the known runs.
type RunListResponse struct {
	Runs  []*types.RunReport `json:"runs"`
	Total int                `json:"total"`
}
