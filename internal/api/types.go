package api

import (
	"aptoswarm/internal/models"
	"aptoswarm/internal/service"
	"aptoswarm/internal/worker"
)

// ==================== Wallets ====================

// ListWalletsResponse represents the registered wallets
type ListWalletsResponse struct {
	Wallets []models.Wallet `json:"wallets"`
}

// ImportWalletsResponse represents the result of a CSV import
type ImportWalletsResponse struct {
	Imported int `json:"imported"`
	Total    int `json:"total"`
}

// ==================== Tasks ====================

// ListTasksResponse represents the task queue
type ListTasksResponse struct {
	Tasks []models.Task `json:"tasks"`
}

// ==================== Runs ====================

// StartRunRequest represents a request to start a run over the registered wallets and queued tasks
type StartRunRequest struct {
	Settings models.RunSettings `json:"settings"`
}

// RunStatusResponse represents the live state of the current run
type RunStatusResponse struct {
	Running bool               `json:"running"`
	Run     *models.Run        `json:"run,omitempty"`
	Status  worker.RunSnapshot `json:"status"`
}

// ListRunsResponse represents journaled runs
type ListRunsResponse struct {
	Runs []models.Run `json:"runs"`
}

// RunHistoryResponse represents one journaled run with its results
type RunHistoryResponse struct {
	Run     models.Run          `json:"run"`
	Results []models.TaskResult `json:"results"`
}

// StopRunResponse represents the result of a stop request
type StopRunResponse struct {
	Stopped bool `json:"stopped"`
}

// ==================== Fee Estimation ====================

// EstimateFeesResponse represents the fee bound of running the queue on every wallet
type EstimateFeesResponse struct {
	service.RunEstimate
	Sufficient *bool `json:"sufficient,omitempty"`
}

// ==================== Error Response ====================

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==================== Health Check ====================

// HealthResponse represents health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Running bool   `json:"running"`
}
