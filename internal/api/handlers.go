package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"aptoswarm/internal/models"
	"aptoswarm/internal/service"
	"aptoswarm/internal/tasks"
	"aptoswarm/internal/wallet"
	"aptoswarm/internal/worker"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

const maxBodySize = 4 << 20

// Handler holds dependencies for HTTP handlers
type Handler struct {
	wallets *wallet.Registry
	queue   *tasks.Queue
	runs    *worker.RunManager
	monitor *worker.StatusMonitor
	fees    *service.FeeService
	journal *service.Journal // nil when no database is configured
	logger  *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	wallets *wallet.Registry,
	queue *tasks.Queue,
	runs *worker.RunManager,
	monitor *worker.StatusMonitor,
	fees *service.FeeService,
	journal *service.Journal,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		wallets: wallets,
		queue:   queue,
		runs:    runs,
		monitor: monitor,
		fees:    fees,
		journal: journal,
		logger:  logger.Named("api"),
	}
}

// ==================== Health Check ====================

// HandleHealth returns service health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	if h.runs != nil {
		response.Running = h.runs.Running()
	}
	respondJSON(w, http.StatusOK, response)
}

// ==================== Wallets ====================

// HandleListWallets handles GET /api/v1/wallets
func (h *Handler) HandleListWallets(w http.ResponseWriter, r *http.Request) {
	list := h.wallets.List()
	response := ListWalletsResponse{Wallets: make([]models.Wallet, 0, len(list))}
	for _, wl := range list {
		response.Wallets = append(response.Wallets, *wl)
	}
	respondJSON(w, http.StatusOK, response)
}

// HandleImportWallets handles POST /api/v1/wallets/import
// Imports a wallet CSV body, replacing the registry when ?replace=true
func (h *Handler) HandleImportWallets(w http.ResponseWriter, r *http.Request) {
	if h.runs.Running() {
		respondError(w, http.StatusConflict, "Cannot change wallets while a run is in progress", nil)
		return
	}

	imported, err := wallet.ImportCSV(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid wallet file", err)
		return
	}

	replace, _ := strconv.ParseBool(r.URL.Query().Get("replace"))
	if replace {
		err = h.wallets.Replace(imported)
	} else {
		err = h.wallets.Add(imported...)
	}
	if err != nil {
		respondError(w, http.StatusConflict, "Failed to register wallets", err)
		return
	}

	h.logger.Info("Wallets imported",
		zap.Int("imported", len(imported)),
		zap.Bool("replace", replace),
		zap.Int("total", h.wallets.Len()))

	respondJSON(w, http.StatusOK, ImportWalletsResponse{Imported: len(imported), Total: h.wallets.Len()})
}

// HandleClearWallets handles DELETE /api/v1/wallets
func (h *Handler) HandleClearWallets(w http.ResponseWriter, r *http.Request) {
	if h.runs.Running() {
		respondError(w, http.StatusConflict, "Cannot change wallets while a run is in progress", nil)
		return
	}
	h.wallets.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// ==================== Tasks ====================

// HandleListTasks handles GET /api/v1/tasks
func (h *Handler) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	list := h.queue.List()
	response := ListTasksResponse{Tasks: make([]models.Task, 0, len(list))}
	for _, t := range list {
		response.Tasks = append(response.Tasks, *t)
	}
	respondJSON(w, http.StatusOK, response)
}

// HandleAddTask handles POST /api/v1/tasks
// The body is a task whose omitted fields take the module defaults
func (h *Handler) HandleAddTask(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	task, err := decodeTask(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid task", err)
		return
	}

	if err := h.queue.Add(task); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid task", err)
		return
	}

	h.logger.Info("Task queued",
		zap.String("task_id", task.TaskID.String()),
		zap.String("module", string(task.Kind)))

	respondJSON(w, http.StatusCreated, task)
}

func decodeTask(body []byte) (*models.Task, error) {
	var head struct {
		ModuleName models.ModuleKind `json:"module_name"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, err
	}
	if !head.ModuleName.Valid() {
		return nil, fmt.Errorf("unknown module_name %q", head.ModuleName)
	}

	task := models.NewTask(head.ModuleName)
	if err := json.Unmarshal(body, task); err != nil {
		return nil, err
	}
	if task.TaskID == uuid.Nil {
		task.TaskID = uuid.New()
	}
	task.Status = models.TaskStatusCreated
	task.Virtual = false
	task.ParentID = uuid.Nil
	return task, nil
}

// HandleRemoveTask handles DELETE /api/v1/tasks/{taskId}
func (h *Handler) HandleRemoveTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["taskId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid task id", err)
		return
	}
	if !h.queue.Remove(id) {
		respondError(w, http.StatusNotFound, "Task not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ==================== Runs ====================

// HandleStartRun handles POST /api/v1/runs
// Starts a run over copies of the registered wallets and the queued tasks
func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	// the run mutates wallet status, the registry keeps its own copies
	registered := h.wallets.List()
	wallets := make([]*models.Wallet, len(registered))
	for i, wl := range registered {
		c := *wl
		wallets[i] = &c
	}

	run, err := h.runs.Start(wallets, h.queue.List(), req.Settings)
	if errors.Is(err, worker.ErrRunInProgress) {
		respondError(w, http.StatusConflict, "A run is already in progress", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to start run", err)
		return
	}

	respondJSON(w, http.StatusAccepted, run)
}

// HandleStopRun handles POST /api/v1/runs/stop
func (h *Handler) HandleStopRun(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StopRunResponse{Stopped: h.runs.Stop()})
}

// HandleRunStatus handles GET /api/v1/runs/current
func (h *Handler) HandleRunStatus(w http.ResponseWriter, r *http.Request) {
	response := RunStatusResponse{
		Running: h.runs.Running(),
		Status:  h.monitor.Snapshot(),
	}
	if run, ok := h.runs.Current(); ok {
		response.Run = &run
	}
	respondJSON(w, http.StatusOK, response)
}

// HandleListRuns handles GET /api/v1/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		respondError(w, http.StatusServiceUnavailable, "Run journal is not configured", nil)
		return
	}

	limit := 50
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	runs, err := h.journal.Runs(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list runs", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}
	respondJSON(w, http.StatusOK, ListRunsResponse{Runs: runs})
}

// HandleGetRun handles GET /api/v1/runs/{runId}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		respondError(w, http.StatusServiceUnavailable, "Run journal is not configured", nil)
		return
	}

	runID, err := uuid.Parse(mux.Vars(r)["runId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid run id", err)
		return
	}

	run, results, err := h.journal.Run(r.Context(), runID)
	if err != nil {
		h.logger.Error("Failed to get run", zap.String("run_id", runID.String()), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get run", err)
		return
	}
	if run == nil {
		respondError(w, http.StatusNotFound, "Run not found", nil)
		return
	}
	if results == nil {
		results = []models.TaskResult{}
	}
	respondJSON(w, http.StatusOK, RunHistoryResponse{Run: *run, Results: results})
}

// ==================== Fee Estimation ====================

// HandleEstimateFees handles GET /api/v1/fees/estimate
// Bounds the fees of running the queue on every registered wallet. An optional
// balance_apt query parameter is checked against the per-wallet bound.
func (h *Handler) HandleEstimateFees(w http.ResponseWriter, r *http.Request) {
	if h.wallets.Len() == 0 {
		respondError(w, http.StatusBadRequest, "No wallets registered", nil)
		return
	}

	est, err := h.fees.EstimateRun(r.Context(), h.queue.List(), h.wallets.Len())
	if err != nil {
		respondError(w, http.StatusBadGateway, "Failed to estimate fees", err)
		return
	}

	response := EstimateFeesResponse{RunEstimate: *est}
	if balanceStr := r.URL.Query().Get("balance_apt"); balanceStr != "" {
		balance, err := decimal.NewFromString(balanceStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid balance_apt", err)
			return
		}
		sufficient := h.fees.ValidateBudget(est, balance) == nil
		response.Sufficient = &sufficient
	}

	respondJSON(w, http.StatusOK, response)
}

// ==================== Helper Functions ====================

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// headers are already written, an encode error cannot be reported to the client
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errorMsg := message
	if err != nil {
		errorMsg = fmt.Sprintf("%s: %v", message, err)
	}

	response := ErrorResponse{
		Error:   message,
		Message: errorMsg,
	}

	respondJSON(w, statusCode, response)
}
