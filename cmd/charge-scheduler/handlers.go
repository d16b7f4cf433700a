package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AnuragDani/subscription-charger/internal/ledger"
	"github.com/AnuragDani/subscription-charger/internal/models"
	"github.com/AnuragDani/subscription-charger/internal/store"
)

const defaultLogLimit = 50

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// SubscriptionReader is the read side of the subscription store
type SubscriptionReader interface {
	GetSubscription(ctx context.Context, id string) (*models.SubscriptionItem, error)
	ListChargeLog(ctx context.Context, subscriptionItemID string, limit int) ([]models.ChargeLogEntry, error)
}

// TransactionReader is the read side of the ledger
type TransactionReader interface {
	GetTransaction(ctx context.Context, id string) (*models.PayTransaction, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler handles HTTP requests for the charge scheduler
type Handler struct {
	scheduler     *Scheduler
	subscriptions SubscriptionReader
	transactions  TransactionReader
	db            HealthChecker
	redis         HealthChecker // optional
	gatherer      prometheus.Gatherer
	logger        *slog.Logger
}

// NewHandler creates a new handler instance
func NewHandler(scheduler *Scheduler, subscriptions SubscriptionReader, transactions TransactionReader, db, redis HealthChecker, gatherer prometheus.Gatherer, logger *slog.Logger) *Handler {
	return &Handler{
		scheduler:     scheduler,
		subscriptions: subscriptions,
		transactions:  transactions,
		db:            db,
		redis:         redis,
		gatherer:      gatherer,
		logger:        logger,
	}
}

// Routes builds the admin router
func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/scheduler/status", h.GetSchedulerStatus).Methods("GET")
	r.HandleFunc("/scheduler/trigger", h.TriggerScheduler).Methods("POST")
	r.HandleFunc("/subscriptions/{id}", h.GetSubscription).Methods("GET")
	r.HandleFunc("/transactions/{id}", h.GetTransaction).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	return r
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbHealthy := h.db != nil && h.db.Ping(r.Context()) == nil

	response := map[string]interface{}{
		"service":           "charge-scheduler",
		"status":            "healthy",
		"scheduler_running": h.scheduler.IsRunning(),
		"database_healthy":  dbHealthy,
	}
	if h.redis != nil {
		response["redis_healthy"] = h.redis.Ping(r.Context()) == nil
	}

	status := http.StatusOK
	if !dbHealthy {
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, response)
}

// GetSchedulerStatus handles GET /scheduler/status
func (h *Handler) GetSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.scheduler.Status(r.Context()))
}

// TriggerScheduler handles POST /scheduler/trigger
func (h *Handler) TriggerScheduler(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.TriggerManual(r.Context())
	if errors.Is(err, ErrCycleInProgress) {
		respondError(w, http.StatusConflict, "A charge cycle is already running", "CYCLE_IN_PROGRESS")
		return
	}
	if err != nil && result == nil {
		h.logger.Error("manual charge cycle failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to run charge cycle", "TRIGGER_FAILED")
		return
	}

	response := map[string]interface{}{
		"success":           err == nil,
		"message":           "Charge cycle completed",
		"processed":         result.Processed,
		"succeeded":         result.Succeeded,
		"pending":           result.Pending,
		"failed":            result.Failed,
		"skipped":           result.Skipped,
		"errors":            result.Errors,
		"mutation_failures": result.MutationFailures,
		"duration":          result.Duration.String(),
		"items":             result.Items,
	}
	if err != nil {
		response["message"] = "Charge cycle interrupted: " + err.Error()
	}
	respondJSON(w, http.StatusOK, response)
}

// GetSubscription handles GET /subscriptions/{id}
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sub, err := h.subscriptions.GetSubscription(r.Context(), id)
	if errors.Is(err, store.ErrSubscriptionNotFound) {
		respondError(w, http.StatusNotFound, "Subscription not found", "NOT_FOUND")
		return
	}
	if err != nil {
		h.logger.Error("failed to load subscription", "subscription_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load subscription", "INTERNAL_ERROR")
		return
	}

	limit := defaultLogLimit
	if raw := r.URL.Query().Get("log_limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "log_limit must be a non-negative integer", "INVALID_REQUEST")
			return
		}
		limit = n
	}

	chargeLog, err := h.subscriptions.ListChargeLog(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("failed to load charge log", "subscription_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load charge log", "INTERNAL_ERROR")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"subscription": sub,
		"charge_log":   chargeLog,
	})
}

// GetTransaction handles GET /transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	txn, err := h.transactions.GetTransaction(r.Context(), id)
	if errors.Is(err, ledger.ErrTransactionNotFound) {
		respondError(w, http.StatusNotFound, "Transaction not found", "NOT_FOUND")
		return
	}
	if err != nil {
		h.logger.Error("failed to load transaction", "transaction_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load transaction", "INTERNAL_ERROR")
		return
	}
	respondJSON(w, http.StatusOK, txn)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message, code string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
