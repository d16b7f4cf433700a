package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/AnuragDani/subscription-charger/internal/gateway"
)

// Rates are percentages; whatever is left over succeeds
type Rates struct {
	Pending float64 `json:"pending"`
	Fail    float64 `json:"fail"`
	Unknown float64 `json:"unknown"`
}

func (r Rates) valid() bool {
	for _, v := range []float64{r.Pending, r.Fail, r.Unknown} {
		if v < 0 || v > 100 {
			return false
		}
	}
	return r.Pending+r.Fail+r.Unknown <= 100
}

type GatewayStats struct {
	TotalRequests int `json:"total_requests"`
	Replayed      int `json:"replayed"`
	Pending       int `json:"pending"`
	Succeeded     int `json:"succeeded"`
	Failed        int `json:"failed"`
	Unknown       int `json:"unknown"`
}

type declineReason struct {
	message string
	code    string
}

var declines = []declineReason{
	{"Payment declined by issuing bank", "05"},
	{"Insufficient funds on card", "51"},
	{"Card has expired", "54"},
	{"Subscription token revoked", "R1"},
}

// MockGateway simulates a payment gateway charging subscription tokens
type MockGateway struct {
	mu           sync.Mutex
	isHealthy    bool
	rates        Rates
	responseTime time.Duration
	rng          *rand.Rand
	responses    map[string]gateway.ChargeResponse
	stats        GatewayStats
}

func NewMockGateway(rates Rates, responseTime time.Duration, seed int64) *MockGateway {
	return &MockGateway{
		isHealthy:    true,
		rates:        rates,
		responseTime: responseTime,
		rng:          rand.New(rand.NewSource(seed)),
		responses:    make(map[string]gateway.ChargeResponse),
	}
}

func (g *MockGateway) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/charge", g.charge).Methods("POST")
	r.HandleFunc("/admin/set-rates", g.setRates).Methods("POST")
	r.HandleFunc("/admin/toggle-status", g.toggleStatus).Methods("POST")
	r.HandleFunc("/admin/stats", g.getStats).Methods("GET")
	r.HandleFunc("/health", g.health).Methods("GET")
	return r
}

func (g *MockGateway) charge(w http.ResponseWriter, r *http.Request) {
	var req gateway.ChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 || req.Currency == "" || req.SubscriptionToken == "" || req.IdempotencyKey == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	time.Sleep(g.responseTime)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.stats.TotalRequests++

	// a replayed idempotency key gets the original answer
	if prev, ok := g.responses[req.IdempotencyKey]; ok {
		g.stats.Replayed++
		writeJSON(w, statusFor(prev.Status), prev)
		return
	}

	if !g.isHealthy {
		g.stats.Unknown++
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gateway temporarily unavailable"})
		return
	}

	roll := g.rng.Float64() * 100
	switch {
	case roll < g.rates.Unknown:
		g.stats.Unknown++
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "upstream bank timed out"})
		return
	case roll < g.rates.Unknown+g.rates.Fail:
		g.stats.Failed++
		reason := declines[g.rng.Intn(len(declines))]
		g.respond(w, req.IdempotencyKey, gateway.ChargeResponse{
			Status:               gateway.StatusFail,
			GatewayTransactionID: newID("gw"),
			ErrorMessage:         reason.message,
			ErrorMessageReal:     reason.code,
		})
	case roll < g.rates.Unknown+g.rates.Fail+g.rates.Pending:
		g.stats.Pending++
		g.respond(w, req.IdempotencyKey, gateway.ChargeResponse{
			Status:               gateway.StatusPending,
			GatewayTransactionID: newID("gw"),
		})
	default:
		g.stats.Succeeded++
		g.respond(w, req.IdempotencyKey, gateway.ChargeResponse{
			Status:               gateway.StatusSuccess,
			BankTransactionID:    newID("bank"),
			GatewayTransactionID: newID("gw"),
		})
	}
}

func (g *MockGateway) respond(w http.ResponseWriter, key string, resp gateway.ChargeResponse) {
	g.responses[key] = resp
	writeJSON(w, statusFor(resp.Status), resp)
}

func statusFor(status string) int {
	if status == gateway.StatusFail {
		return http.StatusPaymentRequired
	}
	return http.StatusOK
}

// Admin endpoints for testing
func (g *MockGateway) setRates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	g.mu.Lock()
	rates := g.rates
	g.mu.Unlock()

	for name, dst := range map[string]*float64{"pending": &rates.Pending, "fail": &rates.Fail, "unknown": &rates.Unknown} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid %s rate", name), http.StatusBadRequest)
			return
		}
		*dst = v
	}
	if !rates.valid() {
		http.Error(w, "Rates must be 0-100 and sum to at most 100", http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	g.rates = rates
	g.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Rates updated",
		"rates":   rates,
	})
}

func (g *MockGateway) toggleStatus(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.isHealthy = !g.isHealthy
	healthy := g.isHealthy
	g.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Gateway status toggled",
		"healthy": healthy,
	})
}

func (g *MockGateway) getStats(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	stats := g.stats
	rates := g.rates
	healthy := g.isHealthy
	g.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"is_healthy": healthy,
		"rates":      rates,
		"stats":      stats,
		"timestamp":  time.Now(),
	})
}

func (g *MockGateway) health(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	healthy := g.isHealthy
	g.mu.Unlock()

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"service":   "mock-gateway",
		"status":    status,
		"timestamp": time.Now(),
	})
}

func newID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.New().String()[:8])
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
