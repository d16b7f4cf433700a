package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnuragDani/subscription-charger/internal/gateway"
	"github.com/AnuragDani/subscription-charger/internal/models"
)

func newServer(t *testing.T, rates Rates) (*MockGateway, *gateway.Client) {
	t.Helper()
	gw := NewMockGateway(rates, 0, 1)
	srv := httptest.NewServer(gw.Routes())
	t.Cleanup(srv.Close)
	return gw, gateway.NewClient("mock_gateway", srv.URL, time.Second)
}

func txn(key string) *models.PayTransaction {
	return &models.PayTransaction{ID: "txn-" + key, IdempotencyKey: key, Amount: 999, Currency: "USD"}
}

func TestCharge_OutcomesByRate(t *testing.T) {
	tests := []struct {
		name    string
		rates   Rates
		outcome models.Outcome
		wantErr bool
	}{
		{"success", Rates{}, models.OutcomeSuccess, false},
		{"pending", Rates{Pending: 100}, models.OutcomePending, false},
		{"fail", Rates{Fail: 100}, models.OutcomeFail, false},
		{"unknown", Rates{Unknown: 100}, models.OutcomeUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newServer(t, tt.rates)

			resp, err := client.Charge(context.Background(), txn("key-1"), "tok-1")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			require.NotNil(t, resp)
			assert.Equal(t, tt.outcome, resp.Outcome)
		})
	}
}

func TestCharge_FailCarriesDeclineDetail(t *testing.T) {
	_, client := newServer(t, Rates{Fail: 100})

	resp, err := client.Charge(context.Background(), txn("key-1"), "tok-1")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ErrorMessage)
	assert.NotEmpty(t, resp.ErrorMessageRaw)
	assert.NotEmpty(t, resp.GatewayTransactionID)
}

func TestCharge_ReplaysIdempotencyKey(t *testing.T) {
	gw, client := newServer(t, Rates{})

	first, err := client.Charge(context.Background(), txn("key-1"), "tok-1")
	require.NoError(t, err)
	second, err := client.Charge(context.Background(), txn("key-1"), "tok-1")
	require.NoError(t, err)
	third, err := client.Charge(context.Background(), txn("key-2"), "tok-1")
	require.NoError(t, err)

	assert.Equal(t, first.GatewayTransactionID, second.GatewayTransactionID)
	assert.NotEqual(t, first.GatewayTransactionID, third.GatewayTransactionID)
	assert.Equal(t, 3, gw.stats.TotalRequests)
	assert.Equal(t, 1, gw.stats.Replayed)
	assert.Equal(t, 2, gw.stats.Succeeded)
}

func TestCharge_UnhealthyGatewayIsUnknown(t *testing.T) {
	gw, client := newServer(t, Rates{})
	gw.isHealthy = false

	resp, err := client.Charge(context.Background(), txn("key-1"), "tok-1")
	assert.Error(t, err)
	assert.Equal(t, models.OutcomeUnknown, resp.Outcome)
}

func TestCharge_RejectsMissingToken(t *testing.T) {
	gw := NewMockGateway(Rates{}, 0, 1)
	srv := httptest.NewServer(gw.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/charge", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetRates(t *testing.T) {
	gw := NewMockGateway(Rates{}, 0, 1)
	srv := httptest.NewServer(gw.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/admin/set-rates?fail=40&pending=20", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, Rates{Pending: 20, Fail: 40}, gw.rates)

	resp, err = http.Post(srv.URL+"/admin/set-rates?unknown=90", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, Rates{Pending: 20, Fail: 40}, gw.rates)
}
