package feeestimator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatePacket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/packetEstimate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, Request{SrcChainID: 11155420, DestChainID: 84532, MaxRecvExecGas: 200000, MaxAckExecGas: 100000}, req)

		_, _ = w.Write([]byte(`{"gasLimits": ["200000", 100000], "gasPrices": [1500000000, "1000000000"], "totalFee": "400000000000000"}`))
	}))
	defer srv.Close()

	estimate, err := NewClient(srv.URL+"/").EstimatePacket(context.Background(), Request{
		SrcChainID:     11155420,
		DestChainID:    84532,
		MaxRecvExecGas: 200000,
		MaxAckExecGas:  100000,
	})
	require.NoError(t, err)

	assert.Equal(t, "200000", estimate.GasLimits[0].String())
	assert.Equal(t, "100000", estimate.GasLimits[1].String())
	assert.Equal(t, "1500000000", estimate.GasPrices[0].String())
	assert.Equal(t, "1000000000", estimate.GasPrices[1].String())
	assert.Equal(t, "400000000000000", estimate.Total.String())
}

func TestEstimateTotalDerivedFromParts(t *testing.T) {
	estimate, err := parseEstimate([]byte(`{"gasLimits": [10, 20], "gasPrices": [3, 4]}`))
	require.NoError(t, err)
	assert.Equal(t, "110", estimate.Total.String())
}

func TestEstimateFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"malformed", http.StatusOK, `{"gasLimits": [`},
		{"missing prices", http.StatusOK, `{"gasLimits": [1, 2]}`},
		{"bad number", http.StatusOK, `{"gasLimits": ["x", 2], "gasPrices": [1, 2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).EstimatePacket(context.Background(), Request{})
			assert.ErrorIs(t, err, ErrEstimateFailed)
		})
	}
}
