package feeestimator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
	"github.com/tidwall/gjson"
)

var ErrEstimateFailed = errors.New("fee estimation failed")

type (
	// Request is the body of a packet fee estimate.
	Request struct {
		SrcChainID     uint64 `json:"srcChainId"`
		DestChainID    uint64 `json:"destChainId"`
		MaxRecvExecGas uint64 `json:"maxRecvExecGas"`
		MaxAckExecGas  uint64 `json:"maxAckExecGas"`
	}

	// Estimate holds recv and ack gas parameters, in that order, and the
	// total fee to attach to the send transaction.
	Estimate struct {
		GasLimits [2]*big.Int
		GasPrices [2]*big.Int
		Total     *big.Int
		Raw       string
	}
)

// Client queries the relayer fee estimation service.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.Named("fee_estimator"),
	}
}

// EstimatePacket posts req to /v2/packetEstimate.
func (c *Client) EstimatePacket(ctx context.Context, req Request) (*Estimate, error) {
	url := c.baseURL + "/v2/packetEstimate"
	c.logger.
		With("url", url).
		With("src_chain_id", req.SrcChainID).
		With("dest_chain_id", req.DestChainID).
		Info("requesting packet fee estimate")

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal estimate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrEstimateFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEstimateFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrEstimateFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrEstimateFailed, resp.StatusCode)
	}

	estimate, err := parseEstimate(respBody)
	if err != nil {
		return nil, err
	}

	c.logger.With("total", estimate.Total.String()).Info("packet fee estimated")

	return estimate, nil
}

func parseEstimate(body []byte) (*Estimate, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed response", ErrEstimateFailed)
	}
	result := gjson.ParseBytes(body)

	estimate := &Estimate{Raw: string(body)}
	for i := range 2 {
		limit, err := bigField(result, fmt.Sprintf("gasLimits.%d", i))
		if err != nil {
			return nil, err
		}
		price, err := bigField(result, fmt.Sprintf("gasPrices.%d", i))
		if err != nil {
			return nil, err
		}
		estimate.GasLimits[i] = limit
		estimate.GasPrices[i] = price
	}

	if total := result.Get("totalFee"); total.Exists() {
		n, ok := new(big.Int).SetString(total.String(), 10)
		if !ok {
			return nil, fmt.Errorf("%w: invalid totalFee %q", ErrEstimateFailed, total.String())
		}
		estimate.Total = n
		return estimate, nil
	}

	estimate.Total = new(big.Int)
	for i := range 2 {
		estimate.Total.Add(estimate.Total, new(big.Int).Mul(estimate.GasLimits[i], estimate.GasPrices[i]))
	}
	return estimate, nil
}

// bigField reads a decimal number that may be encoded as a JSON string or number.
func bigField(result gjson.Result, path string) (*big.Int, error) {
	field := result.Get(path)
	if !field.Exists() {
		return nil, fmt.Errorf("%w: response has no %s", ErrEstimateFailed, path)
	}

	raw := field.String()
	if field.Type == gjson.Number {
		raw = field.Raw
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid %s %q", ErrEstimateFailed, path, raw)
	}
	return n, nil
}
