package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	domainerrors "jubilee/contexts/rewards-core/reward-engine/domain/errors"

	"github.com/shopspring/decimal"
)

var weiPerGwei = decimal.NewFromInt(1_000_000_000)

// FeeOracle reads the network fee price from a JSON-RPC node.
type FeeOracle struct {
	rpcURL     string
	httpClient *http.Client
}

func NewFeeOracle(rpcURL string) *FeeOracle {
	return &FeeOracle{
		rpcURL:     strings.TrimSpace(rpcURL),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GasPriceGwei returns the node's current gas price converted from hex wei.
func (o *FeeOracle) GasPriceGwei(ctx context.Context) (decimal.Decimal, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "eth_gasPrice",
		Params:  []any{},
		ID:      1,
	})
	if err != nil {
		return decimal.Zero, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.rpcURL, bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domainerrors.ErrPriceOracleFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: status %d", domainerrors.ErrPriceOracleFailure, resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode response: %v", domainerrors.ErrPriceOracleFailure, err)
	}
	if decoded.Error != nil {
		return decimal.Zero, fmt.Errorf("%w: rpc error %d: %s",
			domainerrors.ErrPriceOracleFailure, decoded.Error.Code, decoded.Error.Message)
	}

	hexValue := strings.TrimPrefix(strings.TrimSpace(decoded.Result), "0x")
	wei, ok := new(big.Int).SetString(hexValue, 16)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: malformed gas price %q", domainerrors.ErrPriceOracleFailure, decoded.Result)
	}
	return decimal.NewFromBigInt(wei, 0).Div(weiPerGwei), nil
}
