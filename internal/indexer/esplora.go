package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/rgbwallet/rgbwallet/internal/config"
	"github.com/rgbwallet/rgbwallet/internal/httpx"
)

// esploraTxResponse is the subset of Esplora's GET /tx/<txid> response the
// core needs: confirmation status and whether the sole input is coinbase.
type esploraTxResponse struct {
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
	Vin []struct {
		IsCoinbase bool `json:"is_coinbase"`
	} `json:"vin"`
}

// EsploraIndexer is the Blockstream-Esplora-flavored indexer variant.
type EsploraIndexer struct {
	client  *http.Client
	rl      *httpx.RateLimiter
	cb      *httpx.CircuitBreaker
	baseURL string
}

// NewEsploraIndexer builds an indexer client against a Blockstream-style Esplora API.
func NewEsploraIndexer(client *http.Client, baseURL string) *EsploraIndexer {
	if client == nil {
		client = &http.Client{Timeout: config.IndexerTimeout}
	}
	return &EsploraIndexer{
		client:  client,
		rl:      httpx.NewRateLimiter("esplora", config.RateLimitIndexer),
		cb:      httpx.NewCircuitBreaker("esplora", config.CircuitBreakerThreshold, config.CircuitBreakerCooldown),
		baseURL: baseURL,
	}
}

func (e *EsploraIndexer) Name() string { return "Esplora" }

func (e *EsploraIndexer) BlockZeroHash(ctx context.Context) (string, error) {
	return e.getString(ctx, "/block-height/0")
}

// chainTipHeight is used to derive confirmation count from a tx's block height,
// Esplora's /tx endpoint doesn't report confirmations directly.
func (e *EsploraIndexer) chainTipHeight(ctx context.Context) (int64, error) {
	s, err := e.getString(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	var height int64
	if _, err := fmt.Sscanf(s, "%d", &height); err != nil {
		return 0, fmt.Errorf("parse chain tip height %q: %w", s, err)
	}
	return height, nil
}

func (e *EsploraIndexer) TxStatus(ctx context.Context, txid string) (TxStatus, error) {
	if !e.cb.Allow() {
		return TxStatus{}, fmt.Errorf("esplora circuit open")
	}
	if err := e.rl.Wait(ctx); err != nil {
		return TxStatus{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/tx/"+txid, nil)
	if err != nil {
		return TxStatus{}, fmt.Errorf("build tx status request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.cb.RecordFailure()
		return TxStatus{}, fmt.Errorf("esplora tx status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		e.cb.RecordSuccess()
		return TxStatus{}, ErrTxNotFound
	}
	if resp.StatusCode != http.StatusOK {
		e.cb.RecordFailure()
		return TxStatus{}, fmt.Errorf("esplora tx status: HTTP %d", resp.StatusCode)
	}

	var tx esploraTxResponse
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		e.cb.RecordFailure()
		return TxStatus{}, fmt.Errorf("decode esplora tx status: %w", err)
	}
	e.cb.RecordSuccess()

	coinbase := len(tx.Vin) == 1 && tx.Vin[0].IsCoinbase
	if !tx.Status.Confirmed {
		return TxStatus{Exists: true, Confirmations: 0, CoinbaseOnly: coinbase}, nil
	}

	tip, err := e.chainTipHeight(ctx)
	if err != nil {
		slog.Warn("esplora: confirmed tx but tip height lookup failed, reporting 1 conf", "txid", txid, "error", err)
		return TxStatus{Exists: true, Confirmations: 1, CoinbaseOnly: coinbase}, nil
	}
	confs := tip - tx.Status.BlockHeight + 1
	if confs < 1 {
		confs = 1
	}
	return TxStatus{Exists: true, Confirmations: uint32(confs), CoinbaseOnly: coinbase}, nil
}

func (e *EsploraIndexer) getString(ctx context.Context, path string) (string, error) {
	if !e.cb.Allow() {
		return "", fmt.Errorf("esplora circuit open")
	}
	if err := e.rl.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.cb.RecordFailure()
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e.cb.RecordFailure()
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		e.cb.RecordFailure()
		return "", fmt.Errorf("esplora %s: HTTP %d", path, resp.StatusCode)
	}
	e.cb.RecordSuccess()
	return string(body), nil
}
