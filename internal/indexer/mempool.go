package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rgbwallet/rgbwallet/internal/config"
	"github.com/rgbwallet/rgbwallet/internal/httpx"
)

// mempoolTxResponse mirrors mempool.space's GET /tx/<txid> shape. Like
// Esplora's it carries no confirmation count, only block_height;
// confirmations are derived from it and a separate /blocks/tip/height query.
type mempoolTxResponse struct {
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
	Vin []struct {
		IsCoinbase bool `json:"is_coinbase"`
	} `json:"vin"`
}

// MempoolSpaceIndexer is the mempool.space-flavored indexer variant.
type MempoolSpaceIndexer struct {
	client  *http.Client
	rl      *httpx.RateLimiter
	cb      *httpx.CircuitBreaker
	baseURL string
}

// NewMempoolSpaceIndexer builds an indexer client against the mempool.space API.
func NewMempoolSpaceIndexer(client *http.Client, baseURL string) *MempoolSpaceIndexer {
	if client == nil {
		client = &http.Client{Timeout: config.IndexerTimeout}
	}
	return &MempoolSpaceIndexer{
		client:  client,
		rl:      httpx.NewRateLimiter("mempool-space", config.RateLimitIndexer),
		cb:      httpx.NewCircuitBreaker("mempool-space", config.CircuitBreakerThreshold, config.CircuitBreakerCooldown),
		baseURL: baseURL,
	}
}

func (m *MempoolSpaceIndexer) Name() string { return "MempoolSpace" }

func (m *MempoolSpaceIndexer) BlockZeroHash(ctx context.Context) (string, error) {
	return m.getString(ctx, "/block-height/0")
}

func (m *MempoolSpaceIndexer) tipHeight(ctx context.Context) (int64, error) {
	s, err := m.getString(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	var h int64
	if _, err := fmt.Sscanf(s, "%d", &h); err != nil {
		return 0, fmt.Errorf("parse tip height %q: %w", s, err)
	}
	return h, nil
}

func (m *MempoolSpaceIndexer) TxStatus(ctx context.Context, txid string) (TxStatus, error) {
	if !m.cb.Allow() {
		return TxStatus{}, fmt.Errorf("mempool.space circuit open")
	}
	if err := m.rl.Wait(ctx); err != nil {
		return TxStatus{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/tx/"+txid, nil)
	if err != nil {
		return TxStatus{}, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.cb.RecordFailure()
		return TxStatus{}, fmt.Errorf("mempool.space tx status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		m.cb.RecordSuccess()
		return TxStatus{}, ErrTxNotFound
	}
	if resp.StatusCode != http.StatusOK {
		m.cb.RecordFailure()
		return TxStatus{}, fmt.Errorf("mempool.space tx status: HTTP %d", resp.StatusCode)
	}

	var tx mempoolTxResponse
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		m.cb.RecordFailure()
		return TxStatus{}, fmt.Errorf("decode mempool.space tx status: %w", err)
	}
	m.cb.RecordSuccess()

	coinbase := len(tx.Vin) == 1 && tx.Vin[0].IsCoinbase
	if !tx.Status.Confirmed {
		return TxStatus{Exists: true, CoinbaseOnly: coinbase}, nil
	}
	tip, err := m.tipHeight(ctx)
	if err != nil {
		return TxStatus{Exists: true, Confirmations: 1, CoinbaseOnly: coinbase}, nil
	}
	confs := tip - tx.Status.BlockHeight + 1
	if confs < 1 {
		confs = 1
	}
	return TxStatus{Exists: true, Confirmations: uint32(confs), CoinbaseOnly: coinbase}, nil
}

func (m *MempoolSpaceIndexer) getString(ctx context.Context, path string) (string, error) {
	if !m.cb.Allow() {
		return "", fmt.Errorf("mempool.space circuit open")
	}
	if err := m.rl.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.cb.RecordFailure()
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		m.cb.RecordFailure()
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		m.cb.RecordFailure()
		return "", fmt.Errorf("mempool.space %s: HTTP %d", path, resp.StatusCode)
	}
	m.cb.RecordSuccess()
	return string(body), nil
}
