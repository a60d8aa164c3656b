// Package relay implements the client side of the transfer-relay proxy: a
// JSON-RPC-over-HTTP service that shuttles consignments, acks/nacks and
// media between wallets that can't reach each other directly. Requests are
// context-aware and go through a per-endpoint circuit breaker and rate
// limiter.
package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/rgbwallet/rgbwallet/internal/config"
	"github.com/rgbwallet/rgbwallet/internal/httpx"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// errCodeRecipientIDAlreadyUsed is the relay's JSON-RPC error code for a
// recipient id collision.
const errCodeRecipientIDAlreadyUsed = -101

// Info is the relay's self-description.
type Info struct {
	ProtocolVersion string `json:"protocol_version"`
}

// ConsignmentPayload is the body of POST /consignment and the response shape
// of GET /consignment/<recipient_id>.
type ConsignmentPayload struct {
	RecipientID string `json:"recipient_id"`
	Consignment []byte `json:"-"`
	Txid        string `json:"txid,omitempty"`
	Vout        *uint32 `json:"vout,omitempty"`
}

type wireConsignmentPayload struct {
	RecipientID string  `json:"recipient_id"`
	Consignment string  `json:"consignment"`
	Txid        string  `json:"txid,omitempty"`
	Vout        *uint32 `json:"vout,omitempty"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// AckNack is the response shape of GET /ack/<recipient_id>.
type AckNack struct {
	Ack  *bool `json:"ack,omitempty"`
	Nack *bool `json:"nack,omitempty"`
}

// Client talks to a single relay endpoint.
type Client struct {
	httpClient *http.Client
	rl         *httpx.RateLimiter
	cb         *httpx.CircuitBreaker
	baseURL    string
}

// NewClient builds a relay client against one endpoint URL.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.RelayTimeout}
	}
	return &Client{
		httpClient: httpClient,
		rl:         httpx.NewRateLimiter("relay:"+baseURL, config.RateLimitRelay),
		cb:         httpx.NewCircuitBreaker("relay:"+baseURL, config.CircuitBreakerThreshold, config.CircuitBreakerCooldown),
		baseURL:    baseURL,
	}
}

// ProbeInfo fetches GET /info and checks the advertised protocol version
// matches PROXY_PROTOCOL_VERSION.
func (c *Client) ProbeInfo(ctx context.Context) (Info, error) {
	var info Info
	if err := c.doJSON(ctx, http.MethodGet, "/info", nil, &info); err != nil {
		return Info{}, err
	}
	if info.ProtocolVersion != config.ProxyProtocolVersion {
		return info, fmt.Errorf("%w: relay speaks protocol %q, wallet needs %q",
			walleterr.ErrInvalidProxyProtocol, info.ProtocolVersion, config.ProxyProtocolVersion)
	}
	return info, nil
}

// PostConsignment uploads a consignment for a recipient id. The relay's -101
// error code maps to walleterr.ErrRecipientIDAlreadyUsed.
func (c *Client) PostConsignment(ctx context.Context, p ConsignmentPayload) error {
	body := wireConsignmentPayload{
		RecipientID: p.RecipientID,
		Consignment: base64.StdEncoding.EncodeToString(p.Consignment),
		Txid:        p.Txid,
		Vout:        p.Vout,
	}
	err := c.doJSON(ctx, http.MethodPost, "/consignment", body, nil)
	if rpcErr, ok := asRPCError(err); ok && rpcErr.Code == errCodeRecipientIDAlreadyUsed {
		return fmt.Errorf("%w: %s", walleterr.ErrRecipientIDAlreadyUsed, rpcErr.Message)
	}
	return err
}

// GetConsignment fetches a consignment by recipient id. A 404 maps to
// walleterr.ErrNoConsignment so callers can poll again later, while
// transport errors propagate.
func (c *Client) GetConsignment(ctx context.Context, recipientID string) (*ConsignmentPayload, error) {
	var wire wireConsignmentPayload
	err := c.doJSON(ctx, http.MethodGet, "/consignment/"+recipientID, nil, &wire)
	if err != nil {
		if isNotFound(err) {
			return nil, walleterr.ErrNoConsignment
		}
		return nil, err
	}
	raw, decErr := base64.StdEncoding.DecodeString(wire.Consignment)
	if decErr != nil {
		return nil, fmt.Errorf("%w: decode consignment body: %s", walleterr.ErrInvalidConsignment, decErr)
	}
	return &ConsignmentPayload{RecipientID: recipientID, Consignment: raw, Txid: wire.Txid, Vout: wire.Vout}, nil
}

// PostAck/PostNack report the receiver's acceptance decision.
func (c *Client) PostAck(ctx context.Context, recipientID string) error {
	return c.doJSON(ctx, http.MethodPost, "/ack", map[string]string{"recipient_id": recipientID}, nil)
}

func (c *Client) PostNack(ctx context.Context, recipientID string) error {
	return c.doJSON(ctx, http.MethodPost, "/nack", map[string]string{"recipient_id": recipientID}, nil)
}

// GetAckNack polls for a sender's decision on a previously posted consignment.
func (c *Client) GetAckNack(ctx context.Context, recipientID string) (*AckNack, error) {
	var an AckNack
	if err := c.doJSON(ctx, http.MethodGet, "/ack/"+recipientID, nil, &an); err != nil {
		return nil, err
	}
	return &an, nil
}

// PostMedia uploads content-addressed bytes.
func (c *Client) PostMedia(ctx context.Context, digest string, data []byte) error {
	body := map[string]string{
		"digest": digest,
		"bytes":  base64.StdEncoding.EncodeToString(data),
	}
	return c.doJSON(ctx, http.MethodPost, "/media", body, nil)
}

// GetMedia downloads content-addressed bytes by digest.
func (c *Client) GetMedia(ctx context.Context, digest string) ([]byte, error) {
	var wire struct {
		Bytes string `json:"bytes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/media/"+digest, nil, &wire); err != nil {
		if isNotFound(err) {
			return nil, walleterr.ErrNoConsignment
		}
		return nil, err
	}
	return base64.StdEncoding.DecodeString(wire.Bytes)
}

// NewRecipientScratchID returns a fresh random UUID string, drawn from
// google/uuid like the stand-in contract ids in internal/contractlib.
func NewRecipientScratchID() string {
	return uuid.NewString()
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("relay HTTP %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	var statusErr *httpStatusError
	return asType(err, &statusErr) && statusErr.status == http.StatusNotFound
}

func asRPCError(err error) (*rpcErrorBody, bool) {
	var statusErr *httpStatusError
	if !asType(err, &statusErr) {
		return nil, false
	}
	var body rpcErrorBody
	if jsonErr := json.Unmarshal([]byte(statusErr.body), &body); jsonErr != nil {
		return nil, false
	}
	return &body, true
}

func asType(err error, target **httpStatusError) bool {
	e, ok := err.(*httpStatusError)
	if ok {
		*target = e
	}
	return ok
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody any) error {
	if !c.cb.Allow() {
		return fmt.Errorf("%w: relay circuit open for %s", walleterr.ErrProxy, c.baseURL)
	}
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode relay request: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.cb.RecordFailure()
		return fmt.Errorf("%w: %s", walleterr.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.cb.RecordFailure()
		return fmt.Errorf("%w: read relay response: %s", walleterr.ErrNetwork, err)
	}

	if resp.StatusCode >= 300 {
		if resp.StatusCode != http.StatusNotFound {
			c.cb.RecordFailure()
		} else {
			c.cb.RecordSuccess()
		}
		return &httpStatusError{status: resp.StatusCode, body: string(raw)}
	}
	c.cb.RecordSuccess()

	if respBody == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, respBody); err != nil {
		return fmt.Errorf("decode relay response: %w", err)
	}
	return nil
}
