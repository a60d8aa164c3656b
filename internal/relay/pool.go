package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// EndpointHealth is a point-in-time health probe result for one transport
// endpoint.
type EndpointHealth struct {
	Endpoint string
	OK       bool
	Latency  time.Duration
	Error    error
}

// Pool holds one Client per known transport endpoint. It stores no health
// state; ProbeAll and FirstUsable probe the endpoints on each call.
type Pool struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewPool builds an empty endpoint pool.
func NewPool() *Pool {
	return &Pool{clients: make(map[string]*Client)}
}

// Add registers a transport endpoint, validating it is JsonRpc, the only
// transport type this build supports.
func (p *Pool) Add(httpClient *http.Client, ep models.TransportEndpoint) error {
	if ep.TransportType != models.TransportJSONRPC {
		return fmt.Errorf("%w: %s", walleterr.ErrUnsupportedTransportType, ep.TransportType)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.clients[ep.Endpoint]; !ok {
		p.clients[ep.Endpoint] = NewClient(httpClient, ep.Endpoint)
	}
	return nil
}

// Client returns the client for a given endpoint URL, or nil if unknown.
func (p *Pool) Client(endpoint string) *Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clients[endpoint]
}

// ProbeAll concurrently probes every registered endpoint's GET /info and
// returns per-endpoint health, logging failures at WARN without failing the
// caller.
func (p *Pool) ProbeAll(ctx context.Context) []EndpointHealth {
	p.mu.RLock()
	endpoints := make([]string, 0, len(p.clients))
	clients := make([]*Client, 0, len(p.clients))
	for ep, c := range p.clients {
		endpoints = append(endpoints, ep)
		clients = append(clients, c)
	}
	p.mu.RUnlock()

	results := make([]EndpointHealth, len(endpoints))
	var wg sync.WaitGroup
	for i := range endpoints {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := time.Now()
			_, err := clients[i].ProbeInfo(ctx)
			results[i] = EndpointHealth{Endpoint: endpoints[i], OK: err == nil, Latency: time.Since(start), Error: err}
			if err != nil {
				slog.Warn("relay endpoint health check failed", "endpoint", endpoints[i], "error", err)
			}
		}(i)
	}
	wg.Wait()
	return results
}

// FirstUsable probes endpoints until one passes GET /info with the expected
// protocol version, returning the first usable client.
func (p *Pool) FirstUsable(ctx context.Context, endpoints []string) (*Client, error) {
	var errs []error
	for _, ep := range endpoints {
		c := p.Client(ep)
		if c == nil {
			errs = append(errs, fmt.Errorf("%s: not registered", ep))
			continue
		}
		if _, err := c.ProbeInfo(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ep, err))
			continue
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", walleterr.ErrNoValidTransportEndpoint, errors.Join(errs...))
}
