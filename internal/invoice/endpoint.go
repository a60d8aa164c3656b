package invoice

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// ParseTransportEndpoint validates an rpc://host[:port]/... or rpcs://...
// endpoint string and returns its TransportEndpoint form. Only JsonRpc is
// supported; any other scheme is an unsupported transport.
func ParseTransportEndpoint(s string) (models.TransportEndpoint, error) {
	u, err := url.Parse(s)
	if err != nil {
		return models.TransportEndpoint{}, fmt.Errorf("%w: %s", walleterr.ErrInvalidTransportEndpoint, err)
	}
	switch u.Scheme {
	case "rpc", "rpcs":
	case "":
		return models.TransportEndpoint{}, fmt.Errorf("%w: missing scheme in %q", walleterr.ErrInvalidTransportEndpoint, s)
	default:
		return models.TransportEndpoint{}, fmt.Errorf("%w: scheme %q", walleterr.ErrUnsupportedTransportType, u.Scheme)
	}
	if u.Host == "" {
		return models.TransportEndpoint{}, fmt.Errorf("%w: missing host in %q", walleterr.ErrInvalidTransportEndpoint, s)
	}
	return models.TransportEndpoint{TransportType: models.TransportJSONRPC, Endpoint: s}, nil
}

// EndpointHTTPURL converts an rpc:// or rpcs:// endpoint to the http(s) base
// URL the relay client actually dials.
func EndpointHTTPURL(endpoint string) (string, error) {
	if _, err := ParseTransportEndpoint(endpoint); err != nil {
		return "", err
	}
	if rest, ok := strings.CutPrefix(endpoint, "rpcs://"); ok {
		return "https://" + strings.TrimSuffix(rest, "/"), nil
	}
	rest, _ := strings.CutPrefix(endpoint, "rpc://")
	return "http://" + strings.TrimSuffix(rest, "/"), nil
}

// DedupEndpoints validates a 1..MaxTransportEndpoints endpoint list, rejecting
// duplicates. The returned list preserves order.
func DedupEndpoints(endpoints []string, max int) ([]string, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: at least one endpoint required", walleterr.ErrInvalidTransportEndpoints)
	}
	if len(endpoints) > max {
		return nil, fmt.Errorf("%w: no more than %d endpoints allowed", walleterr.ErrInvalidTransportEndpoints, max)
	}
	seen := make(map[string]bool, len(endpoints))
	for _, ep := range endpoints {
		if _, err := ParseTransportEndpoint(ep); err != nil {
			return nil, err
		}
		if seen[ep] {
			return nil, fmt.Errorf("%w: no duplicate transport endpoints allowed", walleterr.ErrInvalidTransportEndpoints)
		}
		seen[ep] = true
	}
	return endpoints, nil
}
