package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rgbwallet/rgbwallet/internal/config"
	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

func TestProbeInfo_AcceptsMatchingProtocolVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"protocol_version":"0.2"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	info, err := c.ProbeInfo(context.Background())
	if err != nil {
		t.Fatalf("ProbeInfo: %v", err)
	}
	if info.ProtocolVersion != config.ProxyProtocolVersion {
		t.Fatalf("unexpected protocol version %q", info.ProtocolVersion)
	}
}

func TestProbeInfo_RejectsMismatchedProtocolVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"protocol_version":"0.1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	if _, err := c.ProbeInfo(context.Background()); !errors.Is(err, walleterr.ErrInvalidProxyProtocol) {
		t.Fatalf("expected ErrInvalidProxyProtocol, got %v", err)
	}
}

func TestPostConsignment_MapsRecipientIDAlreadyUsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":-101,"message":"recipient id already used"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	err := c.PostConsignment(context.Background(), ConsignmentPayload{RecipientID: "r1", Consignment: []byte("data")})
	if !errors.Is(err, walleterr.ErrRecipientIDAlreadyUsed) {
		t.Fatalf("expected ErrRecipientIDAlreadyUsed, got %v", err)
	}
}

func TestGetConsignment_NotFoundMapsToNoConsignment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	_, err := c.GetConsignment(context.Background(), "missing")
	if !errors.Is(err, walleterr.ErrNoConsignment) {
		t.Fatalf("expected ErrNoConsignment, got %v", err)
	}
}

func TestGetConsignment_RoundTripsBase64Body(t *testing.T) {
	payload := []byte("consignment bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"recipient_id":"r1","consignment":"` + base64.StdEncoding.EncodeToString(payload) + `","txid":"abc"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	got, err := c.GetConsignment(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetConsignment: %v", err)
	}
	if string(got.Consignment) != string(payload) || got.Txid != "abc" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestPool_FirstUsable(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"protocol_version":"0.1"}`))
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"protocol_version":"0.2"}`))
	}))
	defer good.Close()

	pool := NewPool()
	if err := pool.Add(bad.Client(), models.TransportEndpoint{TransportType: models.TransportJSONRPC, Endpoint: bad.URL}); err != nil {
		t.Fatalf("Add bad: %v", err)
	}
	if err := pool.Add(good.Client(), models.TransportEndpoint{TransportType: models.TransportJSONRPC, Endpoint: good.URL}); err != nil {
		t.Fatalf("Add good: %v", err)
	}

	c, err := pool.FirstUsable(context.Background(), []string{bad.URL, good.URL})
	if err != nil {
		t.Fatalf("FirstUsable: %v", err)
	}
	if c == nil {
		t.Fatalf("expected a usable client")
	}
}

func TestPool_RejectsNonJSONRPCTransport(t *testing.T) {
	pool := NewPool()
	err := pool.Add(nil, models.TransportEndpoint{TransportType: "Nostr", Endpoint: "nostr://relay"})
	if !errors.Is(err, walleterr.ErrUnsupportedTransportType) {
		t.Fatalf("expected ErrUnsupportedTransportType, got %v", err)
	}
}
