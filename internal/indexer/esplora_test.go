package indexer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEsploraIndexer_TxStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tx/abc":
			w.Write([]byte(`{"status":{"confirmed":true,"block_height":100},"vin":[{"is_coinbase":false}]}`))
		case "/blocks/tip/height":
			w.Write([]byte("106"))
		case "/tx/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ix := NewEsploraIndexer(srv.Client(), srv.URL)
	status, err := ix.TxStatus(context.Background(), "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Confirmations != 7 {
		t.Fatalf("expected 7 confirmations (106-100+1), got %d", status.Confirmations)
	}

	_, err = ix.TxStatus(context.Background(), "missing")
	if err != ErrTxNotFound {
		t.Fatalf("expected ErrTxNotFound, got %v", err)
	}
}

func TestPool_FailoverOnError(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":{"confirmed":false},"vin":[]}`))
	}))
	defer good.Close()

	pool := NewPool(NewEsploraIndexer(bad.Client(), bad.URL), NewEsploraIndexer(good.Client(), good.URL))
	status, err := pool.TxStatus(context.Background(), "any")
	if err != nil {
		t.Fatalf("expected pool to fail over to the working indexer, got %v", err)
	}
	if !status.Exists || status.Confirmations != 0 {
		t.Fatalf("expected unconfirmed existing tx, got %+v", status)
	}
}
