package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Pool round-robins between indexer variants, failing over to the next one
// when a provider errors.
type Pool struct {
	indexers []Indexer
	current  atomic.Int32
}

// NewPool builds a pool over one or more indexer variants.
func NewPool(indexers ...Indexer) *Pool {
	return &Pool{indexers: indexers}
}

func (p *Pool) nextIndex() int {
	idx := p.current.Add(1)
	return int(idx-1) % len(p.indexers)
}

// TxStatus tries each indexer in round-robin order, returning the first
// success; ErrTxNotFound is returned immediately since every indexer
// variant over the same network should agree on non-existence.
func (p *Pool) TxStatus(ctx context.Context, txid string) (TxStatus, error) {
	var errs []error
	for range p.indexers {
		idx := p.nextIndex()
		ix := p.indexers[idx]
		status, err := ix.TxStatus(ctx, txid)
		if err == nil {
			return status, nil
		}
		if errors.Is(err, ErrTxNotFound) {
			return TxStatus{}, ErrTxNotFound
		}
		slog.Warn("indexer failed, trying next", "indexer", ix.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", ix.Name(), err))
	}
	return TxStatus{}, fmt.Errorf("all indexers failed: %w", errors.Join(errs...))
}

// BlockZeroHash tries each indexer until one answers.
func (p *Pool) BlockZeroHash(ctx context.Context) (string, error) {
	var errs []error
	for range p.indexers {
		idx := p.nextIndex()
		ix := p.indexers[idx]
		hash, err := ix.BlockZeroHash(ctx)
		if err == nil {
			return hash, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", ix.Name(), err))
	}
	return "", fmt.Errorf("all indexers failed: %w", errors.Join(errs...))
}
