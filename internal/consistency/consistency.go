// Package consistency implements the Consistency Checker: the
// go-online assertions that the base-chain wallet, the contract library and
// the on-disk media agree with the local database.
package consistency

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rgbwallet/rgbwallet/internal/basechain"
	"github.com/rgbwallet/rgbwallet/internal/contractlib"
	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/media"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// Check runs all three go-online assertions. The base-chain wallet must already
// be synced; the first mismatch aborts the check with Inconsistency.
func Check(ctx context.Context, store *db.DB, wallet basechain.Wallet, contracts contractlib.Library, mediaStore *media.Store) error {
	unspents, err := wallet.ListUnspents(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s", walleterr.ErrFailedBdkSync, err)
	}
	onChain := make(map[string]bool, len(unspents))
	for _, u := range unspents {
		onChain[fmt.Sprintf("%s:%d", u.Txid, u.Vout)] = true
	}
	txos, err := store.ListTxos()
	if err != nil {
		return err
	}
	for _, t := range txos {
		if !t.Exists || t.Spent || t.PendingWitness {
			continue
		}
		if !onChain[fmt.Sprintf("%s:%d", t.Txid, t.Vout)] {
			return walleterr.Inconsistency("spent bitcoins with another wallet")
		}
	}

	assets, err := store.ListAssets("")
	if err != nil {
		return err
	}
	for _, a := range assets {
		if _, err := contracts.ExportContract(ctx, a.ID); err != nil {
			return walleterr.Inconsistency(fmt.Sprintf("DB assets do not match contract library: %s unknown", a.ID))
		}
	}

	mediaRows, err := store.ListMedia()
	if err != nil {
		return err
	}
	for _, m := range mediaRows {
		if !mediaStore.Exists(m.Digest) {
			return walleterr.Inconsistency(fmt.Sprintf("DB media do not match media directory: %s missing", m.Digest))
		}
	}

	slog.Debug("consistency check passed", "txos", len(txos), "assets", len(assets), "media", len(mediaRows))
	return nil
}
