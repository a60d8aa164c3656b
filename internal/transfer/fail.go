package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// FailTransfers does one last refresh and then flips batches to Failed only
// where that refresh changed nothing. With a batch index the target
// must be a WaitingCounterparty batch; without one, only expired batches
// qualify, optionally restricted to those carrying no asset id.
func (m *StateMachine) FailTransfers(ctx context.Context, batchTransferIdx *int64, noAssetOnly bool) ([]int64, error) {
	results, err := m.Refresh(ctx, "", nil)
	if err != nil {
		return nil, err
	}

	now := m.now().Unix()
	var failed []int64

	if batchTransferIdx != nil {
		bt, err := m.Store.GetBatchTransfer(*batchTransferIdx)
		if err != nil {
			return nil, err
		}
		if bt == nil {
			return nil, fmt.Errorf("%w: %d", walleterr.ErrBatchTransferNotFound, *batchTransferIdx)
		}
		if r, ok := results[bt.Idx]; ok && r.UpdatedStatus != nil {
			return nil, fmt.Errorf("%w: batch %d advanced during refresh", walleterr.ErrCannotFailBatchTransfer, bt.Idx)
		}
		if bt.Status != models.BatchTransferStatusWaitingCounterparty {
			return nil, fmt.Errorf("%w: batch %d is %s", walleterr.ErrCannotFailBatchTransfer, bt.Idx, bt.Status)
		}
		if err := m.Store.UpdateBatchTransferStatus(bt.Idx, models.BatchTransferStatusFailed, now); err != nil {
			return nil, err
		}
		slog.Info("batch transfer failed by user", "batch_transfer_idx", bt.Idx)
		return []int64{bt.Idx}, nil
	}

	snap, err := m.Store.GetDBData()
	if err != nil {
		return nil, err
	}
	views := m.collectViews(snap)
	for _, v := range views {
		if v.batch.Status != models.BatchTransferStatusWaitingCounterparty {
			continue
		}
		if v.batch.Expiration == nil || *v.batch.Expiration >= now {
			continue
		}
		if noAssetOnly && v.hasAssetID() {
			continue
		}
		if r, ok := results[v.batch.Idx]; ok && r.UpdatedStatus != nil {
			continue
		}
		if err := m.Store.UpdateBatchTransferStatus(v.batch.Idx, models.BatchTransferStatusFailed, now); err != nil {
			return nil, err
		}
		slog.Info("expired batch transfer failed", "batch_transfer_idx", v.batch.Idx)
		failed = append(failed, v.batch.Idx)
	}
	return failed, nil
}

func (v *batchView) hasAssetID() bool {
	for _, at := range v.assetTransfers {
		if at.AssetID != nil {
			return true
		}
	}
	return false
}

// DeleteTransfers removes Failed batches and their subordinate rows,
// including any pre-allocated never-broadcast change Txo. With a batch
// index the target must already be Failed.
func (m *StateMachine) DeleteTransfers(batchTransferIdx *int64, noAssetOnly bool) ([]int64, error) {
	if batchTransferIdx != nil {
		bt, err := m.Store.GetBatchTransfer(*batchTransferIdx)
		if err != nil {
			return nil, err
		}
		if bt == nil {
			return nil, fmt.Errorf("%w: %d", walleterr.ErrBatchTransferNotFound, *batchTransferIdx)
		}
		if bt.Status != models.BatchTransferStatusFailed {
			return nil, fmt.Errorf("%w: batch %d is %s", walleterr.ErrCannotDeleteBatchTransfer, bt.Idx, bt.Status)
		}
		if err := m.Store.DeleteBatchTransfer(bt.Idx); err != nil {
			return nil, err
		}
		return []int64{bt.Idx}, nil
	}

	snap, err := m.Store.GetDBData()
	if err != nil {
		return nil, err
	}
	views := m.collectViews(snap)
	var deleted []int64
	for _, v := range views {
		if v.batch.Status != models.BatchTransferStatusFailed {
			continue
		}
		if noAssetOnly && v.hasAssetID() {
			continue
		}
		if err := m.Store.DeleteBatchTransfer(v.batch.Idx); err != nil {
			return nil, err
		}
		deleted = append(deleted, v.batch.Idx)
	}
	return deleted, nil
}
