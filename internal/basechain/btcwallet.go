package basechain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/tyler-smith/go-bip39"

	"github.com/rgbwallet/rgbwallet/internal/config"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// dust and P2WPKH weight constants for vsize estimation.
const (
	dustLimitSats       = 546
	txOverheadWU        = 10 * 4
	p2wpkhInputWU       = 68*4 + 107 // non-witness + witness, roughly
	p2wpkhOutputWU      = 31 * 4
	opReturnOverheadWU  = 11 * 4
)

// BTCWallet is the in-repo stand-in for the embedded base-chain wallet: a
// single-descriptor BIP-84 BTC wallet backed by an in-memory UTXO set. It
// implements exactly the Wallet surface the core needs and nothing of a real
// wallet's persistence, gap-limit scanning or PSBT-over-hardware-signer flow.
type BTCWallet struct {
	mu        sync.Mutex
	net       *chaincfg.Params
	master    *hdkeychain.ExtendedKey
	nextIndex atomic.Uint32
	unspents  []Unspent
	addrKeys  map[string]*btcec.PrivateKey // address -> priv key, populated as addresses are revealed
}

// NewFromMnemonic derives the wallet's BIP-32 master key from a BIP-39
// mnemonic.
func NewFromMnemonic(mnemonic string, net *chaincfg.Params) (*BTCWallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid base-chain wallet mnemonic: %w", walleterr.ErrInternal)
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("mnemonic to seed: %w", err)
	}
	master, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	return &BTCWallet{net: net, master: master, addrKeys: make(map[string]*btcec.PrivateKey)}, nil
}

func (w *BTCWallet) coinType() uint32 {
	if w.net == &chaincfg.TestNet3Params {
		return config.BTCTestCoinType
	}
	return config.BTCCoinType
}

// deriveChild derives m/84'/coin'/0'/0/index per BIP-84.
func (w *BTCWallet) deriveChild(index uint32) (*btcec.PrivateKey, *btcutil.AddressWitnessPubKeyHash, error) {
	purpose, err := w.master.Derive(hdkeychain.HardenedKeyStart + uint32(config.BIP84Purpose))
	if err != nil {
		return nil, nil, err
	}
	coin, err := purpose.Derive(hdkeychain.HardenedKeyStart + w.coinType())
	if err != nil {
		return nil, nil, err
	}
	account, err := coin.Derive(hdkeychain.HardenedKeyStart + 0)
	if err != nil {
		return nil, nil, err
	}
	change, err := account.Derive(0)
	if err != nil {
		return nil, nil, err
	}
	child, err := change.Derive(index)
	if err != nil {
		return nil, nil, err
	}
	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, nil, err
	}
	witnessProg := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(witnessProg, w.net)
	if err != nil {
		return nil, nil, err
	}
	return priv, addr, nil
}

// Sync is a no-op for the in-memory stand-in; a real embedded wallet would
// rescan the chain here.
func (w *BTCWallet) Sync(ctx context.Context) error {
	slog.Debug("basechain wallet sync (stand-in, no-op)")
	return nil
}

// ListUnspents returns the wallet's currently tracked unspent outputs.
func (w *BTCWallet) ListUnspents(ctx context.Context) ([]Unspent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Unspent, len(w.unspents))
	copy(out, w.unspents)
	return out, nil
}

// ListTransactions is unimplemented by the stand-in; the core only uses it
// for label/history display.
func (w *BTCWallet) ListTransactions(ctx context.Context) ([]string, error) {
	return nil, nil
}

// NextAddress reveals the next address on the wallet's single colored keychain.
func (w *BTCWallet) NextAddress(ctx context.Context) (string, error) {
	idx := w.nextIndex.Add(1) - 1
	priv, addr, err := w.deriveChild(idx)
	if err != nil {
		return "", fmt.Errorf("reveal next address at index %d: %w", idx, err)
	}
	w.mu.Lock()
	w.addrKeys[addr.EncodeAddress()] = priv
	w.mu.Unlock()
	return addr.EncodeAddress(), nil
}

// estimateVsize sizes a P2WPKH-input, mixed-output transaction.
func estimateVsize(numInputs int, outputs []TxOutput) int {
	weight := txOverheadWU + numInputs*p2wpkhInputWU
	for _, o := range outputs {
		if o.OpReturn != nil {
			weight += opReturnOverheadWU + len(o.OpReturn)*4
			continue
		}
		weight += p2wpkhOutputWU
	}
	return (weight + 3) / 4
}

// Build assembles a funded, unsigned PSBT: add the manually
// selected inputs, add requested outputs, drain the remainder to a fresh
// change address, apply the fee rate. If the manually-selected inputs alone
// can't cover outputs+fee, free unspents are added smallest-BTC-first until
// they can, mirroring "grow the input set... retry".
func (w *BTCWallet) Build(ctx context.Context, params BuildParams) (*BuiltPSBT, error) {
	if params.FeeRate < config.MinFeeRate {
		return nil, walleterr.ErrMinFeeNotMet
	}
	if params.FeeRate > config.MaxFeeRate {
		return nil, walleterr.ErrMaxFeeExceeded
	}

	w.mu.Lock()
	free := make([]Unspent, len(w.unspents))
	copy(free, w.unspents)
	w.mu.Unlock()

	selected := append([]Unspent{}, params.ManuallySelectedInputs...)
	selectedSet := make(map[string]bool, len(selected))
	for _, u := range selected {
		selectedSet[fmt.Sprintf("%s:%d", u.Txid, u.Vout)] = true
	}

	var requestedTotal uint64
	for _, o := range params.Outputs {
		if o.OpReturn == nil {
			requestedTotal += o.Amount
		}
	}

	tryBuild := func(inputs []Unspent) (*BuiltPSBT, error) {
		var totalIn uint64
		for _, u := range inputs {
			totalIn += u.Amount
		}
		vsize := estimateVsize(len(inputs), params.Outputs)
		fee := uint64(params.FeeRate * float64(vsize))
		if !params.DrainRemainder {
			if totalIn < requestedTotal+fee {
				return nil, walleterr.ErrInsufficientBitcoins
			}
			return &BuiltPSBT{TotalInputs: totalIn, TotalOutputs: requestedTotal, FeeSats: fee, EstVsize: vsize}, nil
		}
		vsizeWithChange := estimateVsize(len(inputs), append(append([]TxOutput{}, params.Outputs...), TxOutput{}))
		feeWithChange := uint64(params.FeeRate * float64(vsizeWithChange))
		if totalIn < requestedTotal+feeWithChange+dustLimitSats {
			return nil, walleterr.ErrInsufficientBitcoins
		}
		remainder := totalIn - requestedTotal - feeWithChange
		if remainder < dustLimitSats {
			return nil, walleterr.ErrOutputBelowDustLimit
		}
		return &BuiltPSBT{TotalInputs: totalIn, TotalOutputs: requestedTotal + remainder, FeeSats: feeWithChange, EstVsize: vsizeWithChange}, nil
	}

	built, err := tryBuild(selected)
	if err != nil {
		if !errors.Is(err, walleterr.ErrInsufficientBitcoins) {
			return nil, err
		}
		// Grow the input set with free non-colored UTXOs, smallest BTC first.
		candidates := append([]Unspent{}, free...)
		sortByAmount(candidates)
		for _, c := range candidates {
			key := fmt.Sprintf("%s:%d", c.Txid, c.Vout)
			if selectedSet[key] {
				continue
			}
			selected = append(selected, c)
			selectedSet[key] = true
			built, err = tryBuild(selected)
			if err == nil {
				break
			}
			if !errors.Is(err, walleterr.ErrInsufficientBitcoins) {
				return nil, err
			}
		}
		if err != nil {
			return nil, err
		}
	}

	pkt, changeVout, err := w.assemblePacket(selected, params.Outputs, built, params.DrainRemainder)
	if err != nil {
		return nil, err
	}
	built.Packet = pkt
	built.ChangeVout = changeVout
	return built, nil
}

func sortByAmount(u []Unspent) {
	for i := 1; i < len(u); i++ {
		for j := i; j > 0 && u[j].Amount < u[j-1].Amount; j-- {
			u[j], u[j-1] = u[j-1], u[j]
		}
	}
}

func (w *BTCWallet) assemblePacket(inputs []Unspent, outputs []TxOutput, built *BuiltPSBT, drain bool) (*psbt.Packet, *int, error) {
	msgTx := wire.NewMsgTx(wire.TxVersion)
	for _, in := range inputs {
		hash, err := chainhash.NewHashFromStr(in.Txid)
		if err != nil {
			return nil, nil, fmt.Errorf("parse input txid %s: %w", in.Txid, err)
		}
		msgTx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, in.Vout), nil, nil))
	}

	var changeVout *int
	for _, o := range outputs {
		if o.OpReturn != nil {
			script, err := txscript.NullDataScript(o.OpReturn)
			if err != nil {
				return nil, nil, fmt.Errorf("build OP_RETURN script: %w", err)
			}
			msgTx.AddTxOut(wire.NewTxOut(0, script))
			continue
		}
		addr, err := btcutil.DecodeAddress(o.Address, w.net)
		if err != nil {
			return nil, nil, fmt.Errorf("decode output address %s: %w", o.Address, err)
		}
		script, err := txscript.PayToAddrScript(addr)
		if err != nil {
			return nil, nil, fmt.Errorf("build output script for %s: %w", o.Address, err)
		}
		msgTx.AddTxOut(wire.NewTxOut(int64(o.Amount), script))
	}

	if drain {
		changeAddrStr, err := w.NextAddress(context.Background())
		if err != nil {
			return nil, nil, fmt.Errorf("reveal change address: %w", err)
		}
		changeAddr, err := btcutil.DecodeAddress(changeAddrStr, w.net)
		if err != nil {
			return nil, nil, err
		}
		script, err := txscript.PayToAddrScript(changeAddr)
		if err != nil {
			return nil, nil, err
		}
		remainder := built.TotalOutputs - sumNonChangeOutputs(outputs)
		msgTx.AddTxOut(wire.NewTxOut(int64(remainder), script))
		idx := len(msgTx.TxOut) - 1
		changeVout = &idx
	}

	pkt, err := psbt.NewFromUnsignedTx(msgTx)
	if err != nil {
		return nil, nil, fmt.Errorf("wrap unsigned tx in psbt: %w", err)
	}
	return pkt, changeVout, nil
}

func sumNonChangeOutputs(outputs []TxOutput) uint64 {
	var total uint64
	for _, o := range outputs {
		if o.OpReturn == nil {
			total += o.Amount
		}
	}
	return total
}

// Sign is a no-op in the stand-in: it adds no signatures and leaves the
// packet unchanged; a real wallet signs each input it holds a key for.
func (w *BTCWallet) Sign(ctx context.Context, p *psbt.Packet) error {
	if !p.IsComplete() {
		// The core treats signing as an opaque external collaborator call;
		// the stand-in only logs it.
		slog.Debug("basechain wallet sign (stand-in)")
	}
	return nil
}

// Broadcast is the stand-in's terminal step: it derives the txid from the
// packet's unsigned transaction (a real wallet would submit to the network
// and return the network's txid) and marks the spent inputs accordingly.
func (w *BTCWallet) Broadcast(ctx context.Context, p *psbt.Packet) (string, error) {
	txid := p.UnsignedTx.TxHash().String()

	w.mu.Lock()
	spent := make(map[string]bool, len(p.UnsignedTx.TxIn))
	for _, in := range p.UnsignedTx.TxIn {
		spent[fmt.Sprintf("%s:%d", in.PreviousOutPoint.Hash.String(), in.PreviousOutPoint.Index)] = true
	}
	var remaining []Unspent
	for _, u := range w.unspents {
		if !spent[fmt.Sprintf("%s:%d", u.Txid, u.Vout)] {
			remaining = append(remaining, u)
		}
	}
	w.unspents = remaining
	for i, out := range p.UnsignedTx.TxOut {
		if out.Value == 0 {
			continue // OP_RETURN
		}
		w.unspents = append(w.unspents, Unspent{Txid: txid, Vout: uint32(i), Amount: uint64(out.Value)})
	}
	w.mu.Unlock()

	slog.Info("basechain tx broadcast", "txid", txid)
	return txid, nil
}

// SeedUnspent is a test/bootstrap helper to pre-populate the stand-in's UTXO set.
func (w *BTCWallet) SeedUnspent(u Unspent) {
	w.mu.Lock()
	w.unspents = append(w.unspents, u)
	w.mu.Unlock()
}
