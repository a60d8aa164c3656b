// Package walleterr defines the closed error union the core returns. Every
// fallible operation wraps one of these sentinels with fmt.Errorf("%w: ...")
// so callers can both errors.Is a kind and read the formatted detail.
package walleterr

import "errors"

// Input validation.
var (
	ErrInvalidTicker          = errors.New("invalid ticker")
	ErrInvalidName            = errors.New("invalid name")
	ErrInvalidPrecision       = errors.New("invalid precision")
	ErrInvalidDetails         = errors.New("invalid details")
	ErrInvalidFilePath        = errors.New("invalid file path")
	ErrInvalidFeeRate         = errors.New("invalid fee rate")
	ErrInvalidBitcoinNetwork  = errors.New("invalid bitcoin network")
	ErrInvalidRecipientID     = errors.New("invalid recipient id")
	ErrInvalidRecipientNetwork = errors.New("invalid recipient network")
	ErrInvalidInvoice         = errors.New("invalid invoice")
	ErrInvalidTransportEndpoint  = errors.New("invalid transport endpoint")
	ErrInvalidTransportEndpoints = errors.New("invalid transport endpoints")
	ErrInvalidAssignment      = errors.New("invalid assignment")
	ErrInvalidAttachments     = errors.New("invalid attachments")
	ErrInvalidPubkey          = errors.New("invalid pubkey")
	ErrInvalidPsbt            = errors.New("invalid psbt")
	ErrInvalidTxid            = errors.New("invalid txid")
	ErrInvalidVanillaKeychain = errors.New("invalid vanilla keychain")
	ErrInvalidProxyProtocol   = errors.New("invalid proxy protocol")
)

// Capacity.
var (
	ErrInsufficientBitcoins       = errors.New("insufficient bitcoins")
	ErrInsufficientAllocationSlots = errors.New("insufficient allocation slots")
	ErrInsufficientAssignments    = errors.New("insufficient assignments")
	ErrInsufficientSpendableAssets = errors.New("insufficient spendable assets")
	ErrInsufficientTotalAssets    = errors.New("insufficient total assets")
	ErrOutputBelowDustLimit       = errors.New("output below dust limit")
	ErrAllocationsAlreadyAvailable = errors.New("allocations already available")
	ErrTooHighIssuanceAmounts     = errors.New("too high issuance amounts")
	ErrTooHighInflationAmounts    = errors.New("too high inflation amounts")
)

// Protocol.
var (
	ErrNoConsignment           = errors.New("no consignment")
	ErrNoValidTransportEndpoint = errors.New("no valid transport endpoint")
	ErrRecipientIDAlreadyUsed  = errors.New("recipient id already used")
	ErrRecipientIDDuplicated   = errors.New("recipient id duplicated")
	ErrUnsupportedTransportType = errors.New("unsupported transport type")
	ErrUnsupportedLayer1       = errors.New("unsupported layer1")
	ErrUnsupportedSchema       = errors.New("unsupported schema")
	ErrUnsupportedBackupVersion = errors.New("unsupported backup version")
	ErrCannotUseIfaOnMainnet   = errors.New("cannot use IFA on mainnet")
	ErrInvalidConsignment      = errors.New("invalid consignment")
	ErrUnknownRgbSchema        = errors.New("unknown rgb schema")
)

// Lifecycle.
var (
	ErrAssetNotFound          = errors.New("asset not found")
	ErrBatchTransferNotFound  = errors.New("batch transfer not found")
	ErrCannotChangeOnline     = errors.New("cannot change online")
	ErrCannotDeleteBatchTransfer = errors.New("cannot delete batch transfer")
	ErrCannotFailBatchTransfer   = errors.New("cannot fail batch transfer")
	ErrCannotFinalizePsbt     = errors.New("cannot finalize psbt")
	ErrMaxFeeExceeded         = errors.New("max fee exceeded")
	ErrMinFeeNotMet           = errors.New("min fee not met")
)

// Environment.
var (
	ErrOffline              = errors.New("offline")
	ErrOnlineNeeded         = errors.New("online needed")
	ErrWatchOnly            = errors.New("watch only")
	ErrInexistentDataDir    = errors.New("inexistent data dir")
	ErrWalletDirAlreadyExists = errors.New("wallet dir already exists")
	ErrFileAlreadyExists    = errors.New("file already exists")
	ErrEmptyFile            = errors.New("empty file")
	ErrFingerprintMismatch  = errors.New("fingerprint mismatch")
	ErrBitcoinNetworkMismatch = errors.New("bitcoin network mismatch")
	ErrWrongPassword        = errors.New("wrong password")
)

// Externals.
var (
	ErrIndexer        = errors.New("indexer error")
	ErrProxy          = errors.New("proxy error")
	ErrNetwork        = errors.New("network error")
	ErrIO             = errors.New("io error")
	ErrFailedBroadcast = errors.New("failed broadcast")
	ErrFailedBdkSync  = errors.New("failed base-chain sync")
	ErrFailedIssuance = errors.New("failed issuance")
)

// Internal.
var (
	ErrInconsistency = errors.New("inconsistency")
	ErrInternal      = errors.New("internal error")
)
