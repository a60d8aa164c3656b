package config

import "time"

// Fee rate bounds (sat/vB), enforced on every fee-rate-accepting operation.
const (
	MinFeeRate = 1.0
	MaxFeeRate = 1000.0
)

// Create-UTXOs defaults.
const (
	DefaultCreateUtxosNum  = 5
	DefaultCreateUtxosSize = 1000 // sat
	MinBTCRequired         = 2000 // sat; below this, InsufficientBitcoins replaces InsufficientAllocationSlots
)

// UTXO allocation.
const (
	DefaultMaxAllocationsPerUtxo = 5
)

// Issuance.
const (
	MaxAttachments = 20
	UDAFixedIndex  = 0
	MaxPrecision   = 18
)

// Invoices / transport / receive.
const (
	MaxTransportEndpoints = 3
	DurationRcvTransfer   = 86_400 // seconds
	DurationSndTransfer   = 3_600  // seconds; sender-side WaitingCounterparty deadline
	ProxyProtocolVersion  = "0.2"
)

// Networking timeouts and resilience.
const (
	IndexerTimeout            = 4 * time.Second
	RelayTimeout              = 8 * time.Second
	ReconcileCheckTimeout     = 4 * time.Second
	ReconcileMaxAge           = 72 * time.Hour
	OpretVbytes               = 43
	CircuitBreakerThreshold   = 5
	CircuitBreakerCooldown    = 30 * time.Second
	CircuitBreakerHalfOpenMax = 1
	ExponentialBackoffBase    = 500 * time.Millisecond
	ExponentialBackoffMax     = 30 * time.Second
)

// Circuit breaker states.
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half-open"
)

// Rate limiting (requests per second).
const (
	RateLimitIndexer = 10
	RateLimitRelay   = 10
)

// Provider URLs for the BTC indexer variants.
const (
	BlockstreamMainnetURL = "https://blockstream.info/api"
	BlockstreamTestnetURL = "https://blockstream.info/testnet/api"
	MempoolMainnetURL     = "https://mempool.space/api"
	MempoolTestnetURL     = "https://mempool.space/testnet/api"
)

// Database.
const (
	DBPath          = "./data/rgbwallet.sqlite"
	DBTestPath      = "./data/rgbwallet_test.sqlite"
	DBBusyTimeoutMS = 5000
)

// Logging.
const (
	LogDir         = "./logs"
	LogFilePattern = "rgbwalletd-%s.log" // date
	LogFilePrefix  = "rgbwalletd-"
	LogMaxAgeDays  = 30
)

// BIP-32/BIP-84 derivation for the embedded base-chain wallet stand-in.
const (
	BIP84Purpose    = 84
	BTCCoinType     = 0 // m/84'/0'/0'/0/N mainnet
	BTCTestCoinType = 1 // m/84'/1'/0'/0/N testnet
)

// Backup (scrypt + XChaCha20-Poly1305).
const (
	ScryptN      = 1 << 15
	ScryptR      = 8
	ScryptP      = 1
	ScryptKeyLen = 32
)
