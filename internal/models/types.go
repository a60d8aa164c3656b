// Package models holds the wallet's entity types: plain structs with the
// surrogate-key identity and field shapes the persistent store reads and
// writes.
package models

// Schema identifies the contract template an Asset was issued under.
type Schema string

const (
	SchemaNIA Schema = "NIA" // Non-Inflatable Asset (fungible)
	SchemaUDA Schema = "UDA" // Unique Digital Asset (single NFT-like token)
	SchemaCFA Schema = "CFA" // Collectible Fungible Asset
	SchemaIFA Schema = "IFA" // Inflatable Fungible Asset
)

// BatchTransferStatus is the lifecycle state of a BatchTransfer.
type BatchTransferStatus int

const (
	BatchTransferStatusWaitingCounterparty BatchTransferStatus = iota + 1
	BatchTransferStatusWaitingConfirmations
	BatchTransferStatusSettled
	BatchTransferStatusFailed
)

func (s BatchTransferStatus) String() string {
	switch s {
	case BatchTransferStatusWaitingCounterparty:
		return "WaitingCounterparty"
	case BatchTransferStatusWaitingConfirmations:
		return "WaitingConfirmations"
	case BatchTransferStatusSettled:
		return "Settled"
	case BatchTransferStatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Pending reports whether the status is a non-terminal one that refresh should drive forward.
func (s BatchTransferStatus) Pending() bool {
	return s == BatchTransferStatusWaitingCounterparty || s == BatchTransferStatusWaitingConfirmations
}

// RecipientType identifies how a Transfer's beneficiary is represented.
type RecipientType string

const (
	RecipientTypeBlind   RecipientType = "Blind"
	RecipientTypeWitness RecipientType = "Witness"
)

// AssignmentKind tags the variant carried by an Assignment.
type AssignmentKind string

const (
	AssignmentAny            AssignmentKind = "Any"
	AssignmentFungible       AssignmentKind = "Fungible"
	AssignmentNonFungible    AssignmentKind = "NonFungible"
	AssignmentInflationRight AssignmentKind = "InflationRight"
	AssignmentReplaceRight   AssignmentKind = "ReplaceRight"
)

// Assignment is the tagged union carried by invoices and Colorings.
type Assignment struct {
	Kind   AssignmentKind
	Amount uint64 // meaningful for Fungible and InflationRight
}

// Amount0 returns the numeric quantity of the assignment: the
// fungible/inflation amount, or 1 for NonFungible/ReplaceRight.
func (a Assignment) Amount0() uint64 {
	switch a.Kind {
	case AssignmentFungible, AssignmentInflationRight:
		return a.Amount
	case AssignmentNonFungible, AssignmentReplaceRight:
		return 1
	default:
		return 0
	}
}

// OwnedAmount returns the assignment's contribution to asset-owner balance:
// the fungible amount, 1 for a non-fungible token, 0 for inflation/replace
// rights (rights reserve supply, they are not spendable units).
func (a Assignment) OwnedAmount() uint64 {
	switch a.Kind {
	case AssignmentFungible:
		return a.Amount
	case AssignmentNonFungible:
		return 1
	default:
		return 0
	}
}

// ColoringType tags the role a Coloring plays on a Txo.
type ColoringType string

const (
	ColoringIssue   ColoringType = "Issue"
	ColoringInput   ColoringType = "Input"
	ColoringOutput  ColoringType = "Output"
	ColoringReceive ColoringType = "Receive"
	ColoringChange  ColoringType = "Change"
)

// Incoming reports whether a coloring of this type adds value to its Txo.
func (c ColoringType) Incoming() bool {
	switch c {
	case ColoringIssue, ColoringReceive, ColoringChange:
		return true
	default:
		return false
	}
}

// TransportType identifies the wire protocol of a TransportEndpoint.
type TransportType string

const TransportJSONRPC TransportType = "JsonRpc"

// WalletTransactionLabel tags a broadcast tx for display purposes.
type WalletTransactionLabel string

const (
	WalletTxRgbSend     WalletTransactionLabel = "RgbSend"
	WalletTxDrain       WalletTransactionLabel = "Drain"
	WalletTxCreateUtxos WalletTransactionLabel = "CreateUtxos"
	WalletTxUser        WalletTransactionLabel = "User"
)

// Txo is a UTXO known to the wallet.
type Txo struct {
	Idx            int64
	Txid           string
	Vout           uint32
	BtcAmount      string // decimal string of a non-negative integer (sats)
	Spent          bool
	Exists         bool
	PendingWitness bool
}

// Media is a content-addressed file reference.
type Media struct {
	Idx    int64
	Digest string
	Mime   string
}

// Asset is a known contract.
type Asset struct {
	Idx          int64
	ID           string
	Schema       Schema
	Name         string
	Ticker       string // empty for CFA
	Details      string
	MediaIdx     *int64
	Precision    uint8
	IssuedSupply string // decimal string, <= u64 max
	Timestamp    int64
	AddedAt      int64
}

// Token is the single item carried by a UDA asset.
type Token struct {
	Idx           int64
	AssetIdx      int64
	Index         int32
	Ticker        string
	Name          string
	Details       string
	EmbeddedMedia bool
	Reserves      bool
}

// TokenMedia links a Token to Media, many-to-many; AttachmentID nil marks the primary media.
type TokenMedia struct {
	Idx          int64
	TokenIdx     int64
	MediaIdx     int64
	AttachmentID *uint8
}

// BatchTransfer is a coordinated group of asset transfers sharing one anchoring tx.
type BatchTransfer struct {
	Idx              int64
	Txid             *string
	Status           BatchTransferStatus
	CreatedAt        int64
	UpdatedAt        int64
	Expiration       *int64
	MinConfirmations uint32
}

// AssetTransfer is one asset's participation in a batch.
type AssetTransfer struct {
	Idx              int64
	BatchTransferIdx int64
	AssetID          *string
	UserDriven       bool
}

// Transfer is one recipient x asset pair.
type Transfer struct {
	Idx                 int64
	AssetTransferIdx    int64
	Incoming            bool
	RequestedAssignment *Assignment
	RecipientID         *string
	RecipientType       *RecipientType
	Ack                 *bool
	InvoiceString       *string
	Amount              string // decimal string; receiver-side running total from Receive colorings

	// BeneficiaryTxoIdx is the pre-registered destination UTXO of a blind
	// receive. It reserves an allocation slot on that UTXO while the batch is
	// WaitingCounterparty and tells wait-consignment where the Receive
	// coloring lands.
	BeneficiaryTxoIdx *int64

	// WitnessVout is the destination vout of a witness receive on the
	// anchoring tx, learned from the sender's consignment. The matching Txo
	// row is created only once the tx confirms.
	WitnessVout *uint32
}

// Coloring is a ledger entry linking a Txo to an AssetTransfer.
type Coloring struct {
	Idx              int64
	TxoIdx           int64
	AssetTransferIdx int64
	Type             ColoringType
	Assignment       Assignment
}

// TransportEndpoint is a (transport_type, endpoint) pair.
type TransportEndpoint struct {
	Idx           int64
	TransportType TransportType
	Endpoint      string
}

// TransferTransportEndpoint links a Transfer to a TransportEndpoint, tracking use.
type TransferTransportEndpoint struct {
	Idx                  int64
	TransferIdx          int64
	TransportEndpointIdx int64
	Used                 bool
}

// WalletTransaction labels a broadcast txid for display.
type WalletTransaction struct {
	Idx   int64
	Txid  string
	Label WalletTransactionLabel
}

// PendingWitnessScript is a script pubkey minted by a witness-receive but not yet seen on chain.
type PendingWitnessScript struct {
	Idx              int64
	Script           string
	TransferIdx      int64
	AssetTransferIdx int64
}

// BackupInfo tracks the two timestamps the backup-due check compares.
type BackupInfo struct {
	LastBackupTimestamp    string
	LastOperationTimestamp string
}
