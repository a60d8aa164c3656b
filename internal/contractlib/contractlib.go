// Package contractlib is the wallet's narrow view of the contract and
// commitment library: registering contracts, building state transitions,
// importing/exporting contracts, validating and composing consignments,
// embedding commitments into PSBTs and accepting validated transfers. The
// real client-side-validation engine lives behind the Library interface; an
// in-process stand-in backs it here.
package contractlib

import (
	"context"

	"github.com/rgbwallet/rgbwallet/internal/models"
)

// ValidityStatus is the contract library's verdict on an incoming consignment.
type ValidityStatus string

const (
	ValidityValid                 ValidityStatus = "Valid"
	ValidityUnminedTerminals       ValidityStatus = "UnminedTerminals"
	ValidityUnresolvedTransactions ValidityStatus = "UnresolvedTransactions"
	ValidityInvalid                ValidityStatus = "Invalid"
)

// Acceptable reports whether a validity verdict is one the receiver half
// proceeds on; anything other than Valid, UnminedTerminals or
// UnresolvedTransactions gets a NACK.
func (v ValidityStatus) Acceptable() bool {
	return v == ValidityValid || v == ValidityUnminedTerminals || v == ValidityUnresolvedTransactions
}

// CloseMethod identifies how a seal is closed by its anchoring transaction.
type CloseMethod string

const (
	CloseOpretFirst CloseMethod = "OpretFirst"
	CloseTapretFirst CloseMethod = "TapretFirst"
)

// Seal is the commitment target of a contract assignment: either a known
// outpoint (blind receive) or a future witness-tx vout (witness receive).
type Seal struct {
	Concealed string // opaque concealed-seal string embedded in an invoice
	Txid      string // revealed witness seal: anchoring txid once known
	Vout      uint32
	Blind     bool
}

// AssignmentSpec is one assignment a transition will carry.
type AssignmentSpec struct {
	Seal       Seal
	Assignment models.Assignment
}

// TransitionInput references a UTXO being consumed by a transition.
type TransitionInput struct {
	Txid string
	Vout uint32
}

// Transition is a contract state transition attached to an outgoing send.
type Transition struct {
	AssetID     string
	Inputs      []TransitionInput
	Assignments []AssignmentSpec
	Blank       bool // true for a forwarding transition of a co-resident asset
}

// RegisterParams describes a new contract to register with the library.
type RegisterParams struct {
	Schema       models.Schema
	Name         string
	Ticker       string
	Details      string
	Precision    uint8
	IssuedSupply uint64
	Timestamp    int64
	MediaDigest  string
}

// ParsedConsignment is what Validate returns once a consignment file has been
// opened: enough to drive the receiver half of a transfer.
type ParsedConsignment struct {
	ContractID       string
	Schema           models.Schema
	Validity         ValidityStatus
	AnchoringTxid    string
	CloseMethod      CloseMethod
	AttachmentDigests []string
	// ReceivedAt maps a seal (by its Concealed string, or "txid:vout" for a
	// revealed witness seal) to the assignment delivered to it.
	ReceivedAt map[string]models.Assignment
}

// Library is the narrow surface the core consumes from the contract/
// commitment library.
type Library interface {
	// RegisterContract mints a new contract id for freshly issued state.
	RegisterContract(ctx context.Context, params RegisterParams) (contractID string, err error)

	// BuildTransition assembles a transition consuming the given inputs and
	// producing the given assignments (target transition, or a blank forwarding one).
	BuildTransition(ctx context.Context, t Transition) ([]byte, error)

	// ImportContract registers a contract this wallet did not issue, learned
	// from an incoming consignment, returning enough metadata to persist an Asset row.
	ImportContract(ctx context.Context, contractID string) (RegisterParams, error)

	// ExportContract serializes a contract the wallet already knows about.
	ExportContract(ctx context.Context, contractID string) ([]byte, error)

	// ComposeConsignment assembles the opaque bundle shipped to this asset's
	// recipients: the contract plus the transition state anchored at the given
	// txid, with one assignment per recipient seal.
	ComposeConsignment(ctx context.Context, contractID, anchoringTxid string, assignments map[string]models.Assignment, attachmentDigests []string) ([]byte, error)

	// ValidateConsignment parses and validates a consignment file's bytes.
	ValidateConsignment(ctx context.Context, data []byte) (*ParsedConsignment, error)

	// EmbedCommitment writes the given transitions' commitment into a PSBT's
	// OP_RETURN output, returning the updated PSBT bytes.
	EmbedCommitment(ctx context.Context, psbtBytes []byte, transitions [][]byte) ([]byte, error)

	// SaveConsignment persists a consignment to the given path.
	SaveConsignment(path string, data []byte) error

	// LoadConsignment reads a previously saved consignment from disk.
	LoadConsignment(path string) ([]byte, error)

	// AcceptTransfer finalizes client-side validation state for a transfer
	// whose anchoring tx has reached min_confirmations.
	AcceptTransfer(ctx context.Context, contractID string, consignment []byte) (ValidityStatus, error)
}
