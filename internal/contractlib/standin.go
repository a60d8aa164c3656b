package contractlib

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// wireConsignment is the (de)serialization shape SaveConsignment/
// LoadConsignment/ValidateConsignment operate on. A real contract library's
// consignment format is opaque binary; the stand-in uses JSON so the rest
// of the wallet can be exercised without a real RGB engine.
type wireConsignment struct {
	ContractID        string                    `json:"contract_id"`
	Schema            string                    `json:"schema"`
	AnchoringTxid     string                     `json:"anchoring_txid"`
	CloseMethod       string                     `json:"close_method"`
	AttachmentDigests []string                   `json:"attachment_digests,omitempty"`
	Assignments       map[string]wireAssignment  `json:"assignments"`
	RegisterParams    RegisterParams             `json:"register_params"`
}

type wireAssignment struct {
	Kind   string `json:"kind"`
	Amount uint64 `json:"amount"`
}

// StandIn is an in-process substitute for the real contract library. It
// fabricates random contract ids with google/uuid and round-trips
// consignments as JSON on disk.
type StandIn struct {
	mu        sync.Mutex
	contracts map[string]RegisterParams
}

// NewStandIn constructs an empty in-memory contract registry.
func NewStandIn() *StandIn {
	return &StandIn{contracts: make(map[string]RegisterParams)}
}

func (s *StandIn) RegisterContract(ctx context.Context, params RegisterParams) (string, error) {
	id := "rgb:" + uuid.NewString()
	s.mu.Lock()
	s.contracts[id] = params
	s.mu.Unlock()
	return id, nil
}

func (s *StandIn) BuildTransition(ctx context.Context, t Transition) ([]byte, error) {
	return json.Marshal(t)
}

func (s *StandIn) ImportContract(ctx context.Context, contractID string) (RegisterParams, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.contracts[contractID]; ok {
		return p, nil
	}
	return RegisterParams{}, fmt.Errorf("import contract %s: %w", contractID, walleterr.ErrAssetNotFound)
}

func (s *StandIn) ExportContract(ctx context.Context, contractID string) ([]byte, error) {
	s.mu.Lock()
	p, ok := s.contracts[contractID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("export contract %s: %w", contractID, walleterr.ErrAssetNotFound)
	}
	return json.Marshal(p)
}

func (s *StandIn) ComposeConsignment(ctx context.Context, contractID, anchoringTxid string, assignments map[string]models.Assignment, attachmentDigests []string) ([]byte, error) {
	s.mu.Lock()
	params, ok := s.contracts[contractID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("compose consignment for %s: %w", contractID, walleterr.ErrAssetNotFound)
	}
	wire := wireConsignment{
		ContractID:        contractID,
		Schema:            string(params.Schema),
		AnchoringTxid:     anchoringTxid,
		CloseMethod:       string(CloseOpretFirst),
		AttachmentDigests: attachmentDigests,
		Assignments:       make(map[string]wireAssignment, len(assignments)),
		RegisterParams:    params,
	}
	for seal, a := range assignments {
		wire.Assignments[seal] = wireAssignment{Kind: string(a.Kind), Amount: a.Amount}
	}
	return json.Marshal(wire)
}

func (s *StandIn) ValidateConsignment(ctx context.Context, data []byte) (*ParsedConsignment, error) {
	var wc wireConsignment
	if err := json.Unmarshal(data, &wc); err != nil {
		return nil, fmt.Errorf("%w: %s", walleterr.ErrInvalidConsignment, err)
	}
	if wc.ContractID == "" {
		return nil, fmt.Errorf("%w: missing contract id", walleterr.ErrInvalidConsignment)
	}

	receivedAt := make(map[string]models.Assignment, len(wc.Assignments))
	for seal, wa := range wc.Assignments {
		receivedAt[seal] = models.Assignment{Kind: models.AssignmentKind(wa.Kind), Amount: wa.Amount}
	}

	parsed := &ParsedConsignment{
		ContractID:        wc.ContractID,
		Schema:            models.Schema(wc.Schema),
		Validity:          ValidityValid,
		AnchoringTxid:     wc.AnchoringTxid,
		CloseMethod:       CloseMethod(wc.CloseMethod),
		AttachmentDigests: wc.AttachmentDigests,
		ReceivedAt:        receivedAt,
	}
	return parsed, nil
}

func (s *StandIn) EmbedCommitment(ctx context.Context, psbtBytes []byte, transitions [][]byte) ([]byte, error) {
	return psbtBytes, nil
}

func (s *StandIn) SaveConsignment(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for consignment %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write consignment %s: %w", path, err)
	}
	return nil
}

func (s *StandIn) LoadConsignment(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read consignment %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("consignment %s: %w", path, walleterr.ErrEmptyFile)
	}
	return data, nil
}

func (s *StandIn) AcceptTransfer(ctx context.Context, contractID string, consignment []byte) (ValidityStatus, error) {
	var wc wireConsignment
	if err := json.Unmarshal(consignment, &wc); err != nil {
		return ValidityInvalid, fmt.Errorf("%w: %s", walleterr.ErrInvalidConsignment, err)
	}
	if wc.ContractID != contractID {
		return ValidityInvalid, fmt.Errorf("%w: contract id mismatch", walleterr.ErrInvalidConsignment)
	}
	return ValidityValid, nil
}
