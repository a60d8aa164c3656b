package contractlib

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rgbwallet/rgbwallet/internal/models"
)

func TestRegisterAndImportContract(t *testing.T) {
	s := NewStandIn()
	id, err := s.RegisterContract(context.Background(), RegisterParams{Schema: models.SchemaNIA, Name: "Tether", Ticker: "USDT"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	params, err := s.ImportContract(context.Background(), id)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if params.Name != "Tether" {
		t.Fatalf("expected round-tripped name Tether, got %s", params.Name)
	}
}

func TestSaveLoadValidateConsignment(t *testing.T) {
	s := NewStandIn()
	wc := wireConsignment{
		ContractID:    "rgb:abc",
		Schema:        string(models.SchemaNIA),
		AnchoringTxid: "deadbeef",
		CloseMethod:   string(CloseOpretFirst),
		Assignments: map[string]wireAssignment{
			"seal1": {Kind: string(models.AssignmentFungible), Amount: 66},
		},
	}
	data, err := json.Marshal(wc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	path := filepath.Join(t.TempDir(), "rcv_compose.rgbc")
	if err := s.SaveConsignment(path, data); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := s.LoadConsignment(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	parsed, err := s.ValidateConsignment(context.Background(), loaded)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !parsed.Validity.Acceptable() {
		t.Fatalf("expected acceptable validity")
	}
	if parsed.ReceivedAt["seal1"].Amount != 66 {
		t.Fatalf("expected seal1 amount 66, got %+v", parsed.ReceivedAt["seal1"])
	}

	status, err := s.AcceptTransfer(context.Background(), "rgb:abc", loaded)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if status != ValidityValid {
		t.Fatalf("expected Valid, got %s", status)
	}
}
