package invoice

import (
	"errors"
	"testing"

	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

func TestBuildParse_RoundTrip(t *testing.T) {
	expiry := int64(1_700_000_000)
	cases := []struct {
		name string
		data Data
	}{
		{
			name: "fungible with contract and schema",
			data: Data{
				ContractID:         "rgb:5e747bbe-3d4e-4cb6-95d7-2f570d6b6552",
				Schema:             models.SchemaNIA,
				Assignment:         models.Assignment{Kind: models.AssignmentFungible, Amount: 66},
				AssignmentName:     NameAssetOwner,
				Beneficiary:        "utxob1qhx7dacme",
				Expiry:             &expiry,
				TransportEndpoints: []string{"rpc://127.0.0.1:3000/json-rpc", "rpcs://proxy.example.com"},
			},
		},
		{
			name: "anything goes",
			data: Data{
				Assignment:         models.Assignment{Kind: models.AssignmentAny},
				Beneficiary:        "utxob1anyany",
				TransportEndpoints: []string{"rpc://localhost:3000"},
			},
		},
		{
			name: "non-fungible under UDA",
			data: Data{
				ContractID:         "rgb:73d7be51-06ec-4b29-906a-99e0e546f143",
				Schema:             models.SchemaUDA,
				Assignment:         models.Assignment{Kind: models.AssignmentNonFungible},
				AssignmentName:     NameAssetOwner,
				Beneficiary:        "utxob1token",
				TransportEndpoints: []string{"rpc://localhost:3000"},
			},
		},
		{
			name: "inflation right",
			data: Data{
				ContractID:         "rgb:f0465833-23be-4b04-a5e7-0e0c08aefde5",
				Schema:             models.SchemaIFA,
				Assignment:         models.Assignment{Kind: models.AssignmentInflationRight, Amount: 500},
				AssignmentName:     NameInflationAllowance,
				Beneficiary:        "utxob1inflate",
				TransportEndpoints: []string{"rpc://localhost:3000"},
			},
		},
		{
			name: "replace right",
			data: Data{
				ContractID:         "rgb:9a0a9d60-8a2b-4f8d-a84c-9ef5fe2e0437",
				Schema:             models.SchemaIFA,
				Assignment:         models.Assignment{Kind: models.AssignmentReplaceRight},
				AssignmentName:     NameReplaceRight,
				Beneficiary:        "utxob1replace",
				TransportEndpoints: []string{"rpc://localhost:3000"},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.data.Build()
			parsed, err := Parse(s)
			if err != nil {
				t.Fatalf("parse %q: %v", s, err)
			}
			if parsed.ContractID != tc.data.ContractID {
				t.Errorf("contract id: got %q, want %q", parsed.ContractID, tc.data.ContractID)
			}
			if parsed.Schema != tc.data.Schema {
				t.Errorf("schema: got %q, want %q", parsed.Schema, tc.data.Schema)
			}
			if parsed.Assignment != tc.data.Assignment {
				t.Errorf("assignment: got %+v, want %+v", parsed.Assignment, tc.data.Assignment)
			}
			if parsed.Beneficiary != tc.data.Beneficiary {
				t.Errorf("beneficiary: got %q, want %q", parsed.Beneficiary, tc.data.Beneficiary)
			}
			if (parsed.Expiry == nil) != (tc.data.Expiry == nil) {
				t.Fatalf("expiry presence mismatch")
			}
			if parsed.Expiry != nil && *parsed.Expiry != *tc.data.Expiry {
				t.Errorf("expiry: got %d, want %d", *parsed.Expiry, *tc.data.Expiry)
			}
			if len(parsed.TransportEndpoints) != len(tc.data.TransportEndpoints) {
				t.Fatalf("endpoints: got %v, want %v", parsed.TransportEndpoints, tc.data.TransportEndpoints)
			}
			for i := range parsed.TransportEndpoints {
				if parsed.TransportEndpoints[i] != tc.data.TransportEndpoints[i] {
					t.Errorf("endpoint %d: got %q, want %q", i, parsed.TransportEndpoints[i], tc.data.TransportEndpoints[i])
				}
			}
		})
	}
}

func TestParse_UDAVoidState(t *testing.T) {
	parsed, err := Parse("rgb:rgb:contract-a/UDA/~/utxob1uda?assignment_name=assetOwner&endpoints=rpc%3A%2F%2Flocalhost%3A3000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Assignment.Kind != models.AssignmentNonFungible {
		t.Fatalf("expected NonFungible under UDA, got %s", parsed.Assignment.Kind)
	}
}

func TestParse_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		invoice string
		want    error
	}{
		{"not an invoice", "lnbc1pv...", walleterr.ErrInvalidInvoice},
		{"missing beneficiary", "rgb:~/~/~/~", walleterr.ErrInvalidInvoice},
		{"unknown schema", "rgb:~/XXX/~/utxob1x", walleterr.ErrUnknownRgbSchema},
		{"fungible state under UDA", "rgb:c/UDA/12/utxob1x", walleterr.ErrInvalidAssignment},
		{"inflation without amount", "rgb:c/IFA/~/utxob1x?assignment_name=inflationAllowance", walleterr.ErrInvalidAssignment},
		{"replace right with amount", "rgb:c/IFA/10/utxob1x?assignment_name=replaceRight", walleterr.ErrInvalidAssignment},
		{"inflation under NIA", "rgb:c/NIA/10/utxob1x?assignment_name=inflationAllowance", walleterr.ErrInvalidAssignment},
		{"unknown assignment name", "rgb:c/NIA/10/utxob1x?assignment_name=owner", walleterr.ErrInvalidAssignment},
		{"bad endpoint scheme", "rgb:~/~/~/utxob1x?endpoints=http%3A%2F%2Fa", walleterr.ErrUnsupportedTransportType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.invoice)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	cases := []struct {
		name       string
		assignment models.Assignment
		schema     models.Schema
		want       models.Assignment
		wantName   string
		wantErr    bool
	}{
		{"fungible no schema", models.Assignment{Kind: models.AssignmentFungible, Amount: 5}, "", models.Assignment{Kind: models.AssignmentFungible, Amount: 5}, NameAssetOwner, false},
		{"any under NIA becomes open fungible", models.Assignment{Kind: models.AssignmentAny}, models.SchemaNIA, models.Assignment{Kind: models.AssignmentFungible}, NameAssetOwner, false},
		{"any under UDA becomes non-fungible", models.Assignment{Kind: models.AssignmentAny}, models.SchemaUDA, models.Assignment{Kind: models.AssignmentNonFungible}, NameAssetOwner, false},
		{"replace right under IFA", models.Assignment{Kind: models.AssignmentReplaceRight}, models.SchemaIFA, models.Assignment{Kind: models.AssignmentReplaceRight}, NameReplaceRight, false},
		{"any with no schema stays any", models.Assignment{Kind: models.AssignmentAny}, "", models.Assignment{Kind: models.AssignmentAny}, "", false},
		{"non-fungible without schema rejected", models.Assignment{Kind: models.AssignmentNonFungible}, "", models.Assignment{}, "", true},
		{"replace right under NIA rejected", models.Assignment{Kind: models.AssignmentReplaceRight}, models.SchemaNIA, models.Assignment{}, "", true},
		{"fungible under UDA rejected", models.Assignment{Kind: models.AssignmentFungible, Amount: 1}, models.SchemaUDA, models.Assignment{}, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, name, err := Detect(tc.assignment, tc.schema)
			if tc.wantErr {
				if !errors.Is(err, walleterr.ErrInvalidAssignment) {
					t.Fatalf("expected ErrInvalidAssignment, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want || name != tc.wantName {
				t.Fatalf("got (%+v, %q), want (%+v, %q)", got, name, tc.want, tc.wantName)
			}
		})
	}
}

func TestEndpointHTTPURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"rpc://127.0.0.1:3000/json-rpc", "http://127.0.0.1:3000/json-rpc"},
		{"rpcs://proxy.example.com/", "https://proxy.example.com"},
	}
	for _, tc := range cases {
		got, err := EndpointHTTPURL(tc.in)
		if err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDedupEndpoints(t *testing.T) {
	if _, err := DedupEndpoints(nil, 3); !errors.Is(err, walleterr.ErrInvalidTransportEndpoints) {
		t.Fatalf("expected error on empty list, got %v", err)
	}
	if _, err := DedupEndpoints([]string{"rpc://a", "rpc://b", "rpc://c", "rpc://d"}, 3); !errors.Is(err, walleterr.ErrInvalidTransportEndpoints) {
		t.Fatalf("expected error on too many endpoints, got %v", err)
	}
	if _, err := DedupEndpoints([]string{"rpc://a", "rpc://a"}, 3); !errors.Is(err, walleterr.ErrInvalidTransportEndpoints) {
		t.Fatalf("expected error on duplicates, got %v", err)
	}
	eps, err := DedupEndpoints([]string{"rpc://a", "rpcs://b"}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eps) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(eps))
	}
}
