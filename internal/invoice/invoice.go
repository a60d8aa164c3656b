// Package invoice builds and parses RGB invoice strings:
//
//	rgb:<contract-id-or-~>/<schema-or-~>/<state-or-~>/<beneficiary>?assignment_name=<n>&expiry=<ts>&endpoints=<e1>,<e2>
//
// The state segment is a u64 amount for fungible assignments and inflation
// rights, <index>@<fraction>
// for non-fungible ones, and ~ (void) otherwise. Assignment names assetOwner /
// inflationAllowance / replaceRight disambiguate the void and amount forms.
package invoice

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// Assignment name disambiguators recognized in invoice query strings.
const (
	NameAssetOwner         = "assetOwner"
	NameInflationAllowance = "inflationAllowance"
	NameReplaceRight       = "replaceRight"
)

const scheme = "rgb:"

// wildcard marks an unspecified invoice segment.
const wildcard = "~"

// Data is the decoded content of an invoice string.
type Data struct {
	ContractID         string        // empty when the invoice accepts any contract
	Schema             models.Schema // empty when the invoice accepts any schema
	Assignment         models.Assignment
	AssignmentName     string
	Beneficiary        string
	Expiry             *int64
	TransportEndpoints []string
}

// Detect maps a requested assignment against the (possibly unknown) schema of
// the invoice's asset, returning the assignment to record on the receiving
// transfer plus the invoice's assignment-name disambiguator. Combinations the
// schema cannot satisfy are rejected up front so a sender of the wrong kind is
// refused before any consignment is built.
func Detect(assignment models.Assignment, schema models.Schema) (models.Assignment, string, error) {
	switch {
	case assignment.Kind == models.AssignmentFungible &&
		(schema == "" || schema == models.SchemaNIA || schema == models.SchemaCFA || schema == models.SchemaIFA):
		return assignment, NameAssetOwner, nil
	case assignment.Kind == models.AssignmentAny && (schema == models.SchemaNIA || schema == models.SchemaCFA):
		return models.Assignment{Kind: models.AssignmentFungible}, NameAssetOwner, nil
	case (assignment.Kind == models.AssignmentNonFungible || assignment.Kind == models.AssignmentAny) &&
		schema == models.SchemaUDA:
		return models.Assignment{Kind: models.AssignmentNonFungible}, NameAssetOwner, nil
	case assignment.Kind == models.AssignmentReplaceRight && schema == models.SchemaIFA:
		return assignment, NameReplaceRight, nil
	case assignment.Kind == models.AssignmentInflationRight && schema == models.SchemaIFA:
		return assignment, NameInflationAllowance, nil
	case assignment.Kind == models.AssignmentAny:
		return assignment, "", nil
	default:
		return models.Assignment{}, "", fmt.Errorf("%w: %s not supported by schema %q",
			walleterr.ErrInvalidAssignment, assignment.Kind, schema)
	}
}

// Build serializes invoice data into the wire string.
func (d Data) Build() string {
	contract := d.ContractID
	if contract == "" {
		contract = wildcard
	}
	schema := string(d.Schema)
	if schema == "" {
		schema = wildcard
	}

	state := wildcard
	switch d.Assignment.Kind {
	case models.AssignmentFungible:
		if d.Assignment.Amount > 0 {
			state = strconv.FormatUint(d.Assignment.Amount, 10)
		}
	case models.AssignmentInflationRight:
		state = strconv.FormatUint(d.Assignment.Amount, 10)
	case models.AssignmentNonFungible:
		// The single UDA token: fixed index, the whole fraction.
		state = "0@1"
	}

	var sb strings.Builder
	sb.WriteString(scheme)
	sb.WriteString(contract)
	sb.WriteByte('/')
	sb.WriteString(schema)
	sb.WriteByte('/')
	sb.WriteString(state)
	sb.WriteByte('/')
	sb.WriteString(d.Beneficiary)

	query := url.Values{}
	if d.AssignmentName != "" {
		query.Set("assignment_name", d.AssignmentName)
	}
	if d.Expiry != nil {
		query.Set("expiry", strconv.FormatInt(*d.Expiry, 10))
	}
	if len(d.TransportEndpoints) > 0 {
		query.Set("endpoints", strings.Join(d.TransportEndpoints, ","))
	}
	if encoded := query.Encode(); encoded != "" {
		sb.WriteByte('?')
		sb.WriteString(encoded)
	}
	return sb.String()
}

// Parse decodes an invoice string, validating the assignment against the
// embedded schema when one is present.
func Parse(s string) (*Data, error) {
	if !strings.HasPrefix(s, scheme) {
		return nil, fmt.Errorf("%w: missing %q prefix", walleterr.ErrInvalidInvoice, scheme)
	}
	body := strings.TrimPrefix(s, scheme)

	var query url.Values
	if qpos := strings.IndexByte(body, '?'); qpos >= 0 {
		var err error
		query, err = url.ParseQuery(body[qpos+1:])
		if err != nil {
			return nil, fmt.Errorf("%w: bad query: %s", walleterr.ErrInvalidInvoice, err)
		}
		body = body[:qpos]
	}

	segments := strings.SplitN(body, "/", 4)
	if len(segments) != 4 {
		return nil, fmt.Errorf("%w: expected contract/schema/state/beneficiary", walleterr.ErrInvalidInvoice)
	}
	contract, schemaSeg, stateSeg, beneficiary := segments[0], segments[1], segments[2], segments[3]
	if beneficiary == "" || beneficiary == wildcard {
		return nil, fmt.Errorf("%w: missing beneficiary", walleterr.ErrInvalidInvoice)
	}

	d := &Data{Beneficiary: beneficiary}
	if contract != wildcard {
		d.ContractID = contract
	}
	if schemaSeg != wildcard {
		schema := models.Schema(schemaSeg)
		if err := CheckSchemaSupport(schema); err != nil {
			return nil, err
		}
		d.Schema = schema
	}
	d.AssignmentName = query.Get("assignment_name")
	switch d.AssignmentName {
	case "", NameAssetOwner, NameInflationAllowance, NameReplaceRight:
	default:
		return nil, fmt.Errorf("%w: unsupported assignment name %q", walleterr.ErrInvalidAssignment, d.AssignmentName)
	}

	assignment, err := parseState(stateSeg, d.AssignmentName, d.Schema)
	if err != nil {
		return nil, err
	}
	d.Assignment = assignment
	if err := checkAssignmentForSchema(assignment, d.AssignmentName, d.Schema); err != nil {
		return nil, err
	}

	if raw := query.Get("expiry"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad expiry %q", walleterr.ErrInvalidInvoice, raw)
		}
		d.Expiry = &ts
	}
	if raw := query.Get("endpoints"); raw != "" {
		for _, ep := range strings.Split(raw, ",") {
			if ep == "" {
				continue
			}
			if _, err := ParseTransportEndpoint(ep); err != nil {
				return nil, err
			}
			d.TransportEndpoints = append(d.TransportEndpoints, ep)
		}
	}
	return d, nil
}

// parseState decodes the state segment using the assignment-name disambiguator.
func parseState(state, name string, schema models.Schema) (models.Assignment, error) {
	if state == "" || state == wildcard {
		switch name {
		case NameReplaceRight:
			return models.Assignment{Kind: models.AssignmentReplaceRight}, nil
		case NameInflationAllowance:
			return models.Assignment{}, fmt.Errorf("%w: unsupported assignment: inflation allowance without amount",
				walleterr.ErrInvalidAssignment)
		case NameAssetOwner:
			if schema == models.SchemaUDA {
				return models.Assignment{Kind: models.AssignmentNonFungible}, nil
			}
			return models.Assignment{Kind: models.AssignmentFungible}, nil
		default:
			return models.Assignment{Kind: models.AssignmentAny}, nil
		}
	}

	if strings.Contains(state, "@") {
		parts := strings.SplitN(state, "@", 2)
		if _, err := strconv.ParseUint(parts[0], 10, 32); err != nil {
			return models.Assignment{}, fmt.Errorf("%w: bad token index %q", walleterr.ErrInvalidInvoice, parts[0])
		}
		if _, err := strconv.ParseUint(parts[1], 10, 64); err != nil {
			return models.Assignment{}, fmt.Errorf("%w: bad token fraction %q", walleterr.ErrInvalidInvoice, parts[1])
		}
		if name == NameInflationAllowance || name == NameReplaceRight {
			return models.Assignment{}, fmt.Errorf("%w: unsupported assignment: non-fungible state under %s",
				walleterr.ErrInvalidAssignment, name)
		}
		return models.Assignment{Kind: models.AssignmentNonFungible}, nil
	}

	amount, err := strconv.ParseUint(state, 10, 64)
	if err != nil {
		return models.Assignment{}, fmt.Errorf("%w: bad state %q", walleterr.ErrInvalidInvoice, state)
	}
	switch name {
	case NameInflationAllowance:
		return models.Assignment{Kind: models.AssignmentInflationRight, Amount: amount}, nil
	case NameReplaceRight:
		return models.Assignment{}, fmt.Errorf("%w: unsupported assignment: replace right with amount",
			walleterr.ErrInvalidAssignment)
	default:
		return models.Assignment{Kind: models.AssignmentFungible, Amount: amount}, nil
	}
}

// checkAssignmentForSchema enforces the per-schema assignment rules once a
// schema is known. With no schema every variant is accepted (the name already
// disambiguated it).
func checkAssignmentForSchema(a models.Assignment, name string, schema models.Schema) error {
	if schema == "" {
		return nil
	}
	ok := false
	switch schema {
	case models.SchemaNIA, models.SchemaCFA:
		ok = a.Kind == models.AssignmentFungible || a.Kind == models.AssignmentAny
	case models.SchemaUDA:
		ok = a.Kind == models.AssignmentNonFungible || a.Kind == models.AssignmentAny
	case models.SchemaIFA:
		switch a.Kind {
		case models.AssignmentFungible:
			ok = name == "" || name == NameAssetOwner
		case models.AssignmentInflationRight:
			ok = name == NameInflationAllowance
		case models.AssignmentReplaceRight:
			ok = name == NameReplaceRight
		case models.AssignmentAny:
			ok = true
		}
	}
	if !ok {
		return fmt.Errorf("%w: unsupported assignment: %s under schema %s", walleterr.ErrInvalidAssignment, a.Kind, schema)
	}
	return nil
}

// CheckSchemaSupport is the single gate every schema-sensitive code path
// funnels through.
func CheckSchemaSupport(schema models.Schema) error {
	switch schema {
	case models.SchemaNIA, models.SchemaUDA, models.SchemaCFA, models.SchemaIFA:
		return nil
	default:
		return fmt.Errorf("%w: %q", walleterr.ErrUnknownRgbSchema, schema)
	}
}
