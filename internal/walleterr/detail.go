package walleterr

import "fmt"

// Detailed wraps a sentinel with structured fields so callers needing more
// than errors.Is can recover them (e.g. InsufficientBitcoins{needed, available}).
// Callers wrap with fmt.Errorf("%w: %s", sentinel, details) for display;
// Detailed keeps that same Error() rendering while also exposing Fields().
type Detailed struct {
	Kind   error
	Msg    string
	Fields map[string]any
}

func (d *Detailed) Error() string {
	if d.Msg == "" {
		return d.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", d.Kind.Error(), d.Msg)
}

func (d *Detailed) Unwrap() error {
	return d.Kind
}

// InsufficientBitcoins builds the {needed, available} payload error.
func InsufficientBitcoins(needed, available uint64) error {
	return &Detailed{
		Kind:   ErrInsufficientBitcoins,
		Msg:    fmt.Sprintf("needed %d sat, available %d sat", needed, available),
		Fields: map[string]any{"needed": needed, "available": available},
	}
}

// InsufficientAssignments builds the {asset_id, available} payload error.
func InsufficientAssignments(assetID string, available uint64) error {
	return &Detailed{
		Kind:   ErrInsufficientAssignments,
		Msg:    fmt.Sprintf("asset %s: available %d", assetID, available),
		Fields: map[string]any{"asset_id": assetID, "available": available},
	}
}

// Inconsistency builds the {details} payload error for consistency-check failures.
func Inconsistency(details string) error {
	return &Detailed{
		Kind:   ErrInconsistency,
		Msg:    details,
		Fields: map[string]any{"details": details},
	}
}

// Internal builds the {details} payload error reserved for logic-invariant violations.
func Internal(details string) error {
	return &Detailed{
		Kind:   ErrInternal,
		Msg:    details,
		Fields: map[string]any{"details": details},
	}
}
