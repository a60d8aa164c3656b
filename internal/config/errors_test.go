package config

import (
	"errors"
	"testing"
)

func TestErrInvalidConfig_Wrappable(t *testing.T) {
	err := errors.New("boom")
	wrapped := errors.Join(ErrInvalidConfig, err)
	if !errors.Is(wrapped, ErrInvalidConfig) {
		t.Fatalf("expected errors.Is to find ErrInvalidConfig")
	}
}
