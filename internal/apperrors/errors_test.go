package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"validation", ErrInvalidAmount, KindValidation},
		{"conflict", ErrCodeAlreadyUsed, KindConflict},
		{"resource", ErrNoCodeAvailable, KindResource},
		{"permission", ErrNotMember, KindPermission},
		{"invariant", ErrInvariantViolation, KindInvariant},
		{"wrapped", fmt.Errorf("debit failed: %w", ErrInsufficientBalance), KindConflict},
		{"foreign error", errors.New("boom"), KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	require.False(t, errors.Is(ErrAlreadyReferred, ErrAlreadyCounted), "sentinels with different messages must not match")
	require.ErrorIs(t, fmt.Errorf("wrap: %w", ErrAlreadyReferred), ErrAlreadyReferred)
}
