package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain error is internal", errors.New("boom"), KindInternal},
		{"validation", Validation("days", "must not be empty"), KindValidation},
		{"wrapped conflict", fmt.Errorf("commit: %w", Conflict("hold expired")), KindConflict},
		{"not found", NotFound("session %s not found", "abc"), KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestValidationNamesField(t *testing.T) {
	err := fmt.Errorf("save: %w", Validation("active_from", "required for trip constraints"))

	assert.Equal(t, "active_from", FieldOf(err))
	assert.Contains(t, Message(err), "active_from")
}

func TestMessageHidesInternalDetail(t *testing.T) {
	err := Internal(errors.New("connection refused"), "load sessions")

	assert.Equal(t, "internal error", Message(err))
	assert.False(t, IsDomain(err))
	assert.True(t, IsDomain(Conflict("x")))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSentinelIdentitySurvivesWrapping(t *testing.T) {
	sentinel := Conflict("hold expired")
	err := fmt.Errorf("finalize: %w", sentinel)

	assert.ErrorIs(t, err, sentinel)
}
