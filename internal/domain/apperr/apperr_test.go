package apperr

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClasses(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		class   error
		message string
	}{
		{
			name:    "validation with field",
			err:     Validation("items[0].quantity", "must be greater than 0"),
			class:   ErrValidation,
			message: "items[0].quantity: must be greater than 0",
		},
		{
			name:    "validation without field",
			err:     Validation("", "items required"),
			class:   ErrValidation,
			message: "items required",
		},
		{
			name:    "not found",
			err:     NotFound("order", "ORD_20250615_001"),
			class:   ErrNotFound,
			message: "order ORD_20250615_001 not found",
		},
		{
			name:    "conflict",
			err:     Conflict("order", "ORD_20250615_001", "status is %s", "Pagado"),
			class:   ErrConflict,
			message: "order ORD_20250615_001: status is Pagado",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := errors.Wrap(tt.err, "settle")
			assert.ErrorIs(t, wrapped, tt.class)
			assert.Equal(t, tt.message, tt.err.Error())

			for _, other := range []error{ErrValidation, ErrNotFound, ErrConflict} {
				if other != tt.class {
					assert.NotErrorIs(t, wrapped, other)
				}
			}
		})
	}
}

func TestValidationAs(t *testing.T) {
	err := errors.Wrap(Validation("selectedItems[1]", "quantity 3 exceeds available 2"), "settle partial")

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "selectedItems[1]", vErr.Field)
}
