// internal/settlement/reference_test.go
package settlement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceRoundTrip(t *testing.T) {
	orderID := uuid.New()

	tests := []struct {
		name string
		ref  Reference
	}{
		{"order scheme", NewOrderReference(orderID)},
		{"txn scheme", NewTxnReference(orderID)},
		{"withdrawal scheme", NewWithdrawalReference("a1b2c3d4e5f6g7h8")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseReference(tt.ref.String())
			require.NoError(t, err)
			assert.Equal(t, tt.ref, parsed)
		})
	}
}

func TestReferenceString(t *testing.T) {
	orderID := uuid.MustParse("a7f3a6ab-35a4-4e54-9a5c-7f4f6b2a9c01")

	assert.Equal(t, "txn_a7f3a6ab-35a4-4e54-9a5c-7f4f6b2a9c01", NewTxnReference(orderID).String())
	assert.Equal(t, "order_a7f3a6ab-35a4-4e54-9a5c-7f4f6b2a9c01", NewOrderReference(orderID).String())
	assert.Equal(t, "WD_deadbeef", NewWithdrawalReference("deadbeef").String())
}

func TestParseReferenceRejectsMalformed(t *testing.T) {
	tests := []string{
		"",
		"txn_",
		"txn_not-a-uuid",
		"order_12345",
		"bogus_a7f3a6ab-35a4-4e54-9a5c-7f4f6b2a9c01",
		"noseparator",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ParseReference(input)
			assert.ErrorIs(t, err, ErrInvalidReference)
		})
	}
}
