package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSellerID(t *testing.T) {
	tests := []struct {
		name       string
		accountKey string
		expectedID string
		ok         bool
	}{
		{
			name:       "seller account",
			accountKey: "seller:42",
			expectedID: "42",
			ok:         true,
		},
		{
			name:       "seller id containing a colon",
			accountKey: "seller:eu:west",
			expectedID: "eu:west",
			ok:         true,
		},
		{
			name:       "commission account is not a seller",
			accountKey: CommissionAccountKey,
			ok:         false,
		},
		{
			name:       "bare prefix has no id",
			accountKey: "seller:",
			ok:         false,
		},
		{
			name:       "unrelated account",
			accountKey: "courier:7",
			ok:         false,
		},
		{
			name:       "empty key",
			accountKey: "",
			ok:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := SellerID(tt.accountKey)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expectedID, id)
		})
	}
}

func TestAccountFlowNet(t *testing.T) {
	assert.Equal(t, int64(550), AccountFlow{Inflow: 600, Outflow: 50}.Net())
	assert.Equal(t, int64(-200), AccountFlow{Inflow: 0, Outflow: 200}.Net())
	assert.Equal(t, int64(0), AccountFlow{}.Net())
}
