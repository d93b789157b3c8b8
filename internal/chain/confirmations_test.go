package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfirmationsDepth(t *testing.T) {
	policy := NewConfirmationPolicy(3)

	depth, ok := policy.Confirmations(100, 105)
	assert.True(t, ok)
	assert.Equal(t, int64(5), depth)

	// node answering from behind the mined block must never read as confirmed
	depth, ok = policy.Confirmations(105, 100)
	assert.False(t, ok)
	assert.Equal(t, int64(-5), depth)

	depth, ok = policy.Confirmations(100, 100)
	assert.True(t, ok)
	assert.Equal(t, int64(0), depth)
}

func TestEvaluate(t *testing.T) {
	policy := NewConfirmationPolicy(3)

	tests := []struct {
		name          string
		receiptStatus uint64
		confirmations int64
		depthKnown    bool
		want          Verdict
	}{
		{"enough confirmations", 1, 3, true, VerdictSecure},
		{"more than enough", 1, 10, true, VerdictSecure},
		{"one short", 1, 2, true, VerdictUnconfirmed},
		{"unknown depth", 1, -5, false, VerdictUnconfirmed},
		{"reverted beats depth", 0, 10, true, VerdictFailed},
		{"reverted and shallow", 0, 0, true, VerdictFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Evaluate(tt.receiptStatus, tt.confirmations, tt.depthKnown)
			assert.Equal(t, tt.want, got)
		})
	}
}
