package chain

// Verdict is the security classification of an observed transaction.
type Verdict int

const (
	// VerdictSecure: receipt succeeded and the confirmation depth is reached.
	VerdictSecure Verdict = iota
	// VerdictUnconfirmed: not enough confirmations yet, or the depth could not
	// be computed (reorg or lagging node). Retry on a later sweep.
	VerdictUnconfirmed
	// VerdictFailed: the receipt reports on-chain failure. Terminal.
	VerdictFailed
)

// ConfirmationPolicy decides when an observed transaction is safe to act on.
type ConfirmationPolicy struct {
	minConfirmations int64
}

func NewConfirmationPolicy(minConfirmations int64) *ConfirmationPolicy {
	return &ConfirmationPolicy{minConfirmations: minConfirmations}
}

// Confirmations computes the confirmation depth of a transaction mined in
// txBlock given the current head. ok is false when the depth comes out
// negative, which happens when the node answers from behind the block the
// transaction was mined in; callers must treat that as "not yet confirmed",
// never as confirmed.
func (p *ConfirmationPolicy) Confirmations(txBlock, currentBlock uint64) (int64, bool) {
	depth := int64(currentBlock) - int64(txBlock)
	if depth < 0 {
		return depth, false
	}
	return depth, true
}

// Evaluate classifies a transaction from its receipt status and confirmation
// depth. A zero receipt status is an on-chain failure and is terminal
// regardless of depth.
func (p *ConfirmationPolicy) Evaluate(receiptStatus uint64, confirmations int64, depthKnown bool) Verdict {
	if receiptStatus == 0 {
		return VerdictFailed
	}
	if !depthKnown || confirmations < p.minConfirmations {
		return VerdictUnconfirmed
	}
	return VerdictSecure
}
