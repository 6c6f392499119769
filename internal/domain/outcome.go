package domain

// Outcome is the decision the delivery consumer reached for one message.
type Outcome string

const (
	// OutcomeSkip: already delivered, acknowledged without a side effect.
	OutcomeSkip Outcome = "skip"
	// OutcomeSuccess: delivered, marker written, acknowledged.
	OutcomeSuccess Outcome = "success"
	// OutcomeRetry: transient failure, negatively acknowledged with delay.
	OutcomeRetry Outcome = "retry"
	// OutcomeBusy: another worker holds the in-flight lease.
	OutcomeBusy Outcome = "busy"
	// OutcomeDeadLettered: escalated to the dead-letter stream, acknowledged.
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// Terminal reports whether the original message was acknowledged.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeSkip, OutcomeSuccess, OutcomeDeadLettered:
		return true
	default:
		return false
	}
}
