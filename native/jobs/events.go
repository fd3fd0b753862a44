package jobs

import (
	"math/big"
	"strconv"

	"jobboard/core/types"
	"jobboard/crypto"
)

const (
	EventTypeJobPosted       = "jobs.posted"
	EventTypeJobApplied      = "jobs.applied"
	EventTypeFundsEscrowed   = "jobs.fundsEscrowed"
	EventTypeWorkCompleted   = "jobs.workCompleted"
	EventTypePaymentReleased = "jobs.paymentReleased"
	EventTypeJobRefunded     = "jobs.refunded"
)

// NewPostedEvent returns the canonical event payload for a newly posted job.
func NewPostedEvent(j *Job) *types.Event {
	attrs := baseAttributes(j)
	if j != nil {
		attrs["budget"] = formatAmount(j.Budget)
	}
	return &types.Event{Type: EventTypeJobPosted, Attributes: attrs}
}

// NewAppliedEvent returns the canonical event payload emitted when a
// freelancer is assigned to a job.
func NewAppliedEvent(j *Job) *types.Event {
	attrs := baseAttributes(j)
	if j != nil {
		attrs["freelancer"] = formatAddress(j.Freelancer)
		attrs["deadline"] = strconv.FormatInt(j.Deadline, 10)
	}
	return &types.Event{Type: EventTypeJobApplied, Attributes: attrs}
}

// NewEscrowedEvent returns the canonical event payload for an exact-budget
// deposit into custody.
func NewEscrowedEvent(j *Job, amount *big.Int) *types.Event {
	attrs := baseAttributes(j)
	attrs["amount"] = formatAmount(amount)
	return &types.Event{Type: EventTypeFundsEscrowed, Attributes: attrs}
}

// NewWorkCompletedEvent returns the canonical event payload emitted when the
// assigned freelancer marks the deliverable done.
func NewWorkCompletedEvent(j *Job) *types.Event {
	attrs := baseAttributes(j)
	if j != nil {
		attrs["freelancer"] = formatAddress(j.Freelancer)
	}
	return &types.Event{Type: EventTypeWorkCompleted, Attributes: attrs}
}

// NewReleasedEvent returns the canonical event payload for the single payout
// of a job's escrow balance to the freelancer.
func NewReleasedEvent(j *Job, amount *big.Int) *types.Event {
	attrs := baseAttributes(j)
	if j != nil {
		attrs["freelancer"] = formatAddress(j.Freelancer)
	}
	attrs["amount"] = formatAmount(amount)
	return &types.Event{Type: EventTypePaymentReleased, Attributes: attrs}
}

// NewRefundedEvent returns the canonical event payload emitted when escrowed
// funds return to the employer after a missed deadline.
func NewRefundedEvent(j *Job, amount *big.Int) *types.Event {
	attrs := baseAttributes(j)
	attrs["amount"] = formatAmount(amount)
	return &types.Event{Type: EventTypeJobRefunded, Attributes: attrs}
}

func baseAttributes(j *Job) map[string]string {
	attrs := make(map[string]string)
	if j == nil {
		return attrs
	}
	attrs["id"] = strconv.FormatUint(j.ID, 10)
	attrs["employer"] = formatAddress(j.Employer)
	return attrs
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.JobPrefix, addr[:]).String()
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
