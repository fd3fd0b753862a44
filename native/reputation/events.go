package reputation

import (
	"strconv"

	"jobboard/core/types"
	"jobboard/crypto"
)

const (
	// EventTypeFreelancerRated is emitted when a released payment records a
	// rating against the freelancer's aggregate.
	EventTypeFreelancerRated = "reputation.freelancerRated"
)

// NewFreelancerRatedEvent returns the canonical event payload for a recorded
// rating. The aggregate is optional; when present the running tally is
// included so indexers need not recompute it.
func NewFreelancerRatedEvent(freelancer [20]byte, rating uint8, agg *Aggregate) *types.Event {
	attrs := map[string]string{
		"freelancer": crypto.NewAddress(crypto.JobPrefix, freelancer[:]).String(),
		"rating":     strconv.FormatUint(uint64(rating), 10),
	}
	if agg != nil {
		attrs["totalPoints"] = strconv.FormatUint(agg.TotalPoints, 10)
		attrs["count"] = strconv.FormatUint(agg.Count, 10)
	}
	return &types.Event{Type: EventTypeFreelancerRated, Attributes: attrs}
}
