package reputation

import (
	"errors"
	"fmt"
)

// storage abstracts the subset of state manager functionality required by the
// rating ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var ratingPrefix = []byte("reputation/rating/")

func ratingKey(freelancer [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", ratingPrefix, freelancer))
}

var (
	// ErrLedgerNotInitialised marks calls against an unwired ledger.
	ErrLedgerNotInitialised = errors.New("reputation: ledger not initialised")
	// ErrInvalidRating marks rating values outside the 1..5 range.
	ErrInvalidRating = errors.New("reputation: rating must be between 1 and 5")
)

// Aggregate is the running rating tally for a single freelancer. The average
// is derived, never stored, so the two counters are the whole record.
type Aggregate struct {
	TotalPoints uint64 `json:"totalPoints"`
	Count       uint64 `json:"count"`
}

// Average returns the mean rating, or 0 when no ratings were recorded.
func (a Aggregate) Average() float64 {
	if a.Count == 0 {
		return 0
	}
	return float64(a.TotalPoints) / float64(a.Count)
}

// Ledger persists per-freelancer rating aggregates. Records are created lazily
// on the first rating and live for the lifetime of the identity.
type Ledger struct {
	store storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{store: store}
}

// Record folds a new rating into the freelancer's aggregate and returns the
// updated tally.
func (l *Ledger) Record(freelancer [20]byte, rating uint8) (*Aggregate, error) {
	if l == nil || l.store == nil {
		return nil, ErrLedgerNotInitialised
	}
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	agg, err := l.Get(freelancer)
	if err != nil {
		return nil, err
	}
	agg.TotalPoints += uint64(rating)
	agg.Count++
	if err := l.store.KVPut(ratingKey(freelancer), agg); err != nil {
		return nil, err
	}
	return agg, nil
}

// Get fetches the aggregate for a freelancer. Identities that were never rated
// yield a zero aggregate rather than an error.
func (l *Ledger) Get(freelancer [20]byte) (*Aggregate, error) {
	if l == nil || l.store == nil {
		return nil, ErrLedgerNotInitialised
	}
	agg := &Aggregate{}
	if _, err := l.store.KVGet(ratingKey(freelancer), agg); err != nil {
		return nil, err
	}
	return agg, nil
}
