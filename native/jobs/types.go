package jobs

import (
	"fmt"
	"math/big"
	"strings"
)

// Status represents the lifecycle states of a posted job.
type Status uint8

const (
	// StatusOpen marks a job that is accepting applications.
	StatusOpen Status = iota
	// StatusAssigned marks a job with a freelancer under deadline.
	StatusAssigned
	// StatusCompleted is terminal: payment released and rating recorded.
	StatusCompleted
)

// String renders the status for logs and RPC payloads.
func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusAssigned:
		return "assigned"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusAssigned, StatusCompleted:
		return true
	default:
		return false
	}
}

// Job captures a single marketplace listing. IDs are assigned sequentially at
// creation and never reused; records are mutated in place and never deleted.
type Job struct {
	ID            uint64
	Title         string
	Description   string
	Budget        *big.Int
	Employer      [20]byte
	Freelancer    [20]byte
	Status        Status
	Deadline      int64
	WorkCompleted bool
	Rating        uint8
	CreatedAt     int64
}

// Clone returns a deep copy of the job so callers can safely mutate the copy
// without affecting the stored instance.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	clone := *j
	if j.Budget != nil {
		clone.Budget = new(big.Int).Set(j.Budget)
	} else {
		clone.Budget = big.NewInt(0)
	}
	return &clone
}

// SanitizeJob validates and normalises the supplied job record, returning a
// cloned instance with trimmed text fields and a non-nil budget. The function
// does not mutate the original value.
func SanitizeJob(j *Job) (*Job, error) {
	if j == nil {
		return nil, fmt.Errorf("nil job")
	}
	clone := j.Clone()
	clone.Title = strings.TrimSpace(clone.Title)
	if clone.Title == "" {
		return nil, fmt.Errorf("job title must not be empty")
	}
	if clone.Budget.Sign() <= 0 {
		return nil, fmt.Errorf("job budget must be positive")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid job status: %d", clone.Status)
	}
	if clone.Status == StatusOpen && clone.Freelancer != ([20]byte{}) {
		return nil, fmt.Errorf("open job must not carry a freelancer")
	}
	if clone.Status != StatusOpen && clone.Freelancer == ([20]byte{}) {
		return nil, fmt.Errorf("assigned job requires a freelancer")
	}
	if clone.Rating > 5 {
		return nil, fmt.Errorf("job rating out of range: %d", clone.Rating)
	}
	if clone.Rating > 0 && clone.Status != StatusCompleted {
		return nil, fmt.Errorf("rating requires a completed job")
	}
	return clone, nil
}
