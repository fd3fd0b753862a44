package jobs

import "errors"

var (
	// ErrInvalidInput marks malformed creation arguments such as an empty
	// title or a zero budget.
	ErrInvalidInput = errors.New("jobs: invalid input")
	// ErrNotFound marks references to job ids that were never assigned.
	ErrNotFound = errors.New("jobs: job not found")
	// ErrUnauthorized marks callers that are not the required party for an
	// employer-only or freelancer-only operation.
	ErrUnauthorized = errors.New("jobs: caller not authorized")
	// ErrAlreadyAssigned marks applications against a job that already has a
	// freelancer on record.
	ErrAlreadyAssigned = errors.New("jobs: job already taken")
	// ErrAlreadyCompleted marks transitions attempted after the terminal
	// state was reached.
	ErrAlreadyCompleted = errors.New("jobs: job already completed")
	// ErrNotAssigned marks operations that require an assigned freelancer
	// against a job that is still open.
	ErrNotAssigned = errors.New("jobs: job not assigned")
	// ErrEscrowRequired marks applications against jobs with no funds in
	// custody.
	ErrEscrowRequired = errors.New("jobs: no funds escrowed")
	// ErrAmountMismatch marks deposits that do not exactly match the job
	// budget.
	ErrAmountMismatch = errors.New("jobs: deposit must equal budget")
	// ErrWorkNotCompleted marks payment release attempted before the
	// freelancer marked the work done.
	ErrWorkNotCompleted = errors.New("jobs: work not completed")
	// ErrWorkAlreadyCompleted marks refunds or repeat completions after the
	// work flag was set.
	ErrWorkAlreadyCompleted = errors.New("jobs: work already completed")
	// ErrDeadlineNotReached marks refunds attempted before the deadline
	// elapsed.
	ErrDeadlineNotReached = errors.New("jobs: deadline not reached")
	// ErrDeadlinePassed marks late completions when policy rejects them.
	ErrDeadlinePassed = errors.New("jobs: deadline passed")
	// ErrInvalidRating marks ratings outside the 1..5 range.
	ErrInvalidRating = errors.New("jobs: rating must be between 1 and 5")
	// ErrInsufficientBalance marks deposits exceeding the caller's funds.
	ErrInsufficientBalance = errors.New("jobs: insufficient balance")
)
