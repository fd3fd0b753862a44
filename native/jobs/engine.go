package jobs

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"jobboard/core/events"
	"jobboard/core/types"
	"jobboard/native/reputation"
)

var (
	errNilState   = errors.New("jobs engine: state not configured")
	errNilRatings = errors.New("jobs engine: rating ledger not configured")
)

// DefaultWorkWindow is the span between assignment and the refund deadline
// when no policy override is configured.
const DefaultWorkWindow = time.Hour

type engineState interface {
	JobCount() (uint64, error)
	SetJobCount(count uint64) error
	JobPut(*Job) error
	JobGet(id uint64) (*Job, bool, error)
	EscrowBalance(id uint64) (*big.Int, error)
	EscrowCredit(id uint64, amount *big.Int) error
	EscrowDebit(id uint64, amount *big.Int) error
	EscrowVaultAddress() [20]byte
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type jobEvent struct {
	evt *types.Event
}

func (e jobEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e jobEvent) Event() *types.Event { return e.evt }

// Policy carries the configurable business rules that the specification does
// not pin down: the work window applied at assignment, whether a freelancer
// may still flag completion after the deadline, and whether parties other
// than the employer may trigger a deadline refund.
type Policy struct {
	WorkWindow          time.Duration
	AllowLateCompletion bool
	RefundAnyCaller     bool
}

// DefaultPolicy returns the policy used when the configuration is silent.
func DefaultPolicy() Policy {
	return Policy{
		WorkWindow:          DefaultWorkWindow,
		AllowLateCompletion: true,
		RefundAnyCaller:     false,
	}
}

// Engine owns the job registry and its escrow custody rules. Every exported
// operation is a complete transition: it either applies all of its state
// changes or returns an error having applied none. The caller is responsible
// for serialising invocations; the node holds a single lock around the engine.
type Engine struct {
	state   engineState
	ratings *reputation.Ledger
	emitter events.Emitter
	nowFn   func() int64
	policy  Policy
}

// NewEngine creates a job engine with a no-op emitter and the default policy.
// Callers wire state, ratings, and emitter via the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		policy:  DefaultPolicy(),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRatings configures the rating ledger updated on payment release.
func (e *Engine) SetRatings(ledger *reputation.Ledger) { e.ratings = ledger }

// SetPolicy overrides the configurable business rules. Zero work windows fall
// back to the default.
func (e *Engine) SetPolicy(p Policy) {
	if p.WorkWindow <= 0 {
		p.WorkWindow = DefaultWorkWindow
	}
	e.policy = p
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(jobEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) loadJob(id uint64) (*Job, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	job, ok, err := e.state.JobGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return job, nil
}

func (e *Engine) storeJob(job *Job) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.JobPut(job)
}

// transferValue moves base units between two ledger accounts.
func (e *Engine) transferValue(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("jobs: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = types.EnsureAccount(fromAcc)
	toAcc = types.EnsureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// PostJob appends a new open listing and returns it. The id equals the job
// count before the call.
func (e *Engine) PostJob(title, description string, budget *big.Int, caller [20]byte) (*Job, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	trimmedTitle := strings.TrimSpace(title)
	if trimmedTitle == "" {
		return nil, fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	amt := cloneBigInt(budget)
	if amt.Sign() <= 0 {
		return nil, fmt.Errorf("%w: budget must be positive", ErrInvalidInput)
	}
	id, err := e.state.JobCount()
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:          id,
		Title:       trimmedTitle,
		Description: strings.TrimSpace(description),
		Budget:      amt,
		Employer:    caller,
		Status:      StatusOpen,
		CreatedAt:   e.now(),
	}
	if err := e.storeJob(job); err != nil {
		return nil, err
	}
	if err := e.state.SetJobCount(id + 1); err != nil {
		return nil, err
	}
	e.emit(NewPostedEvent(job))
	return job.Clone(), nil
}

// GetJob returns a copy of the stored job record.
func (e *Engine) GetJob(id uint64) (*Job, error) {
	job, err := e.loadJob(id)
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// JobCount returns the number of jobs ever posted.
func (e *Engine) JobCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.JobCount()
}

// Escrowed returns the current custody balance for the job.
func (e *Engine) Escrowed(id uint64) (*big.Int, error) {
	if _, err := e.loadJob(id); err != nil {
		return nil, err
	}
	balance, err := e.state.EscrowBalance(id)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(balance), nil
}

// EscrowFunds moves an exact-budget deposit from the employer into the module
// vault and credits the job's custody balance. Value and intent travel in the
// same call; there is no separate approval step.
func (e *Engine) EscrowFunds(id uint64, amount *big.Int, caller [20]byte) error {
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	switch job.Status {
	case StatusOpen:
	case StatusAssigned:
		return ErrAlreadyAssigned
	default:
		return ErrAlreadyCompleted
	}
	if job.Employer != caller {
		return fmt.Errorf("%w: only the employer funds a job", ErrUnauthorized)
	}
	amt := cloneBigInt(amount)
	if amt.Cmp(job.Budget) != 0 {
		return ErrAmountMismatch
	}
	vault := e.state.EscrowVaultAddress()
	if err := e.transferValue(caller, vault, amt); err != nil {
		return err
	}
	if err := e.state.EscrowCredit(id, amt); err != nil {
		return err
	}
	e.emit(NewEscrowedEvent(job, amt))
	return nil
}

// ApplyForJob assigns the caller as freelancer and starts the work window.
// The first successful application wins; any later caller observes the
// assigned status and fails.
func (e *Engine) ApplyForJob(id uint64, caller [20]byte) error {
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	switch job.Status {
	case StatusOpen:
	case StatusAssigned:
		return ErrAlreadyAssigned
	default:
		return ErrAlreadyCompleted
	}
	balance, err := e.state.EscrowBalance(id)
	if err != nil {
		return err
	}
	if balance == nil || balance.Sign() <= 0 {
		return ErrEscrowRequired
	}
	job.Freelancer = caller
	job.Status = StatusAssigned
	job.Deadline = e.now() + int64(e.policy.WorkWindow/time.Second)
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewAppliedEvent(job))
	return nil
}

// CompleteWork flags the assignment as done, unlocking the employer's release.
// It moves no money and changes no status.
func (e *Engine) CompleteWork(id uint64, caller [20]byte) error {
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	switch job.Status {
	case StatusAssigned:
	case StatusOpen:
		return ErrNotAssigned
	default:
		return ErrAlreadyCompleted
	}
	if job.Freelancer != caller {
		return fmt.Errorf("%w: only the freelancer completes work", ErrUnauthorized)
	}
	if job.WorkCompleted {
		return ErrWorkAlreadyCompleted
	}
	if !e.policy.AllowLateCompletion && e.now() > job.Deadline {
		return ErrDeadlinePassed
	}
	job.WorkCompleted = true
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewWorkCompletedEvent(job))
	return nil
}

// ReleasePayment settles the job: the full custody balance moves to the
// freelancer, the job becomes terminal, and the rating is folded into the
// freelancer's aggregate. The custody balance is zeroed and the terminal
// status persisted before any value leaves the vault, so a reentrant call can
// only observe the completed state and fail.
func (e *Engine) ReleasePayment(id uint64, rating uint8, caller [20]byte) error {
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	switch job.Status {
	case StatusAssigned:
	case StatusOpen:
		return ErrNotAssigned
	default:
		return ErrAlreadyCompleted
	}
	if job.Employer != caller {
		return fmt.Errorf("%w: only the employer releases payment", ErrUnauthorized)
	}
	if !job.WorkCompleted {
		return ErrWorkNotCompleted
	}
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	if e.ratings == nil {
		return errNilRatings
	}
	amount, err := e.state.EscrowBalance(id)
	if err != nil {
		return err
	}
	amount = cloneBigInt(amount)
	if err := e.state.EscrowDebit(id, amount); err != nil {
		return err
	}
	job.Status = StatusCompleted
	job.Rating = rating
	if err := e.storeJob(job); err != nil {
		return err
	}
	vault := e.state.EscrowVaultAddress()
	if err := e.transferValue(vault, job.Freelancer, amount); err != nil {
		return err
	}
	agg, err := e.ratings.Record(job.Freelancer, rating)
	if err != nil {
		return err
	}
	e.emit(NewReleasedEvent(job, amount))
	e.emit(reputation.NewFreelancerRatedEvent(job.Freelancer, rating, agg))
	return nil
}

// RefundEmployer returns the custody balance to the employer once the
// deadline has elapsed with the work flag still unset, and reopens the job.
// This is the only transition out of the assigned state that moves backwards.
func (e *Engine) RefundEmployer(id uint64, caller [20]byte) error {
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	switch job.Status {
	case StatusAssigned:
	case StatusOpen:
		return ErrNotAssigned
	default:
		return ErrAlreadyCompleted
	}
	if !e.policy.RefundAnyCaller && job.Employer != caller {
		return fmt.Errorf("%w: only the employer claims a refund", ErrUnauthorized)
	}
	if job.WorkCompleted {
		return ErrWorkAlreadyCompleted
	}
	if e.now() <= job.Deadline {
		return ErrDeadlineNotReached
	}
	amount, err := e.state.EscrowBalance(id)
	if err != nil {
		return err
	}
	amount = cloneBigInt(amount)
	if err := e.state.EscrowDebit(id, amount); err != nil {
		return err
	}
	job.Status = StatusOpen
	job.Freelancer = [20]byte{}
	job.Deadline = 0
	if err := e.storeJob(job); err != nil {
		return err
	}
	vault := e.state.EscrowVaultAddress()
	if err := e.transferValue(vault, job.Employer, amount); err != nil {
		return err
	}
	e.emit(NewRefundedEvent(job, amount))
	return nil
}
