package core

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"jobboard/core/events"
	"jobboard/core/state"
	"jobboard/core/types"
	"jobboard/native/bank"
	"jobboard/native/jobs"
	"jobboard/native/reputation"
	"jobboard/storage"
)

// ErrMintUnauthorized marks mint attempts from any address other than the
// configured authority.
var ErrMintUnauthorized = errors.New("core: caller is not the mint authority")

const subscriberBuffer = 64

// Config carries the node-level knobs resolved from the TOML configuration.
type Config struct {
	Policy        jobs.Policy
	MintAuthority [20]byte
}

// JobListing pairs a job record with its current custody balance for batch
// reads by the UI layer.
type JobListing struct {
	Job      *jobs.Job
	Escrowed *big.Int
}

// Node owns the marketplace state machine. Every mutating operation runs under
// a single lock, which gives each call the strict total order the engine
// relies on: no call can observe a partially-applied effect of another.
type Node struct {
	mu      sync.Mutex
	state   *state.Manager
	engine  *jobs.Engine
	ratings *reputation.Ledger

	recorder      *events.Recorder
	subMu         sync.Mutex
	subscribers   map[string]chan *types.Event
	mintAuthority [20]byte
}

// NewNode wires the state manager, rating ledger, and job engine over the
// provided database.
func NewNode(db storage.Database, cfg Config) *Node {
	manager := state.NewManager(db)
	ratings := reputation.NewLedger(manager)
	engine := jobs.NewEngine()
	engine.SetState(manager)
	engine.SetRatings(ratings)
	engine.SetPolicy(cfg.Policy)

	node := &Node{
		state:         manager,
		engine:        engine,
		ratings:       ratings,
		recorder:      events.NewRecorder(),
		subscribers:   make(map[string]chan *types.Event),
		mintAuthority: cfg.MintAuthority,
	}
	engine.SetEmitter(node)
	return node
}

// SetNowFunc overrides the engine clock. Intended for tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.engine.SetNowFunc(now)
}

// Emit implements events.Emitter: every event is appended to the replayable
// log and fanned out to websocket subscribers. Slow subscribers are dropped
// rather than allowed to block a state transition.
func (n *Node) Emit(evt events.Event) {
	if n == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	n.recorder.Emit(evt)
	n.subMu.Lock()
	defer n.subMu.Unlock()
	for _, ch := range n.subscribers {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Events returns the full event log in emission order.
func (n *Node) Events() []*types.Event {
	return n.recorder.Events()
}

// SubscribeEvents registers a live event feed. The returned backlog holds
// everything emitted before the subscription; the channel carries everything
// after. The cancel function must be called when the consumer is done.
func (n *Node) SubscribeEvents(ctx context.Context) (<-chan *types.Event, func(), []*types.Event) {
	id := uuid.NewString()
	ch := make(chan *types.Event, subscriberBuffer)

	n.subMu.Lock()
	backlog := n.recorder.Events()
	n.subscribers[id] = ch
	n.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.subMu.Lock()
			delete(n.subscribers, id)
			n.subMu.Unlock()
			close(ch)
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return ch, cancel, backlog
}

// --- Job registry operations ---

func (n *Node) PostJob(title, description string, budget *big.Int, caller [20]byte) (*jobs.Job, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.PostJob(title, description, budget, caller)
}

func (n *Node) GetJob(id uint64) (*jobs.Job, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetJob(id)
}

func (n *Node) JobCount() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.JobCount()
}

// ListJobs returns every job ever posted along with its custody balance.
func (n *Node) ListJobs() ([]JobListing, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	count, err := n.engine.JobCount()
	if err != nil {
		return nil, err
	}
	listings := make([]JobListing, 0, count)
	for id := uint64(0); id < count; id++ {
		job, err := n.engine.GetJob(id)
		if err != nil {
			return nil, err
		}
		escrowed, err := n.engine.Escrowed(id)
		if err != nil {
			return nil, err
		}
		listings = append(listings, JobListing{Job: job, Escrowed: escrowed})
	}
	return listings, nil
}

func (n *Node) EscrowFunds(id uint64, amount *big.Int, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.EscrowFunds(id, amount, caller)
}

func (n *Node) ApplyForJob(id uint64, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.ApplyForJob(id, caller)
}

func (n *Node) CompleteWork(id uint64, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.CompleteWork(id, caller)
}

func (n *Node) ReleasePayment(id uint64, rating uint8, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.ReleasePayment(id, rating, caller)
}

func (n *Node) RefundEmployer(id uint64, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.RefundEmployer(id, caller)
}

func (n *Node) Escrowed(id uint64) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Escrowed(id)
}

// --- Rating ledger reads ---

func (n *Node) FreelancerRating(addr [20]byte) (*reputation.Aggregate, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ratings.Get(addr)
}

// --- Bank operations ---

func (n *Node) GetBalance(addr [20]byte) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	acc, err := n.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

func (n *Node) Transfer(from, to [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := bank.Transfer(n.state, from, to, amount); err != nil {
		return err
	}
	n.Emit(events.BankTransfer{From: from, To: to, Amount: amount})
	return nil
}

// Mint credits new base units. Only the configured authority may call it.
func (n *Node) Mint(caller, to [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if caller != n.mintAuthority || n.mintAuthority == ([20]byte{}) {
		return ErrMintUnauthorized
	}
	if err := bank.Mint(n.state, to, amount); err != nil {
		return err
	}
	n.Emit(events.BankMint{To: to, Amount: amount})
	return nil
}
