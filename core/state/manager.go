package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"jobboard/core/types"
	"jobboard/native/jobs"
	"jobboard/storage"
)

var (
	accountPrefix = []byte("account:")
	jobPrefix     = []byte("jobs/record/")
	jobCountKey   = []byte("jobs/count")
	escrowPrefix  = []byte("jobs/escrow/")
	kvPrefix      = []byte("kv:")
)

// escrowVault is the module-owned custody address. It is derived from a fixed
// label so it can never collide with a key-derived account.
var escrowVault = deriveVaultAddress()

func deriveVaultAddress() [20]byte {
	digest := ethcrypto.Keccak256([]byte("jobboard/escrow/vault"))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

func accountKey(addr []byte) []byte {
	return ethcrypto.Keccak256(append(append([]byte(nil), accountPrefix...), addr...))
}

func jobKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", jobPrefix, id))
}

func escrowKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", escrowPrefix, id))
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(append(append([]byte(nil), kvPrefix...), key...))
}

// Manager provides the persistence layer shared by the job engine, the rating
// ledger, and the bank operations. Values are JSON-encoded into the underlying
// key-value store.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) put(key []byte, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	data, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// --- Accounts ---

// GetAccount loads the ledger account for an address. Unknown addresses yield
// a fresh zero-balance account.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("state: address must not be empty")
	}
	acc := &types.Account{}
	ok, err := m.get(accountKey(addr), acc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.EnsureAccount(nil), nil
	}
	return types.EnsureAccount(acc), nil
}

// PutAccount persists the ledger account for an address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("state: address must not be empty")
	}
	if account == nil {
		return fmt.Errorf("state: account must not be nil")
	}
	return m.put(accountKey(addr), types.EnsureAccount(account))
}

// --- Job arena ---

// JobCount returns the number of jobs ever created. Ids are stable indices
// into this arena; records are never removed.
func (m *Manager) JobCount() (uint64, error) {
	var count uint64
	if _, err := m.get(jobCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// SetJobCount persists the arena size.
func (m *Manager) SetJobCount(count uint64) error {
	return m.put(jobCountKey, count)
}

// JobPut stores the sanitised job record under its id.
func (m *Manager) JobPut(job *jobs.Job) error {
	sanitized, err := jobs.SanitizeJob(job)
	if err != nil {
		return err
	}
	return m.put(jobKey(sanitized.ID), sanitized)
}

// JobGet loads the job record for an id.
func (m *Manager) JobGet(id uint64) (*jobs.Job, bool, error) {
	job := &jobs.Job{}
	ok, err := m.get(jobKey(id), job)
	if err != nil || !ok {
		return nil, false, err
	}
	return job, true, nil
}

// --- Escrow custody ---

type escrowRecord struct {
	Amount *big.Int `json:"amount"`
}

// EscrowBalance returns the funds currently held in custody for a job.
func (m *Manager) EscrowBalance(id uint64) (*big.Int, error) {
	record := &escrowRecord{}
	ok, err := m.get(escrowKey(id), record)
	if err != nil {
		return nil, err
	}
	if !ok || record.Amount == nil {
		return big.NewInt(0), nil
	}
	return record.Amount, nil
}

// EscrowCredit adds funds to a job's custody balance.
func (m *Manager) EscrowCredit(id uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: escrow credit must be non-negative")
	}
	balance, err := m.EscrowBalance(id)
	if err != nil {
		return err
	}
	return m.put(escrowKey(id), &escrowRecord{Amount: new(big.Int).Add(balance, amount)})
}

// EscrowDebit removes funds from a job's custody balance. The balance can
// never go negative.
func (m *Manager) EscrowDebit(id uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: escrow debit must be non-negative")
	}
	balance, err := m.EscrowBalance(id)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("state: escrow balance underflow for job %d", id)
	}
	return m.put(escrowKey(id), &escrowRecord{Amount: new(big.Int).Sub(balance, amount)})
}

// EscrowVaultAddress returns the module custody address.
func (m *Manager) EscrowVaultAddress() [20]byte {
	return escrowVault
}

// --- Generic KV (rating ledger and friends) ---

// KVPut stores the provided value under the supplied key. The key is hashed
// with keccak256 so arbitrary-length keys map onto a uniform keyspace.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.put(kvKey(key), value)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the
// key existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	return m.get(kvKey(key), out)
}
