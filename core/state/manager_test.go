package state

import (
	"math/big"
	"testing"

	"jobboard/core/types"
	"jobboard/native/jobs"
	"jobboard/storage"
)

func newTestManager() *Manager {
	return NewManager(storage.NewMemDB())
}

func TestAccountRoundTrip(t *testing.T) {
	m := newTestManager()
	addr := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10, 0x11, 0x12, 0x13, 0x14}

	acc, err := m.GetAccount(addr)
	if err != nil {
		t.Fatalf("get fresh: %v", err)
	}
	if acc.Balance.Sign() != 0 || acc.Nonce != 0 {
		t.Fatalf("fresh account must be zeroed, got %+v", acc)
	}

	acc.Balance = big.NewInt(12345)
	acc.Nonce = 7
	if err := m.PutAccount(addr, acc); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, err := m.GetAccount(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Balance.String() != "12345" || loaded.Nonce != 7 {
		t.Fatalf("unexpected account %+v", loaded)
	}
}

func TestJobArena(t *testing.T) {
	m := newTestManager()
	count, err := m.JobCount()
	if err != nil || count != 0 {
		t.Fatalf("fresh arena: count=%d err=%v", count, err)
	}

	var employer [20]byte
	employer[0] = 0x01
	job := &jobs.Job{
		ID:       0,
		Title:    "Web Developer",
		Budget:   big.NewInt(1000),
		Employer: employer,
		Status:   jobs.StatusOpen,
	}
	if err := m.JobPut(job); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.SetJobCount(1); err != nil {
		t.Fatalf("set count: %v", err)
	}

	loaded, ok, err := m.JobGet(0)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if loaded.Title != "Web Developer" || loaded.Budget.String() != "1000" || loaded.Employer != employer {
		t.Fatalf("unexpected job %+v", loaded)
	}
	if _, ok, err := m.JobGet(1); ok || err != nil {
		t.Fatalf("expected miss for unknown id, ok=%v err=%v", ok, err)
	}
	count, _ = m.JobCount()
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
}

func TestJobPutRejectsInvalidRecords(t *testing.T) {
	m := newTestManager()
	if err := m.JobPut(&jobs.Job{ID: 0, Title: "", Budget: big.NewInt(1)}); err == nil {
		t.Fatal("expected empty title to be rejected")
	}
	if err := m.JobPut(nil); err == nil {
		t.Fatal("expected nil job to be rejected")
	}
}

func TestEscrowCustody(t *testing.T) {
	m := newTestManager()

	balance, err := m.EscrowBalance(0)
	if err != nil || balance.Sign() != 0 {
		t.Fatalf("fresh escrow must be zero, got %s err=%v", balance, err)
	}
	if err := m.EscrowCredit(0, big.NewInt(500)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := m.EscrowCredit(1, big.NewInt(250)); err != nil {
		t.Fatalf("credit other: %v", err)
	}
	balance, _ = m.EscrowBalance(0)
	if balance.String() != "500" {
		t.Fatalf("expected 500, got %s", balance)
	}
	if err := m.EscrowDebit(0, big.NewInt(600)); err == nil {
		t.Fatal("expected underflow to be rejected")
	}
	if err := m.EscrowDebit(0, big.NewInt(500)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	balance, _ = m.EscrowBalance(0)
	if balance.Sign() != 0 {
		t.Fatalf("expected zero after debit, got %s", balance)
	}
	// Balances are tracked per job.
	balance, _ = m.EscrowBalance(1)
	if balance.String() != "250" {
		t.Fatalf("expected 250 for job 1, got %s", balance)
	}
}

func TestVaultAddressIsStable(t *testing.T) {
	a := NewManager(storage.NewMemDB()).EscrowVaultAddress()
	b := NewManager(storage.NewMemDB()).EscrowVaultAddress()
	if a != b {
		t.Fatal("vault address must be deterministic")
	}
	if a == ([20]byte{}) {
		t.Fatal("vault address must not be zero")
	}
}

func TestKVRoundTrip(t *testing.T) {
	m := newTestManager()
	type payload struct {
		Name  string `json:"name"`
		Score uint64 `json:"score"`
	}
	ok, err := m.KVGet([]byte("missing"), &payload{})
	if err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if err := m.KVPut([]byte("p"), &payload{Name: "x", Score: 9}); err != nil {
		t.Fatalf("put: %v", err)
	}
	out := &payload{}
	ok, err = m.KVGet([]byte("p"), out)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if out.Name != "x" || out.Score != 9 {
		t.Fatalf("unexpected payload %+v", out)
	}
	if _, err := m.KVGet(nil, out); err == nil {
		t.Fatal("expected empty key to be rejected")
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	db := storage.NewMemDB()
	first := NewManager(db)
	acc := types.EnsureAccount(nil)
	acc.Balance = big.NewInt(42)
	addr := make([]byte, 20)
	addr[19] = 0x01
	if err := first.PutAccount(addr, acc); err != nil {
		t.Fatalf("put account: %v", err)
	}
	if err := first.EscrowCredit(3, big.NewInt(7)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	second := NewManager(db)
	loaded, err := second.GetAccount(addr)
	if err != nil || loaded.Balance.String() != "42" {
		t.Fatalf("account lost across managers: %+v err=%v", loaded, err)
	}
	balance, err := second.EscrowBalance(3)
	if err != nil || balance.String() != "7" {
		t.Fatalf("escrow lost across managers: %s err=%v", balance, err)
	}
}
