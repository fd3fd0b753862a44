package reputation

import (
	"encoding/json"
	"errors"
	"testing"
)

type memKV struct {
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) KVPut(key []byte, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[string(key)] = encoded
	return nil
}

func (m *memKV) KVGet(key []byte, out interface{}) (bool, error) {
	data, ok := m.data[string(key)]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestGetUnratedFreelancer(t *testing.T) {
	ledger := NewLedger(newMemKV())
	agg, err := ledger.Get(testAddr(0x01))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if agg.Count != 0 || agg.TotalPoints != 0 {
		t.Fatalf("expected zero aggregate, got %+v", agg)
	}
	if agg.Average() != 0 {
		t.Fatalf("unrated average must be 0, got %f", agg.Average())
	}
}

func TestRecordAccumulates(t *testing.T) {
	ledger := NewLedger(newMemKV())
	freelancer := testAddr(0x01)

	for i, rating := range []uint8{5, 4, 3, 5} {
		if _, err := ledger.Record(freelancer, rating); err != nil {
			t.Fatalf("record #%d: %v", i, err)
		}
	}
	agg, err := ledger.Get(freelancer)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if agg.TotalPoints != 17 || agg.Count != 4 {
		t.Fatalf("unexpected aggregate %+v", agg)
	}
	if agg.Average() != 4.25 {
		t.Fatalf("expected average 4.25, got %f", agg.Average())
	}
}

func TestRecordValidatesRange(t *testing.T) {
	ledger := NewLedger(newMemKV())
	freelancer := testAddr(0x01)
	for _, rating := range []uint8{0, 6, 200} {
		if _, err := ledger.Record(freelancer, rating); !errors.Is(err, ErrInvalidRating) {
			t.Fatalf("rating %d: expected ErrInvalidRating, got %v", rating, err)
		}
	}
	agg, _ := ledger.Get(freelancer)
	if agg.Count != 0 {
		t.Fatalf("invalid ratings must not be recorded, got %+v", agg)
	}
}

func TestAggregatesAreIndependent(t *testing.T) {
	ledger := NewLedger(newMemKV())
	if _, err := ledger.Record(testAddr(0x01), 5); err != nil {
		t.Fatalf("record: %v", err)
	}
	agg, err := ledger.Get(testAddr(0x02))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if agg.Count != 0 {
		t.Fatalf("aggregates must be keyed per freelancer, got %+v", agg)
	}
}

func TestUnwiredLedgerFails(t *testing.T) {
	var ledger *Ledger
	if _, err := ledger.Get(testAddr(0x01)); !errors.Is(err, ErrLedgerNotInitialised) {
		t.Fatalf("expected ErrLedgerNotInitialised, got %v", err)
	}
	if _, err := NewLedger(nil).Record(testAddr(0x01), 5); !errors.Is(err, ErrLedgerNotInitialised) {
		t.Fatalf("expected ErrLedgerNotInitialised, got %v", err)
	}
}
