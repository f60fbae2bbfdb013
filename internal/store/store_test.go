package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testStore(t *testing.T) (*Store, string, func()) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := New(dbPath, testLogger())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s, dbPath, func() {
		s.Close()
		os.Remove(dbPath)
	}
}

func TestStore_PutAndGet(t *testing.T) {
	s, _, cleanup := testStore(t)
	defer cleanup()

	if err := s.PutPortRate(3, 512, 1024); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	rates, err := s.PortRates()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(rates) != 1 {
		t.Fatalf("expected 1 register, got %d", len(rates))
	}

	r := rates[3]
	if r.Ingress != 512 {
		t.Errorf("Ingress: got %d, want 512", r.Ingress)
	}
	if r.Egress != 1024 {
		t.Errorf("Egress: got %d, want 1024", r.Egress)
	}
	if r.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
}

func TestStore_PutOverwrites(t *testing.T) {
	s, _, cleanup := testStore(t)
	defer cleanup()

	for i := uint32(1); i <= 5; i++ {
		if err := s.PutPortRate(1, i*100, i*200); err != nil {
			t.Fatalf("put %d failed: %v", i, err)
		}
	}

	rates, err := s.PortRates()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rates[1].Ingress != 500 || rates[1].Egress != 1000 {
		t.Errorf("got %d/%d, want 500/1000", rates[1].Ingress, rates[1].Egress)
	}
}

func TestStore_Reopen(t *testing.T) {
	s, dbPath, _ := testStore(t)
	if err := s.PutPortRate(2, 64, 128); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	s.Close()

	s, err := New(dbPath, testLogger())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	rates, err := s.PortRates()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rates[2].Ingress != 64 {
		t.Errorf("Ingress after reopen: got %d, want 64", rates[2].Ingress)
	}
}

func TestStore_PruneUnknownPorts(t *testing.T) {
	s, _, cleanup := testStore(t)
	defer cleanup()

	for p := uint32(1); p <= 4; p++ {
		s.PutPortRate(p, 400, 400)
	}

	n, err := s.PruneUnknownPorts([]uint32{1, 3})
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned: got %d, want 2", n)
	}

	rates, _ := s.PortRates()
	if len(rates) != 2 {
		t.Fatalf("expected 2 registers, got %d", len(rates))
	}
	if _, ok := rates[2]; ok {
		t.Error("expected port 2 to be pruned")
	}
}

func TestStore_SkipsCorruptRegister(t *testing.T) {
	s, _, cleanup := testStore(t)
	defer cleanup()

	s.PutPortRate(1, 400, 400)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(ratesBucket).Put(portKey(2), []byte{0xc1})
	})
	if err != nil {
		t.Fatalf("writing corrupt register: %v", err)
	}

	rates, err := s.PortRates()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(rates) != 1 {
		t.Errorf("expected 1 valid register, got %d", len(rates))
	}
}
