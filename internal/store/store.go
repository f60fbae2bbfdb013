// Package store provides a BoltDB-backed register store for the per-port
// sampling rates programmed into the switch.
package store

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

var ratesBucket = []byte("port_rates")

// PortRate is the persisted rate register pair of one port.
type PortRate struct {
	Ingress   uint32    `msgpack:"ingress"`
	Egress    uint32    `msgpack:"egress"`
	UpdatedAt time.Time `msgpack:"updated_at"`
}

// Store wraps a bbolt database for port rate registers.
type Store struct {
	db  *bolt.DB
	mu  sync.RWMutex
	log zerolog.Logger
}

// New opens or creates a BoltDB file at the given path.
func New(path string, log zerolog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(ratesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating rates bucket: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close closes the underlying BoltDB.
func (s *Store) Close() error {
	return s.db.Close()
}

func portKey(port uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, port)
}

// PutPortRate records the rates programmed on a port.
func (s *Store) PutPortRate(port, ingress, egress uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := msgpack.Marshal(PortRate{
		Ingress:   ingress,
		Egress:    egress,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshaling port rate: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(ratesBucket).Put(portKey(port), data)
	})
}

// PortRates returns every stored register keyed by port.
func (s *Store) PortRates() (map[uint32]PortRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rates := make(map[uint32]PortRate)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(ratesBucket).ForEach(func(k, v []byte) error {
			if len(k) != 4 {
				s.log.Warn().Hex("key", k).Msg("Skipping malformed register key")
				return nil
			}
			var rate PortRate
			if err := msgpack.Unmarshal(v, &rate); err != nil {
				s.log.Warn().Err(err).Uint32("port", binary.BigEndian.Uint32(k)).Msg("Skipping corrupt register")
				return nil
			}
			rates[binary.BigEndian.Uint32(k)] = rate
			return nil
		})
	})
	return rates, err
}

// PruneUnknownPorts deletes registers of ports not in known and returns how
// many were removed.
func (s *Store) PruneUnknownPorts(known []uint32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[uint32]struct{}, len(known))
	for _, p := range known {
		keep[p] = struct{}{}
	}

	var stale [][]byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(ratesBucket)
		err := b.ForEach(func(k, _ []byte) error {
			if len(k) == 4 {
				if _, ok := keep[binary.BigEndian.Uint32(k)]; ok {
					return nil
				}
			}
			stale = append(stale, append([]byte(nil), k...))
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pruning registers: %w", err)
	}

	if len(stale) > 0 {
		s.log.Info().Int("count", len(stale)).Msg("Pruned registers of removed ports")
	}
	return len(stale), nil
}
