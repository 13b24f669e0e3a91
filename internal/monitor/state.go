package monitor

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCounters = []byte("counters")
	bucketBudgets  = []byte("budgets")
	bucketMeta     = []byte("meta")
)

// Budget tracks API consumption for one registered application.
type Budget struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// Exhausted reports whether the budget has run out. A zero limit means
// no budget is configured.
func (b Budget) Exhausted() bool {
	return b.Limit > 0 && b.Used >= b.Limit
}

// State is the monitor's persistent state: running alert counters and
// per-application consumption budgets, in a bbolt database.
type State struct {
	db *bolt.DB
}

// OpenState opens (or creates) the state database.
func OpenState(path string) (*State, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open monitor state: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCounters, bucketBudgets, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init monitor state: %w", err)
	}
	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error { return s.db.Close() }

// IncrCounter bumps a named running counter.
func (s *State) IncrCounter(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		return b.Put([]byte(name), itob(btoi(b.Get([]byte(name)))+1))
	})
}

// Counters returns all running counters.
func (s *State) Counters() (map[string]uint64, error) {
	out := make(map[string]uint64)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCounters).ForEach(func(k, v []byte) error {
			out[string(k)] = btoi(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResetCounters clears every running counter.
func (s *State) ResetCounters() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketCounters); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketCounters)
		return err
	})
}

// SetBudget configures the consumption limit for an application and
// clears any recorded usage, starting a fresh budget period.
func (s *State) SetBudget(app string, limit int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putBudget(tx, app, Budget{Limit: limit})
	})
}

// RecordUsage adds consumed units to an application's budget.
func (s *State) RecordUsage(app string, units int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		budget, err := getBudget(tx, app)
		if err != nil {
			return err
		}
		budget.Used += units
		return putBudget(tx, app, budget)
	})
}

// GetBudget returns an application's budget. Unknown apps get a zero
// budget (no limit configured).
func (s *State) GetBudget(app string) (Budget, error) {
	var budget Budget
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		budget, err = getBudget(tx, app)
		return err
	})
	return budget, err
}

// LastCheck returns when the monitor last completed a pass.
func (s *State) LastCheck() (time.Time, error) {
	var ts time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get([]byte("last_check"))
		if v == nil {
			return nil
		}
		return ts.UnmarshalBinary(v)
	})
	return ts, err
}

// SetLastCheck records a completed pass.
func (s *State) SetLastCheck(ts time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		v, err := ts.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put([]byte("last_check"), v)
	})
}

func getBudget(tx *bolt.Tx, app string) (Budget, error) {
	var budget Budget
	v := tx.Bucket(bucketBudgets).Get([]byte(app))
	if v == nil {
		return budget, nil
	}
	if err := json.Unmarshal(v, &budget); err != nil {
		return budget, fmt.Errorf("decode budget for %s: %w", app, err)
	}
	return budget, nil
}

func putBudget(tx *bolt.Tx, app string, budget Budget) error {
	v, err := json.Marshal(budget)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketBudgets).Put([]byte(app), v)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
