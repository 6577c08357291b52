package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/marines/lib/db"
	"github.com/ValentinKolb/marines/lib/marine"
)

// Backend is an in-process implementation of db.IBackend.
// Write failures can be injected with SetFailing, which makes it useful to
// test the write-through behaviour of the store.
type Backend struct {
	mu      sync.RWMutex
	records map[int64]marine.Marine
	users   map[string]db.User
	nextID  int64 // high-water mark of inserted ids
	failing atomic.Bool
	writes  atomic.Uint64
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *Backend {
	return &Backend{
		records: make(map[int64]marine.Marine),
		users:   make(map[string]db.User),
		nextID:  1,
	}
}

// SetFailing makes every following call fail with db.ErrUnavailable (or succeed again)
func (b *Backend) SetFailing(failing bool) {
	b.failing.Store(failing)
}

// Writes returns the number of successful write calls
func (b *Backend) Writes() uint64 {
	return b.writes.Load()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.IBackend)
// --------------------------------------------------------------------------

func (b *Backend) LoadRecords(_ context.Context) ([]marine.Marine, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	records := make([]marine.Marine, 0, len(b.records))
	for _, r := range b.records {
		records = append(records, r.Clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

func (b *Backend) LoadUsers(_ context.Context) ([]db.User, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	users := make([]db.User, 0, len(b.users))
	for _, u := range b.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (b *Backend) LoadNextID(_ context.Context) (int64, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextID, nil
}

func (b *Backend) InsertRecord(_ context.Context, record marine.Marine) error {
	return b.write(func() error {
		if _, ok := b.records[record.Key]; ok {
			return fmt.Errorf("duplicate key %d", record.Key)
		}
		b.records[record.Key] = record.Clone()
		b.nextID = max(b.nextID, record.ID+1)
		return nil
	})
}

func (b *Backend) UpdateRecord(_ context.Context, record marine.Marine) error {
	return b.write(func() error {
		if _, ok := b.records[record.Key]; !ok {
			return fmt.Errorf("no record with key %d", record.Key)
		}
		b.records[record.Key] = record.Clone()
		return nil
	})
}

func (b *Backend) DeleteRecord(_ context.Context, key int64) error {
	return b.write(func() error {
		delete(b.records, key)
		return nil
	})
}

func (b *Backend) DeleteRecords(_ context.Context, keys []int64) error {
	return b.write(func() error {
		for _, k := range keys {
			delete(b.records, k)
		}
		return nil
	})
}

func (b *Backend) ClearOwner(_ context.Context, owner string) error {
	return b.write(func() error {
		for k, r := range b.records {
			if r.Owner == owner {
				delete(b.records, k)
			}
		}
		return nil
	})
}

func (b *Backend) InsertUser(_ context.Context, user db.User) error {
	return b.write(func() error {
		if _, ok := b.users[user.Name]; ok {
			return fmt.Errorf("duplicate user %s", user.Name)
		}
		b.users[user.Name] = user
		return nil
	})
}

func (b *Backend) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (b *Backend) check() error {
	if b.failing.Load() {
		return fmt.Errorf("memory backend: %w", db.ErrUnavailable)
	}
	return nil
}

// write runs fn under the write lock unless failures are injected
func (b *Backend) write(fn func() error) error {
	if err := b.check(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := fn(); err != nil {
		return err
	}
	b.writes.Add(1)
	return nil
}
