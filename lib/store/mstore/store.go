package mstore

import (
	"cmp"
	"context"
	"crypto/subtle"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ValentinKolb/marines/lib/db"
	"github.com/ValentinKolb/marines/lib/marine"
	"github.com/ValentinKolb/marines/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

// TypeLabel is the container label reported by Info
const TypeLabel = "map[int64]marine.Marine"

// Messages of the domain errors. The server prints them as they are.
const (
	MsgKeyPresent   = "key already present"
	MsgKeyNotFound  = "key not found"
	MsgIDNotFound   = "id not found"
	MsgBadOwner     = "marine belongs to another user"
	MsgUsernameUsed = "username taken"
)

// Options configures a mirror store
type Options struct {
	// Timeout bounds every backend call. Zero means no timeout.
	Timeout time.Duration
	// Now returns the current time, used for creation dates. Defaults to time.Now.
	Now func() time.Time
}

type storeImpl struct {
	backend db.IBackend
	opts    Options

	recMu   sync.RWMutex
	records map[int64]marine.Marine // by key
	byID    map[int64]int64         // id -> key
	nextID  int64

	userMu sync.RWMutex
	users  map[string]string // name -> password hash
}

// NewMirrorStore loads all records and users from the backend and returns a
// store that keeps them in memory. Every mutation is written to the backend
// first and applied to the mirror only if that write succeeded.
func NewMirrorStore(ctx context.Context, backend db.IBackend, opts Options) (store.IStore, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &storeImpl{
		backend: backend,
		opts:    opts,
		records: make(map[int64]marine.Marine),
		byID:    make(map[int64]int64),
		nextID:  1,
		users:   make(map[string]string),
	}

	loadCtx, cancel := s.ctx(ctx)
	defer cancel()

	records, err := backend.LoadRecords(loadCtx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	for _, r := range records {
		s.records[r.Key] = r
		s.byID[r.ID] = r.Key
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
	}

	// ids of deleted records are never handed out again
	next, err := backend.LoadNextID(loadCtx)
	if err != nil {
		return nil, fmt.Errorf("load next id: %w", err)
	}
	s.nextID = max(s.nextID, next)

	users, err := backend.LoadUsers(loadCtx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, u := range users {
		s.users[u.Name] = u.PassHash
	}

	log.Infof("loaded %d marines and %d users, next id %d", len(s.records), len(s.users), s.nextID)
	return s, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Info() store.Info {
	s.recMu.RLock()
	defer s.recMu.RUnlock()

	info := store.Info{Type: TypeLabel, Count: len(s.records)}
	for _, r := range s.records {
		if r.CreationDate.After(info.Newest) {
			info.Newest = r.CreationDate
		}
	}
	return info
}

func (s *storeImpl) List() []marine.Marine {
	s.recMu.RLock()
	defer s.recMu.RUnlock()
	return s.sorted(nil, byKey)
}

func (s *storeImpl) Insert(key int64, m marine.Marine, caller string) error {
	s.recMu.Lock()
	defer s.recMu.Unlock()

	if _, ok := s.records[key]; ok {
		return store.NewError(store.RetCBadOperation, MsgKeyPresent)
	}

	r := m.Clone()
	r.Key = key
	r.ID = s.nextID
	r.CreationDate = marine.Day(s.opts.Now())
	r.Owner = caller

	if err := s.write(func(ctx context.Context) error { return s.backend.InsertRecord(ctx, r) }); err != nil {
		return store.NewDBError("insert", err)
	}
	s.records[key] = r
	s.byID[r.ID] = key
	s.nextID++
	return nil
}

func (s *storeImpl) Update(id int64, m marine.Marine, caller string) error {
	s.recMu.Lock()
	defer s.recMu.Unlock()

	key, ok := s.byID[id]
	if !ok {
		return store.NewError(store.RetCBadOperation, MsgIDNotFound)
	}
	return s.replace(s.records[key], m, caller)
}

func (s *storeImpl) RemoveKey(key int64, caller string) error {
	s.recMu.Lock()
	defer s.recMu.Unlock()

	old, ok := s.records[key]
	if !ok {
		return store.NewError(store.RetCBadOperation, MsgKeyNotFound)
	}
	if old.Owner != caller {
		return store.NewError(store.RetCBadOwner, MsgBadOwner)
	}
	if err := s.write(func(ctx context.Context) error { return s.backend.DeleteRecord(ctx, key) }); err != nil {
		return store.NewDBError("remove key", err)
	}
	s.drop(old)
	return nil
}

func (s *storeImpl) Clear(caller string) error {
	s.recMu.Lock()
	defer s.recMu.Unlock()

	if err := s.write(func(ctx context.Context) error { return s.backend.ClearOwner(ctx, caller) }); err != nil {
		return store.NewDBError("clear", err)
	}
	for _, r := range s.records {
		if r.Owner == caller {
			s.drop(r)
		}
	}
	return nil
}

func (s *storeImpl) RemoveLower(ref marine.Marine, caller string) (int, error) {
	return s.removeWhere("remove lower", func(r marine.Marine) bool {
		return r.Owner == caller && marine.Compare(r, ref) < 0
	})
}

func (s *storeImpl) ReplaceIfLower(key int64, m marine.Marine, caller string) (bool, error) {
	s.recMu.Lock()
	defer s.recMu.Unlock()

	old, ok := s.records[key]
	if !ok {
		return false, store.NewError(store.RetCBadOperation, MsgKeyNotFound)
	}
	if old.Owner != caller {
		return false, store.NewError(store.RetCBadOwner, MsgBadOwner)
	}
	if !m.Less(old) {
		return false, nil
	}
	if err := s.replace(old, m, caller); err != nil {
		return false, err
	}
	return true, nil
}

func (s *storeImpl) RemoveLowerKey(key int64, caller string) (int, error) {
	return s.removeWhere("remove lower key", func(r marine.Marine) bool {
		return r.Owner == caller && r.Key < key
	})
}

func (s *storeImpl) GroupCountingByCreationDate() []store.DateCount {
	s.recMu.RLock()
	counts := make(map[time.Time]int)
	for _, r := range s.records {
		counts[marine.Day(r.CreationDate)]++
	}
	s.recMu.RUnlock()

	groups := make([]store.DateCount, 0, len(counts))
	for d, n := range counts {
		groups = append(groups, store.DateCount{Date: d, Count: n})
	}
	slices.SortFunc(groups, func(a, b store.DateCount) int { return a.Date.Compare(b.Date) })
	return groups
}

func (s *storeImpl) FilterGreaterThanCategory(c marine.Category) []marine.Marine {
	s.recMu.RLock()
	defer s.recMu.RUnlock()
	return s.sorted(func(r marine.Marine) bool { return r.Category.GreaterThan(c) }, byKey)
}

func (s *storeImpl) Ascending() []marine.Marine {
	s.recMu.RLock()
	defer s.recMu.RUnlock()
	return s.sorted(nil, func(a, b marine.Marine) int {
		if c := marine.Compare(a, b); c != 0 {
			return c
		}
		return byKey(a, b)
	})
}

func (s *storeImpl) AddUser(name, passHash string) error {
	s.userMu.Lock()
	defer s.userMu.Unlock()

	if _, ok := s.users[name]; ok {
		return store.NewError(store.RetCBadOperation, MsgUsernameUsed)
	}
	u := db.User{Name: name, PassHash: passHash}
	if err := s.write(func(ctx context.Context) error { return s.backend.InsertUser(ctx, u) }); err != nil {
		return store.NewDBError("add user", err)
	}
	s.users[name] = passHash
	return nil
}

func (s *storeImpl) CheckUser(name, passHash string) bool {
	s.userMu.RLock()
	stored, ok := s.users[name]
	s.userMu.RUnlock()

	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(passHash)) == 1
}

func (s *storeImpl) Close() error {
	return s.backend.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *storeImpl) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.opts.Timeout)
}

// write runs a single backend call bounded by the configured timeout
func (s *storeImpl) write(call func(ctx context.Context) error) error {
	ctx, cancel := s.ctx(context.Background())
	defer cancel()
	if err := call(ctx); err != nil {
		log.Warningf("backend write failed: %v", err)
		return err
	}
	return nil
}

// replace writes m with the identity of old
func (s *storeImpl) replace(old, m marine.Marine, caller string) error {
	if old.Owner != caller {
		return store.NewError(store.RetCBadOwner, MsgBadOwner)
	}
	r := m.WithIdentity(old)
	if err := s.write(func(ctx context.Context) error { return s.backend.UpdateRecord(ctx, r) }); err != nil {
		return store.NewDBError("update", err)
	}
	s.records[r.Key] = r
	return nil
}

// drop removes r from the mirror
func (s *storeImpl) drop(r marine.Marine) {
	delete(s.records, r.Key)
	delete(s.byID, r.ID)
}

// removeWhere deletes every record matching pred in one backend call
func (s *storeImpl) removeWhere(op string, pred func(marine.Marine) bool) (int, error) {
	s.recMu.Lock()
	defer s.recMu.Unlock()

	var victims []marine.Marine
	for _, r := range s.records {
		if pred(r) {
			victims = append(victims, r)
		}
	}
	if len(victims) == 0 {
		return 0, nil
	}

	keys := make([]int64, len(victims))
	for i, r := range victims {
		keys[i] = r.Key
	}
	if err := s.write(func(ctx context.Context) error { return s.backend.DeleteRecords(ctx, keys) }); err != nil {
		return 0, store.NewDBError(op, err)
	}
	for _, r := range victims {
		s.drop(r)
	}
	return len(victims), nil
}

// sorted returns clones of all records matching filter (nil matches all). Callers hold recMu.
func (s *storeImpl) sorted(filter func(marine.Marine) bool, order func(a, b marine.Marine) int) []marine.Marine {
	out := make([]marine.Marine, 0, len(s.records))
	for _, r := range s.records {
		if filter == nil || filter(r) {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, order)
	return out
}

func byKey(a, b marine.Marine) int {
	return cmp.Compare(a.Key, b.Key)
}
