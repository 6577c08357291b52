package mstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/marines/lib/db"
	"github.com/ValentinKolb/marines/lib/db/engines/memory"
	"github.com/ValentinKolb/marines/lib/marine"
	"github.com/ValentinKolb/marines/lib/store"
)

var today = time.Date(2025, 2, 14, 15, 30, 0, 0, time.UTC)

func newMarine(name string, health float64) marine.Marine {
	return marine.Marine{
		Name:        name,
		Coordinates: marine.Coordinates{X: 1, Y: 2},
		Health:      health,
		Category:    marine.CategoryTactical,
		WeaponType:  marine.WeaponBoltRifle,
		MeleeWeapon: marine.MeleeChainSword,
	}
}

func newStore(t *testing.T) (store.IStore, *memory.Backend) {
	t.Helper()
	backend := memory.NewMemoryBackend()
	s, err := NewMirrorStore(context.Background(), backend, Options{
		Timeout: time.Second,
		Now:     func() time.Time { return today },
	})
	if err != nil {
		t.Fatalf("NewMirrorStore: %v", err)
	}
	return s, backend
}

func mustInsert(t *testing.T, s store.IStore, key int64, m marine.Marine, caller string) {
	t.Helper()
	if err := s.Insert(key, m, caller); err != nil {
		t.Fatalf("Insert(%d): %v", key, err)
	}
}

func get(s store.IStore, key int64) (marine.Marine, bool) {
	for _, r := range s.List() {
		if r.Key == key {
			return r, true
		}
	}
	return marine.Marine{}, false
}

func expectCode(t *testing.T, err error, code store.RetCode) {
	t.Helper()
	if got := store.CodeOf(err); got != code {
		t.Fatalf("error code = %v (%v), want %v", got, err, code)
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestInsertAssignsServerFields(t *testing.T) {
	s, _ := newStore(t)

	in := newMarine("Titus", 50)
	in.ID, in.Owner = 999, "mallory"
	mustInsert(t, s, 7, in, "alice")
	mustInsert(t, s, 3, newMarine("Cato", 20), "bob")

	r, ok := get(s, 7)
	if !ok {
		t.Fatalf("record 7 not found")
	}
	if r.ID != 1 || r.Owner != "alice" || !r.CreationDate.Equal(marine.Day(today)) {
		t.Errorf("server fields not assigned: %+v", r)
	}
	if r2, _ := get(s, 3); r2.ID != 2 {
		t.Errorf("second insert id = %d, want 2", r2.ID)
	}
}

func TestInsertDuplicateKey(t *testing.T) {
	s, backend := newStore(t)
	mustInsert(t, s, 1, newMarine("Titus", 50), "alice")
	before := s.List()
	writes := backend.Writes()

	expectCode(t, s.Insert(1, newMarine("Cato", 10), "bob"), store.RetCBadOperation)

	if !reflect.DeepEqual(before, s.List()) {
		t.Errorf("duplicate insert changed the store")
	}
	if backend.Writes() != writes {
		t.Errorf("duplicate insert reached the backend")
	}
}

func TestInsertRemoveParity(t *testing.T) {
	s, _ := newStore(t)
	for i := int64(1); i <= 5; i++ {
		mustInsert(t, s, i, newMarine(fmt.Sprint("m", i), float64(i)), "alice")
	}
	before := s.Info().Count

	mustInsert(t, s, 100, newMarine("extra", 1), "alice")
	if err := s.RemoveKey(100, "alice"); err != nil {
		t.Fatalf("RemoveKey: %v", err)
	}
	if after := s.Info().Count; after != before {
		t.Errorf("count after insert+remove = %d, want %d", after, before)
	}
}

func TestOwnership(t *testing.T) {
	s, _ := newStore(t)
	mustInsert(t, s, 1, newMarine("Titus", 50), "alice")
	original, _ := get(s, 1)

	expectCode(t, s.Update(original.ID, newMarine("Evil", 1), "bob"), store.RetCBadOwner)
	expectCode(t, s.RemoveKey(1, "bob"), store.RetCBadOwner)
	_, err := s.ReplaceIfLower(1, newMarine("Evil", 1), "bob")
	expectCode(t, err, store.RetCBadOwner)

	if r, _ := get(s, 1); !reflect.DeepEqual(r, original) {
		t.Errorf("record changed by foreign user: %+v", r)
	}
}

func TestUpdate(t *testing.T) {
	s, _ := newStore(t)
	mustInsert(t, s, 4, newMarine("Titus", 50), "alice")
	old, _ := get(s, 4)

	expectCode(t, s.Update(42, newMarine("x", 1), "alice"), store.RetCBadOperation)

	repl := newMarine("Cato", 70)
	repl.Key, repl.ID, repl.Owner = 99, 99, "bob"
	if err := s.Update(old.ID, repl, "alice"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := get(s, 4)
	want := repl.WithIdentity(old)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("after update:\n got %+v\nwant %+v", got, want)
	}
}

func TestRemoveKeyMissing(t *testing.T) {
	s, _ := newStore(t)
	expectCode(t, s.RemoveKey(1, "alice"), store.RetCBadOperation)
}

func TestClearOnlyCallersRecords(t *testing.T) {
	s, _ := newStore(t)
	mustInsert(t, s, 1, newMarine("a", 1), "alice")
	mustInsert(t, s, 2, newMarine("b", 1), "bob")
	mustInsert(t, s, 3, newMarine("c", 1), "alice")

	if err := s.Clear("alice"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	list := s.List()
	if len(list) != 1 || list[0].Owner != "bob" {
		t.Errorf("after clear: %+v", list)
	}
	if err := s.Clear("nobody"); err != nil {
		t.Errorf("Clear of a user without records = %v", err)
	}
}

func TestRemoveLower(t *testing.T) {
	s, _ := newStore(t)
	mustInsert(t, s, 1, newMarine("weak", 10), "alice")
	mustInsert(t, s, 2, newMarine("strong", 90), "alice")
	mustInsert(t, s, 3, newMarine("bob's weak", 5), "bob")

	n, err := s.RemoveLower(newMarine("ref", 50), "alice")
	if err != nil {
		t.Fatalf("RemoveLower: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if _, ok := get(s, 1); ok {
		t.Errorf("record 1 should be removed")
	}
	if _, ok := get(s, 3); !ok {
		t.Errorf("other users' records must stay")
	}
}

func TestRemoveLowerKey(t *testing.T) {
	s, _ := newStore(t)
	for _, k := range []int64{-5, 1, 4, 10} {
		mustInsert(t, s, k, newMarine("a", 1), "alice")
	}
	mustInsert(t, s, 2, newMarine("b", 1), "bob")

	n, err := s.RemoveLowerKey(5, "alice")
	if err != nil {
		t.Fatalf("RemoveLowerKey: %v", err)
	}
	if n != 3 {
		t.Errorf("removed %d, want 3", n)
	}
	var keys []int64
	for _, r := range s.List() {
		keys = append(keys, r.Key)
	}
	if !reflect.DeepEqual(keys, []int64{2, 10}) {
		t.Errorf("keys left = %v, want [2 10]", keys)
	}
}

func TestReplaceIfLower(t *testing.T) {
	tests := []struct {
		name     string
		health   float64
		replaced bool
	}{
		{"higher keeps", 80, false},
		{"equal keeps", 50, false},
		{"lower replaces", 20, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newStore(t)
			mustInsert(t, s, 1, newMarine("Titus", 50), "alice")
			old, _ := get(s, 1)

			repl := newMarine("Cato", tt.health)
			replaced, err := s.ReplaceIfLower(1, repl, "alice")
			if err != nil {
				t.Fatalf("ReplaceIfLower: %v", err)
			}
			if replaced != tt.replaced {
				t.Errorf("replaced = %v, want %v", replaced, tt.replaced)
			}

			got, _ := get(s, 1)
			want := old
			if tt.replaced {
				want = repl.WithIdentity(old)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("stored:\n got %+v\nwant %+v", got, want)
			}
		})
	}

	s, _ := newStore(t)
	_, err := s.ReplaceIfLower(1, newMarine("x", 1), "alice")
	expectCode(t, err, store.RetCBadOperation)
}

func TestAscendingIsSortedPermutation(t *testing.T) {
	s, _ := newStore(t)
	healths := []float64{30, 10, 99.5, 10, 0.5, 42}
	for i, h := range healths {
		mustInsert(t, s, int64(i), newMarine(fmt.Sprint("m", i), h), "alice")
	}

	asc := s.Ascending()
	for i := 1; i < len(asc); i++ {
		if asc[i].Health < asc[i-1].Health {
			t.Fatalf("not ascending at %d: %v < %v", i, asc[i].Health, asc[i-1].Health)
		}
	}

	list := s.List()
	sortByKey := func(ms []marine.Marine) {
		sort.Slice(ms, func(i, j int) bool { return ms[i].Key < ms[j].Key })
	}
	sortByKey(asc)
	if !reflect.DeepEqual(asc, list) {
		t.Errorf("Ascending() is not a permutation of List()")
	}
}

func TestInfoAndGroups(t *testing.T) {
	backend := memory.NewMemoryBackend()
	ctx := context.Background()
	days := []time.Time{
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	for i, d := range days {
		r := newMarine("m", 1)
		r.Key, r.ID, r.CreationDate, r.Owner = int64(i), int64(i+1), d, "alice"
		if err := backend.InsertRecord(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	s, err := NewMirrorStore(ctx, backend, Options{})
	if err != nil {
		t.Fatal(err)
	}

	info := s.Info()
	if info.Count != 3 || info.Type != TypeLabel || !info.Newest.Equal(days[0]) {
		t.Errorf("Info() = %+v", info)
	}

	want := []store.DateCount{{Date: days[1], Count: 1}, {Date: days[0], Count: 2}}
	if got := s.GroupCountingByCreationDate(); !reflect.DeepEqual(got, want) {
		t.Errorf("groups = %+v, want %+v", got, want)
	}

	empty, _ := newStore(t)
	if info := empty.Info(); info.Count != 0 || !info.Newest.IsZero() {
		t.Errorf("empty Info() = %+v", info)
	}
}

func TestFilterGreaterThanCategory(t *testing.T) {
	s, _ := newStore(t)
	cats := []marine.Category{marine.CategoryNone, marine.CategoryAggressor, marine.CategoryTactical, marine.CategoryApothecary}
	for i, c := range cats {
		m := newMarine("m", 1)
		m.Category = c
		mustInsert(t, s, int64(i), m, "alice")
	}

	var got []marine.Category
	for _, r := range s.FilterGreaterThanCategory(marine.CategoryInceptor) {
		got = append(got, r.Category)
	}
	want := []marine.Category{marine.CategoryTactical, marine.CategoryApothecary}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("filter = %v, want %v", got, want)
	}

	// every present category is greater than none, the absent one never is
	if n := len(s.FilterGreaterThanCategory(marine.CategoryNone)); n != 3 {
		t.Errorf("filter(none) returned %d records, want 3", n)
	}
}

func TestUsers(t *testing.T) {
	s, _ := newStore(t)
	if err := s.AddUser("alice", "h1"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	expectCode(t, s.AddUser("alice", "h2"), store.RetCBadOperation)

	if !s.CheckUser("alice", "h1") {
		t.Errorf("CheckUser with correct hash failed")
	}
	if s.CheckUser("alice", "h2") || s.CheckUser("bob", "h1") {
		t.Errorf("CheckUser accepted wrong credentials")
	}
}

func TestBackendFailureKeepsMirror(t *testing.T) {
	s, backend := newStore(t)
	mustInsert(t, s, 1, newMarine("Titus", 50), "alice")
	if err := s.AddUser("alice", "h"); err != nil {
		t.Fatal(err)
	}
	before := s.List()
	old := before[0]

	backend.SetFailing(true)
	expectCode(t, s.Insert(2, newMarine("Cato", 10), "alice"), store.RetCDBError)
	expectCode(t, s.Update(old.ID, newMarine("Cato", 10), "alice"), store.RetCDBError)
	expectCode(t, s.RemoveKey(1, "alice"), store.RetCDBError)
	expectCode(t, s.Clear("alice"), store.RetCDBError)
	_, err := s.RemoveLower(newMarine("ref", 100), "alice")
	expectCode(t, err, store.RetCDBError)
	_, err = s.ReplaceIfLower(1, newMarine("Cato", 1), "alice")
	expectCode(t, err, store.RetCDBError)
	_, err = s.RemoveLowerKey(10, "alice")
	expectCode(t, err, store.RetCDBError)
	expectCode(t, s.AddUser("bob", "h"), store.RetCDBError)

	if !reflect.DeepEqual(before, s.List()) {
		t.Errorf("mirror changed after failed writes")
	}
	if s.CheckUser("bob", "h") {
		t.Errorf("user added although the backend failed")
	}

	// the failed insert must not consume an id
	backend.SetFailing(false)
	mustInsert(t, s, 2, newMarine("Cato", 10), "alice")
	if r, _ := get(s, 2); r.ID != 2 {
		t.Errorf("id after failed insert = %d, want 2", r.ID)
	}
}

func TestReloadContinuesIDs(t *testing.T) {
	backend := memory.NewMemoryBackend()
	ctx := context.Background()
	first, err := NewMirrorStore(ctx, backend, Options{})
	if err != nil {
		t.Fatal(err)
	}
	mustInsert(t, first, 10, newMarine("a", 1), "alice")
	mustInsert(t, first, 20, newMarine("b", 1), "alice")
	if err := first.AddUser("alice", "h"); err != nil {
		t.Fatal(err)
	}
	// the highest id must not be handed out again after a restart
	if err := first.RemoveKey(20, "alice"); err != nil {
		t.Fatal(err)
	}

	second, err := NewMirrorStore(ctx, backend, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.List(), second.List()) {
		t.Errorf("reloaded store differs")
	}
	if !second.CheckUser("alice", "h") {
		t.Errorf("user lost on reload")
	}
	mustInsert(t, second, 30, newMarine("c", 1), "alice")
	if r, _ := get(second, 30); r.ID != 3 {
		t.Errorf("id after reload = %d, want 3", r.ID)
	}
}

func TestLoadFailure(t *testing.T) {
	backend := memory.NewMemoryBackend()
	backend.SetFailing(true)
	if _, err := NewMirrorStore(context.Background(), backend, Options{}); err == nil {
		t.Errorf("expected error when the backend cannot be loaded")
	}
}

func TestConcurrentInserts(t *testing.T) {
	s, _ := newStore(t)
	const clients, perClient = 16, 25

	var wg sync.WaitGroup
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			user := fmt.Sprint("user", c)
			for i := 0; i < perClient; i++ {
				key := int64(c*perClient + i)
				if err := s.Insert(key, newMarine(user, float64(i+1)), user); err != nil {
					t.Errorf("Insert(%d): %v", key, err)
				}
			}
		}(c)
	}
	wg.Wait()

	list := s.List()
	if len(list) != clients*perClient {
		t.Fatalf("got %d records, want %d", len(list), clients*perClient)
	}
	ids := make(map[int64]bool, len(list))
	for _, r := range list {
		if ids[r.ID] {
			t.Fatalf("duplicate id %d", r.ID)
		}
		ids[r.ID] = true
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s, _ := newStore(t)
	m := newMarine("Titus", 50)
	m.Chapter = &marine.Chapter{Name: "Ultramarines"}
	mustInsert(t, s, 1, m, "alice")

	s.List()[0].Chapter.Name = "changed"
	if r, _ := get(s, 1); r.Chapter.Name != "Ultramarines" {
		t.Errorf("store shares chapter pointers with callers")
	}
	m.Chapter.Name = "changed too"
	if r, _ := get(s, 1); r.Chapter.Name != "Ultramarines" {
		t.Errorf("store shares chapter pointer with the inserted value")
	}
}

var _ db.IBackend = (*memory.Backend)(nil)
