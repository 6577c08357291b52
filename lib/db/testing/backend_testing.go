package testing

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/marines/lib/db"
	"github.com/ValentinKolb/marines/lib/marine"
)

// BackendFactory creates a new, empty instance of an IBackend implementation
type BackendFactory func(t *testing.T) db.IBackend

// RunBackendTests runs a comprehensive test suite for an IBackend implementation.
func RunBackendTests(t *testing.T, name string, factory BackendFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("InsertLoad", func(t *testing.T) {
			testInsertLoad(t, factory(t))
		})

		t.Run("DuplicateKey", func(t *testing.T) {
			testDuplicateKey(t, factory(t))
		})

		t.Run("Update", func(t *testing.T) {
			testUpdate(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("DeleteMany", func(t *testing.T) {
			testDeleteMany(t, factory(t))
		})

		t.Run("ClearOwner", func(t *testing.T) {
			testClearOwner(t, factory(t))
		})

		t.Run("Users", func(t *testing.T) {
			testUsers(t, factory(t))
		})

		t.Run("NextID", func(t *testing.T) {
			testNextID(t, factory(t))
		})

		t.Run("OptionalFields", func(t *testing.T) {
			testOptionalFields(t, factory(t))
		})

		t.Run("ConcurrentWrites", func(t *testing.T) {
			testConcurrentWrites(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Record returns a valid marine with the given key, id and owner
func Record(key, id int64, owner string) marine.Marine {
	return marine.Marine{
		Key:          key,
		ID:           id,
		Name:         fmt.Sprintf("marine-%d", key),
		Coordinates:  marine.Coordinates{X: float64(key), Y: -1.25},
		CreationDate: marine.Day(time.Date(2024, 5, 1+int(key%27), 0, 0, 0, 0, time.UTC)),
		Health:       float64(10 + key),
		Category:     marine.CategoryTactical,
		WeaponType:   marine.WeaponBoltRifle,
		MeleeWeapon:  marine.MeleeChainSword,
		Chapter:      &marine.Chapter{Name: "Ultramarines", World: "Macragge"},
		Owner:        owner,
	}
}

func mustLoad(t *testing.T, backend db.IBackend) map[int64]marine.Marine {
	t.Helper()
	records, err := backend.LoadRecords(context.Background())
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	byKey := make(map[int64]marine.Marine, len(records))
	for _, r := range records {
		byKey[r.Key] = r
	}
	return byKey
}

func mustInsert(t *testing.T, backend db.IBackend, records ...marine.Marine) {
	t.Helper()
	for _, r := range records {
		if err := backend.InsertRecord(context.Background(), r); err != nil {
			t.Fatalf("InsertRecord(%d): %v", r.Key, err)
		}
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testInsertLoad(t *testing.T, backend db.IBackend) {
	defer backend.Close()

	if got := mustLoad(t, backend); len(got) != 0 {
		t.Fatalf("expected empty backend, got %d records", len(got))
	}

	want := []marine.Marine{Record(1, 1, "alice"), Record(2, 2, "bob"), Record(30, 3, "alice")}
	mustInsert(t, backend, want...)

	got := mustLoad(t, backend)
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for _, w := range want {
		if !reflect.DeepEqual(got[w.Key], w) {
			t.Errorf("record %d:\n got %+v\nwant %+v", w.Key, got[w.Key], w)
		}
	}
}

func testDuplicateKey(t *testing.T, backend db.IBackend) {
	defer backend.Close()

	mustInsert(t, backend, Record(1, 1, "alice"))
	if err := backend.InsertRecord(context.Background(), Record(1, 2, "bob")); err == nil {
		t.Errorf("expected error when inserting a duplicate key")
	}
	if got := mustLoad(t, backend); got[1].Owner != "alice" {
		t.Errorf("duplicate insert changed the stored record: %+v", got[1])
	}
}

func testUpdate(t *testing.T, backend db.IBackend) {
	defer backend.Close()

	mustInsert(t, backend, Record(5, 1, "alice"))

	updated := Record(5, 1, "alice")
	updated.Name = "Cato Sicarius"
	updated.Health = 3.5
	updated.Category = marine.CategoryChaplain
	if err := backend.UpdateRecord(context.Background(), updated); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}

	if got := mustLoad(t, backend)[5]; !reflect.DeepEqual(got, updated) {
		t.Errorf("after update:\n got %+v\nwant %+v", got, updated)
	}
}

func testDelete(t *testing.T, backend db.IBackend) {
	defer backend.Close()

	mustInsert(t, backend, Record(1, 1, "alice"), Record(2, 2, "alice"))
	if err := backend.DeleteRecord(context.Background(), 1); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	got := mustLoad(t, backend)
	if _, ok := got[1]; ok {
		t.Errorf("record 1 should be gone")
	}
	if _, ok := got[2]; !ok {
		t.Errorf("record 2 should still exist")
	}

	// deleting an unknown key is not an error
	if err := backend.DeleteRecord(context.Background(), 99); err != nil {
		t.Errorf("DeleteRecord(unknown) = %v, want nil", err)
	}
}

func testDeleteMany(t *testing.T, backend db.IBackend) {
	defer backend.Close()

	var keys []int64
	for i := int64(1); i <= 1200; i++ {
		mustInsert(t, backend, Record(i, i, "alice"))
		if i%2 == 0 {
			keys = append(keys, i)
		}
	}

	if err := backend.DeleteRecords(context.Background(), keys); err != nil {
		t.Fatalf("DeleteRecords: %v", err)
	}
	got := mustLoad(t, backend)
	if len(got) != 600 {
		t.Fatalf("expected 600 records left, got %d", len(got))
	}
	for k := range got {
		if k%2 == 0 {
			t.Fatalf("record %d should have been deleted", k)
		}
	}

	if err := backend.DeleteRecords(context.Background(), nil); err != nil {
		t.Errorf("DeleteRecords(nil) = %v, want nil", err)
	}
}

func testClearOwner(t *testing.T, backend db.IBackend) {
	defer backend.Close()

	mustInsert(t, backend, Record(1, 1, "alice"), Record(2, 2, "bob"), Record(3, 3, "alice"))
	if err := backend.ClearOwner(context.Background(), "alice"); err != nil {
		t.Fatalf("ClearOwner: %v", err)
	}
	got := mustLoad(t, backend)
	if len(got) != 1 || got[2].Owner != "bob" {
		t.Errorf("expected only bob's record to survive, got %+v", got)
	}
}

func testUsers(t *testing.T, backend db.IBackend) {
	defer backend.Close()
	ctx := context.Background()

	if err := backend.InsertUser(ctx, db.User{Name: "alice", PassHash: "aa"}); err != nil {
		t.Fatalf("InsertUser: %v", err)
	}
	if err := backend.InsertUser(ctx, db.User{Name: "bob", PassHash: "bb"}); err != nil {
		t.Fatalf("InsertUser: %v", err)
	}
	if err := backend.InsertUser(ctx, db.User{Name: "alice", PassHash: "cc"}); err == nil {
		t.Errorf("expected error when inserting a duplicate user")
	}

	users, err := backend.LoadUsers(ctx)
	if err != nil {
		t.Fatalf("LoadUsers: %v", err)
	}
	want := map[string]string{"alice": "aa", "bob": "bb"}
	got := make(map[string]string, len(users))
	for _, u := range users {
		got[u.Name] = u.PassHash
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("users = %v, want %v", got, want)
	}
}

func testNextID(t *testing.T, backend db.IBackend) {
	defer backend.Close()
	ctx := context.Background()

	tests := []struct {
		name  string
		write func() error
		want  int64
	}{
		{name: "empty", write: func() error { return nil }, want: 1},
		{name: "insert", write: func() error { return backend.InsertRecord(ctx, Record(1, 5, "alice")) }, want: 6},
		{name: "insert lower id", write: func() error { return backend.InsertRecord(ctx, Record(2, 3, "bob")) }, want: 6},
		{name: "delete highest", write: func() error { return backend.DeleteRecord(ctx, 1) }, want: 6},
		{name: "clear owner", write: func() error { return backend.ClearOwner(ctx, "bob") }, want: 6},
		{name: "insert after delete", write: func() error { return backend.InsertRecord(ctx, Record(3, 6, "alice")) }, want: 7},
		{name: "delete many", write: func() error { return backend.DeleteRecords(ctx, []int64{3}) }, want: 7},
	}
	for _, tt := range tests {
		if err := tt.write(); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		got, err := backend.LoadNextID(ctx)
		if err != nil {
			t.Fatalf("%s: LoadNextID: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: LoadNextID() = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func testOptionalFields(t *testing.T, backend db.IBackend) {
	defer backend.Close()

	noChapter := Record(1, 1, "alice")
	noChapter.Chapter = nil
	noChapter.Category = marine.CategoryNone

	noWorld := Record(2, 2, "alice")
	noWorld.Chapter = &marine.Chapter{Name: "Blood Angels"}

	mustInsert(t, backend, noChapter, noWorld)
	got := mustLoad(t, backend)

	if !reflect.DeepEqual(got[1], noChapter) {
		t.Errorf("record without chapter:\n got %+v\nwant %+v", got[1], noChapter)
	}
	if !reflect.DeepEqual(got[2], noWorld) {
		t.Errorf("record without world:\n got %+v\nwant %+v", got[2], noWorld)
	}
}

func testConcurrentWrites(t *testing.T, backend db.IBackend) {
	defer backend.Close()

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := int64(w*perWorker + i + 1)
				if err := backend.InsertRecord(context.Background(), Record(key, key, "alice")); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent insert failed: %v", err)
	}

	if got := mustLoad(t, backend); len(got) != workers*perWorker {
		t.Errorf("expected %d records, got %d", workers*perWorker, len(got))
	}
}
