package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/marines/lib/db/engines/memory"
	"github.com/ValentinKolb/marines/lib/marine"
	"github.com/ValentinKolb/marines/lib/store"
	"github.com/ValentinKolb/marines/lib/store/mstore"
	"github.com/ValentinKolb/marines/rpc/common"
	"github.com/ValentinKolb/marines/rpc/transport"
)

var created = time.Date(2024, 3, 9, 11, 0, 0, 0, time.UTC)

func testMarine(name string, health float64, c marine.Category) marine.Marine {
	return marine.Marine{
		Name:        name,
		Coordinates: marine.Coordinates{X: 3, Y: 4},
		Health:      health,
		Category:    c,
		WeaponType:  marine.WeaponPlasmaGun,
		MeleeWeapon: marine.MeleePowerFist,
	}
}

func newTestStore(t *testing.T) (store.IStore, *memory.Backend) {
	t.Helper()
	backend := memory.NewMemoryBackend()
	st, err := mstore.NewMirrorStore(context.Background(), backend, mstore.Options{
		Timeout: time.Second,
		Now:     func() time.Time { return created },
	})
	if err != nil {
		t.Fatalf("NewMirrorStore: %v", err)
	}
	for _, u := range []string{"alice", "bob"} {
		if err := st.AddUser(u, u+"-hash"); err != nil {
			t.Fatalf("AddUser: %v", err)
		}
	}
	return st, backend
}

func as(user string, cmd *common.Command) *common.Request {
	return common.NewNormalRequest(user, user+"-hash", cmd)
}

func expectBody(t *testing.T, resp transport.Response, want string) {
	t.Helper()
	if !resp.Ok {
		t.Fatalf("response not ok, body %q", resp.Body)
	}
	if string(resp.Body) != want {
		t.Fatalf("body = %q, want %q", resp.Body, want)
	}
}

func TestRegister(t *testing.T) {
	st, _ := newTestStore(t)
	adapter := NewIStoreServerAdapter()

	tests := []struct {
		name string
		req  *common.Request
		want string
	}{
		{name: "new user", req: common.NewRegisterRequest("carol", "h1"), want: MsgRegistered + "\n"},
		{name: "taken", req: common.NewRegisterRequest("carol", "h2"), want: MsgUsernameTaken + "\n"},
		{name: "empty name", req: common.NewRegisterRequest("", "h"), want: MsgMissingUserOrKey + "\n"},
		{name: "empty hash", req: common.NewRegisterRequest("dave", ""), want: MsgMissingUserOrKey + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectBody(t, adapter.Handle(tt.req, st), tt.want)
		})
	}

	if !st.CheckUser("carol", "h1") || st.CheckUser("carol", "h2") {
		t.Errorf("the first registration must win")
	}
}

func TestAuthentication(t *testing.T) {
	st, _ := newTestStore(t)
	adapter := NewIStoreServerAdapter()

	tests := []struct {
		name string
		req  *common.Request
		ok   bool
	}{
		{name: "check ok", req: common.NewAuthCheckRequest("alice", "alice-hash"), ok: true},
		{name: "check wrong hash", req: common.NewAuthCheckRequest("alice", "wrong"), ok: false},
		{name: "check unknown user", req: common.NewAuthCheckRequest("mallory", "x"), ok: false},
		{name: "normal wrong hash", req: common.NewNormalRequest("alice", "wrong", common.NewInsertCommand(1, testMarine("A", 10, marine.CategoryNone))), ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := adapter.Handle(tt.req, st)
			if resp.Ok != tt.ok {
				t.Errorf("Ok = %v, want %v", resp.Ok, tt.ok)
			}
			if len(resp.Body) != 0 {
				t.Errorf("body = %q, want empty", resp.Body)
			}
		})
	}

	if n := st.Info().Count; n != 0 {
		t.Errorf("rejected request changed the store: %d records", n)
	}
}

func TestCommandOutput(t *testing.T) {
	st, _ := newTestStore(t)
	adapter := NewIStoreServerAdapter()
	run := func(user string, cmd *common.Command) transport.Response {
		return adapter.Handle(as(user, cmd), st)
	}

	expectBody(t, run("alice", common.NewInsertCommand(1, testMarine("A", 50, marine.CategoryTactical))), "")
	expectBody(t, run("alice", common.NewInsertCommand(2, testMarine("B", 20, marine.CategoryNone))), "")
	expectBody(t, run("bob", common.NewInsertCommand(3, testMarine("C", 80, marine.CategoryApothecary))), "")

	tests := []struct {
		name string
		user string
		cmd  *common.Command
		want string
	}{
		{name: "duplicate key", user: "bob", cmd: common.NewInsertCommand(1, testMarine("X", 1, marine.CategoryNone)), want: "key already present\n"},
		{name: "update foreign", user: "bob", cmd: common.NewUpdateCommand(1, testMarine("X", 1, marine.CategoryNone)), want: "marine belongs to another user\n"},
		{name: "update missing id", user: "alice", cmd: common.NewUpdateCommand(99, testMarine("X", 1, marine.CategoryNone)), want: "id not found\n"},
		{name: "remove missing key", user: "alice", cmd: common.NewRemoveKeyCommand(99), want: "key not found\n"},
		{name: "remove foreign key", user: "alice", cmd: common.NewRemoveKeyCommand(3), want: "marine belongs to another user\n"},
		{name: "replace missing key", user: "alice", cmd: common.NewReplaceIfLowerCommand(99, testMarine("X", 1, marine.CategoryNone)), want: "key not found\n"},
		{name: "invalid marine", user: "alice", cmd: common.NewInsertCommand(9, testMarine("X", -1, marine.CategoryNone)), want: "invalid marine: health must be > 0\n"},
		{name: "info", user: "alice", cmd: common.NewInfoCommand(), want: "type: map[int64]marine.Marine\nnumber of elements: 3\nnewest marine created on 2024-03-09\n"},
		{name: "group", user: "alice", cmd: common.NewGroupCountingByCreationDateCommand(), want: "2024-03-09: 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectBody(t, run(tt.user, tt.cmd), tt.want)
		})
	}

	if n := st.Info().Count; n != 3 {
		t.Fatalf("failed commands changed the store: %d records", n)
	}

	t.Run("show", func(t *testing.T) {
		body := string(run("bob", common.NewShowCommand()).Body)
		if strings.Count(body, "\n\n") != 3 {
			t.Errorf("expected 3 record blocks:\n%s", body)
		}
		if !strings.HasPrefix(body, "Key: 1\nID: 1\nName: A\n") || !strings.Contains(body, "Owner: alice") {
			t.Errorf("unexpected rendering:\n%s", body)
		}
	})

	t.Run("ascending", func(t *testing.T) {
		body := string(run("alice", common.NewPrintAscendingCommand()).Body)
		b, a, c := strings.Index(body, "Name: B"), strings.Index(body, "Name: A"), strings.Index(body, "Name: C")
		if !(b >= 0 && b < a && a < c) {
			t.Errorf("records not in health order:\n%s", body)
		}
	})

	t.Run("filter", func(t *testing.T) {
		body := string(run("alice", common.NewFilterGreaterThanCategoryCommand(marine.CategoryTactical)).Body)
		if !strings.Contains(body, "Name: C") || strings.Contains(body, "Name: A") || strings.Contains(body, "Name: B") {
			t.Errorf("filter returned the wrong records:\n%s", body)
		}
	})

	t.Run("replace and remove", func(t *testing.T) {
		expectBody(t, run("alice", common.NewReplaceIfLowerCommand(1, testMarine("A2", 5, marine.CategoryNone))), "")
		if body := string(run("alice", common.NewShowCommand()).Body); !strings.Contains(body, "Name: A2") {
			t.Errorf("replace_if_lower did not replace:\n%s", body)
		}
		expectBody(t, run("alice", common.NewRemoveLowerKeyCommand(3)), "")
		expectBody(t, run("bob", common.NewRemoveLowerCommand(testMarine("ref", 1000, marine.CategoryNone))), "")
		expectBody(t, run("alice", common.NewInfoCommand()), "type: map[int64]marine.Marine\nnumber of elements: 0\n")
	})
}

func TestDatabaseError(t *testing.T) {
	st, backend := newTestStore(t)
	adapter := NewIStoreServerAdapter()
	backend.SetFailing(true)

	expectBody(t, adapter.Handle(as("alice", common.NewInsertCommand(1, testMarine("A", 5, marine.CategoryNone))), st), MsgDatabaseError+"\n")
	expectBody(t, adapter.Handle(common.NewRegisterRequest("erin", "h"), st), MsgDatabaseError+"\n")

	// credentials are checked against the mirror and still work
	if resp := adapter.Handle(common.NewAuthCheckRequest("alice", "alice-hash"), st); !resp.Ok {
		t.Errorf("auth check failed while the backend is down")
	}

	backend.SetFailing(false)
	expectBody(t, adapter.Handle(as("alice", common.NewInsertCommand(1, testMarine("A", 5, marine.CategoryNone))), st), "")
}
