package client

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/ValentinKolb/marines/rpc/common"
	"github.com/ValentinKolb/marines/rpc/serializer"
	"github.com/ValentinKolb/marines/rpc/transport"
)

func TestHashPassword(t *testing.T) {
	a, b := HashPassword("secret"), HashPassword("secret")
	if a != b {
		t.Fatalf("hash is not deterministic")
	}
	if raw, err := hex.DecodeString(a); err != nil || len(raw) != 32 {
		t.Errorf("hash %q is not 32 hex encoded bytes", a)
	}
	if HashPassword("Secret") == a {
		t.Errorf("different passwords share a hash")
	}
}

// fakeTransport records the last request and answers with resp
type fakeTransport struct {
	resp transport.Response
	err  error
	last []byte
}

func (f *fakeTransport) Connect(common.ClientConfig) error { return nil }

func (f *fakeTransport) Send(req []byte) (transport.Response, error) {
	f.last = req
	return f.resp, f.err
}

func (f *fakeTransport) Close() error { return nil }

func TestRequestsCarryCredentials(t *testing.T) {
	ft := &fakeTransport{resp: transport.Response{Ok: true, Body: []byte("type: x\n")}}
	ser := serializer.NewJSONSerializer()
	c, err := NewRPCClient(common.ClientConfig{}, ft, ser)
	if err != nil {
		t.Fatalf("NewRPCClient: %v", err)
	}
	c.Login("alice", "pw")

	out, err := c.Info()
	if err != nil || out != "type: x\n" {
		t.Fatalf("Info() = %q, %v", out, err)
	}

	var req common.Request
	if err := ser.Deserialize(ft.last, &req); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if req.Kind != common.RequestNormal || req.User != "alice" || req.PassHash != HashPassword("pw") {
		t.Errorf("unexpected request %+v", req)
	}
	if req.Command == nil || req.Command.Type != common.CmdInfo {
		t.Errorf("unexpected command %+v", req.Command)
	}
}

func TestAuthFailure(t *testing.T) {
	ft := &fakeTransport{resp: transport.Response{Ok: false}}
	c, err := NewRPCClient(common.ClientConfig{}, ft, serializer.NewJSONSerializer())
	if err != nil {
		t.Fatalf("NewRPCClient: %v", err)
	}
	c.Login("alice", "wrong")
	if err := c.Ping(); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Ping() = %v, want ErrAuthFailed", err)
	}

	ft.err = errors.New("connection reset")
	if _, err := c.Show(); err == nil || errors.Is(err, ErrAuthFailed) {
		t.Errorf("transport errors must be passed through, got %v", err)
	}
}
