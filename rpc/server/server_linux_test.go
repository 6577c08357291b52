package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/marines/lib/marine"
	"github.com/ValentinKolb/marines/lib/store"
	"github.com/ValentinKolb/marines/rpc/client"
	"github.com/ValentinKolb/marines/rpc/common"
	"github.com/ValentinKolb/marines/rpc/serializer"
	"github.com/ValentinKolb/marines/rpc/transport/base"
	"github.com/ValentinKolb/marines/rpc/transport/tcp"
)

func startServer(t *testing.T, st store.IStore, ser serializer.IRPCSerializer) string {
	t.Helper()
	config := common.ServerConfig{
		Transport: common.ServerTransportConfig{Endpoint: "127.0.0.1:0", Workers: 4},
		LogLevel:  "warning",
	}
	s := NewRPCServer(config, tcp.NewTCPServerTransport(), ser, st)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	deadline := time.Now().Add(5 * time.Second)
	for s.Addr() == nil {
		select {
		case err := <-errCh:
			t.Fatalf("Serve: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
		if err := <-errCh; err != nil {
			t.Errorf("Serve returned %v", err)
		}
	})
	return s.Addr().String()
}

func newClient(t *testing.T, addr string, ser serializer.IRPCSerializer) *client.RPCClient {
	t.Helper()
	c, err := client.NewRPCClient(common.ClientConfig{
		Transport:     common.ClientTransportConfig{Endpoint: addr, RetryCount: 3},
		TimeoutSecond: 5,
	}, tcp.NewTCPClientTransport(), ser)
	if err != nil {
		t.Fatalf("NewRPCClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestEndToEnd(t *testing.T) {
	for _, name := range []string{"json", "gob", "binary"} {
		t.Run(name, func(t *testing.T) {
			ser, err := serializer.New(name)
			if err != nil {
				t.Fatalf("serializer.New: %v", err)
			}
			st, _ := newTestStore(t)
			addr := startServer(t, st, ser)
			c := newClient(t, addr, ser)

			if out, err := c.Register("zoe", "h1"); err != nil || out != MsgRegistered+"\n" {
				t.Fatalf("Register = %q, %v", out, err)
			}
			if out, err := c.Register("zoe", "h2"); err != nil || out != MsgUsernameTaken+"\n" {
				t.Fatalf("second Register = %q, %v", out, err)
			}

			c.Login("zoe", "wrong")
			if err := c.Ping(); !errors.Is(err, client.ErrAuthFailed) {
				t.Fatalf("Ping with wrong password = %v, want ErrAuthFailed", err)
			}
			if _, err := c.Show(); !errors.Is(err, client.ErrAuthFailed) {
				t.Fatalf("Show with wrong password = %v, want ErrAuthFailed", err)
			}

			c.Login("zoe", "h1")
			if err := c.Ping(); err != nil {
				t.Fatalf("Ping: %v", err)
			}
			a := testMarine("Titus", 42.5, marine.CategoryChaplain)
			a.Chapter = &marine.Chapter{Name: "Ultramarines", World: "Macragge"}
			if out, err := c.Insert(1, a); err != nil || out != "" {
				t.Fatalf("Insert = %q, %v", out, err)
			}

			out, err := c.Show()
			if err != nil {
				t.Fatalf("Show: %v", err)
			}
			for _, want := range []string{"Key: 1", "Name: Titus", "Health: 42.5", "Category: CHAPLAIN", "Chapter name: Ultramarines", "Chapter world: Macragge", "Owner: zoe"} {
				if !strings.Contains(out, want) {
					t.Errorf("Show output misses %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestConcurrentClients(t *testing.T) {
	st, _ := newTestStore(t)
	ser := serializer.NewJSONSerializer()
	addr := startServer(t, st, ser)

	const clients, perClient = 8, 25
	var wg sync.WaitGroup
	errCh := make(chan error, clients)
	for i := 0; i < clients; i++ {
		c := newClient(t, addr, ser)
		wg.Add(1)
		go func(i int, c *client.RPCClient) {
			defer wg.Done()
			if _, err := c.Register(fmt.Sprintf("user%d", i), "pw"); err != nil {
				errCh <- err
				return
			}
			for k := 0; k < perClient; k++ {
				key := int64(i*perClient + k)
				out, err := c.Insert(key, testMarine(fmt.Sprintf("m%d", key), float64(key+1), marine.CategoryNone))
				if err != nil || out != "" {
					errCh <- fmt.Errorf("Insert(%d) = %q, %v", key, out, err)
					return
				}
			}
		}(i, c)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}

	records := st.List()
	if len(records) != clients*perClient {
		t.Fatalf("got %d records, want %d", len(records), clients*perClient)
	}
	ids := make(map[int64]bool)
	for _, r := range records {
		if ids[r.ID] {
			t.Fatalf("duplicate id %d", r.ID)
		}
		ids[r.ID] = true
	}
}

func TestUndecodablePayloadClosesConnection(t *testing.T) {
	st, _ := newTestStore(t)
	addr := startServer(t, st, serializer.NewJSONSerializer())

	tests := []struct {
		name    string
		payload string
	}{
		{name: "garbage", payload: "definitely not json"},
		{name: "normal without command", payload: `{"kind":"normal","user":"alice","passHash":"alice-hash"}`},
		{name: "unknown command", payload: `{"kind":"normal","user":"alice","passHash":"alice-hash","command":{"type":"explode"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				t.Fatalf("Dial: %v", err)
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

			frame, err := base.EncodeRequest([]byte(tt.payload))
			if err != nil {
				t.Fatalf("EncodeRequest: %v", err)
			}
			if _, err := conn.Write(frame); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
				t.Errorf("Read() = %v, want EOF", err)
			}
		})
	}
}
