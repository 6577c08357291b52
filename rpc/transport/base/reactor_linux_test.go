package base

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/marines/rpc/common"
	"github.com/ValentinKolb/marines/rpc/transport"
)

// --------------------------------------------------------------------------
// Test Connectors
// --------------------------------------------------------------------------

type testServerConnector struct {
	network string // tcp if empty
}

func (c *testServerConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	if c.network == "" {
		return net.Listen("tcp", config.Transport.Endpoint)
	}
	return net.Listen(c.network, config.Transport.Endpoint)
}

func (c *testServerConnector) GetName() string { return "test" }

func (c *testServerConnector) SocketOptions(_ common.ServerConfig) []SocketOption { return nil }

type testClientConnector struct{}

func (c *testClientConnector) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("tcp", endpoint)
}

func (c *testClientConnector) GetName() string { return "test" }

func (c *testClientConnector) UpgradeConnection(_ net.Conn, _ common.ClientConfig) error { return nil }

// echoHandler answers with the payload. Payloads starting with "slow" take a while,
// "fail" makes the handler return an error and "panic" makes it panic.
func echoHandler(req []byte) (transport.Response, error) {
	s := string(req)
	switch {
	case strings.HasPrefix(s, "slow"):
		time.Sleep(100 * time.Millisecond)
	case strings.HasPrefix(s, "fail"):
		return transport.Response{}, errors.New("cannot decode")
	case strings.HasPrefix(s, "panic"):
		panic("boom")
	}
	return transport.Response{Ok: true, Body: req}, nil
}

func startServer(t *testing.T, handler transport.ServerHandleFunc, maxPending int) string {
	t.Helper()
	return startServerOn(t, "tcp", "127.0.0.1:0", handler, maxPending)
}

func startServerOn(t *testing.T, network, endpoint string, handler transport.ServerHandleFunc, maxPending int) string {
	t.Helper()
	srv := NewBaseServerTransport(&testServerConnector{network: network})
	srv.RegisterHandler(handler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(common.ServerConfig{Transport: common.ServerTransportConfig{
			Endpoint:          endpoint,
			Workers:           4,
			MaxPendingPerConn: maxPending,
			MaxMessageSize:    1024,
		}})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() == nil {
		select {
		case err := <-errCh:
			t.Fatalf("Listen: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Cleanup(func() {
		_ = srv.Close()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Listen returned %v after Close", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("Listen did not return after Close")
		}
	})
	return srv.Addr().String()
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestReactorEcho(t *testing.T) {
	addr := startServer(t, echoHandler, 0)
	conn := dial(t, addr)

	if _, err := conn.Write(frameOf("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	resp, err := ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if !resp.Ok || string(resp.Body) != "hello" {
		t.Errorf("response = %+v", resp)
	}
}

func TestReactorPipelinedOrder(t *testing.T) {
	addr := startServer(t, echoHandler, 0)
	conn := dial(t, addr)

	payloads := []string{"slow-1", "fast-2", "slow-3", "fast-4", "fast-5"}
	var stream []byte
	for _, p := range payloads {
		stream = append(stream, frameOf(p)...)
	}
	if _, err := conn.Write(stream); err != nil {
		t.Fatalf("Write: %v", err)
	}

	for _, want := range payloads {
		resp, err := ReadResponse(conn)
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		if string(resp.Body) != want {
			t.Fatalf("response = %q, want %q", resp.Body, want)
		}
	}
}

func TestReactorByteByByte(t *testing.T) {
	addr := startServer(t, echoHandler, 0)
	conn := dial(t, addr)

	for _, b := range frameOf("split") {
		if _, err := conn.Write([]byte{b}); err != nil {
			t.Fatalf("Write: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	resp, err := ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if string(resp.Body) != "split" {
		t.Errorf("response = %q, want split", resp.Body)
	}
}

func TestReactorBackpressure(t *testing.T) {
	addr := startServer(t, echoHandler, 2)
	conn := dial(t, addr)

	const n = 20
	var stream []byte
	for i := 0; i < n; i++ {
		stream = append(stream, frameOf(fmt.Sprintf("msg-%02d", i))...)
	}
	if _, err := conn.Write(stream); err != nil {
		t.Fatalf("Write: %v", err)
	}
	for i := 0; i < n; i++ {
		resp, err := ReadResponse(conn)
		if err != nil {
			t.Fatalf("ReadResponse %d: %v", i, err)
		}
		if want := fmt.Sprintf("msg-%02d", i); string(resp.Body) != want {
			t.Fatalf("response = %q, want %q", resp.Body, want)
		}
	}
}

func TestReactorManyClients(t *testing.T) {
	addr := startServer(t, echoHandler, 0)

	const clients, requests = 16, 25
	var wg sync.WaitGroup
	errCh := make(chan error, clients)
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				errCh <- err
				return
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

			for i := 0; i < requests; i++ {
				want := fmt.Sprintf("client-%d-req-%d", c, i)
				if _, err := conn.Write(frameOf(want)); err != nil {
					errCh <- err
					return
				}
				resp, err := ReadResponse(conn)
				if err != nil {
					errCh <- err
					return
				}
				if string(resp.Body) != want {
					errCh <- fmt.Errorf("response = %q, want %q", resp.Body, want)
					return
				}
			}
		}(c)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}

func TestReactorClosesOnBrokenFrames(t *testing.T) {
	tests := []struct {
		name  string
		bytes func() []byte
	}{
		{name: "zero length", bytes: func() []byte { return make([]byte, RequestHeaderSize) }},
		{name: "oversized", bytes: func() []byte {
			var h [RequestHeaderSize]byte
			binary.BigEndian.PutUint32(h[:], 4096)
			return h[:]
		}},
		{name: "handler error", bytes: func() []byte { return frameOf("fail") }},
		{name: "handler panic", bytes: func() []byte { return frameOf("panic") }},
	}

	addr := startServer(t, echoHandler, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, addr)
			if _, err := conn.Write(tt.bytes()); err != nil {
				t.Fatalf("Write: %v", err)
			}
			buf := make([]byte, 1)
			if _, err := conn.Read(buf); err != io.EOF {
				t.Errorf("Read() = %v, want EOF", err)
			}
		})
	}

	// the server keeps serving other connections
	conn := dial(t, addr)
	if _, err := conn.Write(frameOf("still alive")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if resp, err := ReadResponse(conn); err != nil || string(resp.Body) != "still alive" {
		t.Errorf("response = %+v, %v", resp, err)
	}
}

func TestReactorAnswersBeforeClosingHalfClosed(t *testing.T) {
	addr := startServer(t, echoHandler, 0)
	conn := dial(t, addr)

	if _, err := conn.Write(frameOf("slow-bye")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := conn.(*net.TCPConn).CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}
	resp, err := ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if string(resp.Body) != "slow-bye" {
		t.Errorf("response = %q", resp.Body)
	}
}

func TestReactorKeepsHungUpConnectionUntilAnswered(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := func(req []byte) (transport.Response, error) {
		if string(req) == "block" {
			close(entered)
			<-release
		}
		return transport.Response{Ok: true, Body: req}, nil
	}
	// closing a unix stream socket reports EPOLLHUP (without EPOLLERR) to the server
	sock := filepath.Join(t.TempDir(), "hup.sock")
	addr := startServerOn(t, "unix", sock, handler, 0)
	before := common.ConnectionsActive.Get()

	conn, err := net.Dial("unix", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if _, err := conn.Write(frameOf("block")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
	}
	_ = conn.Close()

	// the response is still executing, the connection stays until it is done
	time.Sleep(50 * time.Millisecond)
	if got := common.ConnectionsActive.Get(); got != before+1 {
		t.Errorf("active connections while answering = %d, want %d", got, before+1)
	}

	close(release)
	deadline := time.Now().Add(5 * time.Second)
	for common.ConnectionsActive.Get() != before {
		if time.Now().After(deadline) {
			t.Fatalf("active connections = %d, want %d after the response", common.ConnectionsActive.Get(), before)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// the event loop still serves other clients
	other, err := net.Dial("unix", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer other.Close()
	_ = other.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := other.Write(frameOf("next")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	resp, err := ReadResponse(other)
	if err != nil || string(resp.Body) != "next" {
		t.Errorf("response = %+v, %v", resp, err)
	}
}

func TestClientTransport(t *testing.T) {
	addr := startServer(t, echoHandler, 0)

	client := NewBaseClientTransport(&testClientConnector{})
	if _, err := client.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send before Connect = %v, want ErrNotConnected", err)
	}
	err := client.Connect(common.ClientConfig{
		Transport:     common.ClientTransportConfig{Endpoint: addr, RetryCount: 2},
		TimeoutSecond: 5,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	for i := 0; i < 10; i++ {
		want := fmt.Sprintf("request %d", i)
		resp, err := client.Send([]byte(want))
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		if !resp.Ok || string(resp.Body) != want {
			t.Fatalf("response = %+v, want %q", resp, want)
		}
	}

	// a broken request costs the connection, the next Send reconnects
	if _, err := client.Send([]byte("fail")); err == nil {
		t.Errorf("Send(fail) should report the closed connection")
	}
	resp, err := client.Send([]byte("again"))
	if err != nil || string(resp.Body) != "again" {
		t.Errorf("Send after reconnect = %+v, %v", resp, err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := client.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after Close = %v, want ErrNotConnected", err)
	}
}

func TestClientConnectFails(t *testing.T) {
	client := NewBaseClientTransport(&testClientConnector{})
	err := client.Connect(common.ClientConfig{Transport: common.ClientTransportConfig{Endpoint: "127.0.0.1:1"}})
	if err == nil {
		t.Errorf("Connect to a closed port should fail")
	}
	if err := client.Connect(common.ClientConfig{}); err == nil {
		t.Errorf("Connect without endpoint should fail")
	}
}
