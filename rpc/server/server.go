package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ValentinKolb/marines/lib/store"
	"github.com/ValentinKolb/marines/rpc/common"
	"github.com/ValentinKolb/marines/rpc/serializer"
	"github.com/ValentinKolb/marines/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// RPCServer connects a transport, a serializer and a store
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	adapter    IRPCServerAdapter

	mu        sync.Mutex
	store     store.IStore
	ownsStore bool // the store was opened by init and is closed by Close
	metrics   *http.Server
	closed    bool
}

// NewRPCServer creates a new RPC server
// If st is nil the store is opened from config.Backend when serving starts.
//
// Usage:
//
//	s := server.NewRPCServer(
//		config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewJSONSerializer(),
//		nil,
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	st store.IStore,
) *RPCServer {
	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		adapter:    NewIStoreServerAdapter(),
		store:      st,
	}
}

// Serve initializes the store and blocks serving requests until Close is called
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Addr returns the listening address once the server is serving
func (s *RPCServer) Addr() net.Addr {
	return s.transport.Addr()
}

// Close stops the transport, then the metrics endpoint and the store.
// Requests already executing are finished before the store is closed.
func (s *RPCServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.transport.Close()

	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = s.metrics.Shutdown(ctx)
		cancel()
	}

	common.LogCommandTimers(Logger)

	if s.ownsStore && s.store != nil {
		err = errors.Join(err, s.store.Close())
	}
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *RPCServer) init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("server closed")
	}

	if s.store == nil {
		st, err := OpenStore(context.Background(), s.config.Backend)
		if err != nil {
			return err
		}
		s.store = st
		s.ownsStore = true
	}

	if s.config.MetricsEndpoint != "" {
		if err := s.serveMetrics(); err != nil {
			return err
		}
	}

	s.transport.RegisterHandler(s.handle)
	Logger.Infof("marines setup completed successfully")
	return nil
}

// handle is the transport handler. An error closes the connection.
func (s *RPCServer) handle(payload []byte) (transport.Response, error) {
	var req common.Request
	if err := s.serializer.Deserialize(payload, &req); err != nil {
		return transport.Response{}, fmt.Errorf("failed to deserialize request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return transport.Response{}, fmt.Errorf("invalid request: %w", err)
	}
	return s.adapter.Handle(&req, s.store), nil
}

func (s *RPCServer) serveMetrics() error {
	ln, err := net.Listen("tcp", s.config.MetricsEndpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on metrics endpoint: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		common.WritePrometheus(w)
	})
	s.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics endpoint failed: %v", err)
		}
	}()
	Logger.Infof("Serving metrics on http://%s/metrics", ln.Addr())
	return nil
}
