package server

import (
	"github.com/ValentinKolb/marines/lib/store"
	"github.com/ValentinKolb/marines/rpc/common"
	"github.com/ValentinKolb/marines/rpc/transport"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for executing requests against a store
type IRPCServerAdapter interface {
	// Handle executes a decoded and validated request against the store.
	// Domain failures are reported as lines of the response body, only a
	// credential mismatch clears the Ok flag.
	Handle(req *common.Request, store store.IStore) (resp transport.Response)
}
