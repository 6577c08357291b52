// Package server implements the marines RPC server. It decodes request
// payloads, checks the credentials every request carries and executes the
// embedded command against the shared store.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for server adapters,
//     with the Handle method that executes a request against a store.IStore.
//
//   - NewIStoreServerAdapter: the dispatcher. Register creates users,
//     AuthCheck only checks credentials and Normal requests run one command
//     as the authenticated caller. Results and domain failures are rendered
//     as text lines (for example "key already present" or "database error");
//     only a credential mismatch clears the response's Ok flag.
//
//   - NewRPCServer: Factory function creating a server from a transport, a
//     serializer and an optional store. Without a store it opens the backend
//     selected by ServerConfig.Backend (memory, sqlite or postgres).
//
// Records sent by clients are validated before they reach the store and
// rejected with "invalid marine: <reason>". A payload that cannot be decoded
// is a protocol error and closes the connection.
//
// If ServerConfig.MetricsEndpoint is set, request, connection and auth
// failure counters are served in the prometheus text format. Per-command
// latency timers are logged when the server is closed.
//
// Thread Safety:
//
//	Requests are executed concurrently by the transport's workers. The
//	dispatcher holds no state of its own; all shared state lives in the store.
//	Serve should be called only once.
package server
