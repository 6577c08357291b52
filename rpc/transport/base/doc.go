// Package base provides the protocol-independent part of the marines transport
// layer. The tcp and unix packages only contribute connectors that create
// listeners and connections; framing, the server event loop and the client
// logic live here.
//
// Wire format:
//
//   - Request frame: 4 byte big-endian payload length followed by the payload.
//     A length of zero or above the configured limit is a protocol error and
//     closes the connection.
//
//   - Response frame: 1 byte ok flag (1 success, 0 failure), 2 byte
//     big-endian body length, then the body. Bodies larger than 65535 bytes
//     are cut after the last complete line and end with TruncationMarker.
//
// Key Components:
//
//   - Decoder: a non-blocking state machine (AwaitingLength, AwaitingBody,
//     MessageReady) that assembles request frames from arbitrarily split reads.
//
//   - serverTransport: owns a reactor, a single goroutine epoll loop (linux
//     only) that accepts connections, reads with bounded non-blocking reads
//     and writes responses when sockets become writable. Decoded requests are
//     handed to a fixed pool of workers through a lock-free queue, so a slow
//     request never blocks the loop.
//
//   - clientTransport: a single connection with one request in flight, with
//     reconnects and retries with exponential backoff for requests that could
//     not be written.
//
// Ordering and Backpressure:
//
//	Responses of one connection are written in request order, even if the
//	workers finish out of order. Once a connection has MaxPendingPerConn
//	unanswered requests the loop stops reading from it until a response has
//	been written.
//
// Thread Safety:
//
//	All public methods are thread-safe. Connection state is guarded by a
//	per-connection mutex shared by the loop and the workers.
package base
