// Package serializer encodes the request payload of the marines protocol. The
// frame around the payload is handled by the transport; this package only
// turns a common.Request into bytes and back.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: Custom binary format. A flag byte announces which
//     optional fields (command, marine, chapter) follow, so absent fields cost
//     nothing. Trailing bytes after a complete request are rejected.
//
//   - gobSerializerImpl: Implementation using Go's built-in gob encoding. The
//     enums travel by name through their text marshalling.
//
//   - jsonSerializerImpl: Implementation using JSON encoding, the default. Useful
//     for debugging since payloads are human-readable.
//
// Client and server must use the same serializer; the server treats a payload
// it cannot decode as a protocol error and closes the connection.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	s, err := serializer.New("json")
//	data, err := s.Serialize(*common.NewAuthCheckRequest("alice", hash))
//	// ... send data ...
//	var req common.Request
//	err = s.Deserialize(data, &req)
package serializer
