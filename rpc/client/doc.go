// Package client implements the client side of the marines protocol.
//
// An RPCClient wraps a transport and a serializer and offers one method per
// command. Every request carries the credentials set with Login or Register;
// there is no session, so a client can switch users between requests.
// Passwords never leave the client, only their blake2b-256 digest
// (HashPassword) is sent.
//
// Usage Example:
//
//	c, err := client.NewRPCClient(config, tcp.NewTCPClientTransport(), serializer.NewJSONSerializer())
//	if err != nil {
//	  return err
//	}
//	defer c.Close()
//
//	c.Login("alice", "secret")
//	if err := c.Ping(); errors.Is(err, client.ErrAuthFailed) {
//	  // wrong credentials
//	}
//	out, err := c.Show()
//
// Results are returned as the server rendered them: plain text, one line per
// entry, with domain failures such as "key not found" as regular output.
package client
