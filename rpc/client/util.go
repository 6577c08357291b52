package client

import (
	"encoding/hex"
	"errors"

	"github.com/ValentinKolb/marines/rpc/common"
	"github.com/ValentinKolb/marines/rpc/serializer"
	"github.com/ValentinKolb/marines/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/crypto/blake2b"
)

var (
	Logger = logger.GetLogger("client")
)

// ErrAuthFailed is returned if the server rejected the credentials of a request
var ErrAuthFailed = errors.New("wrong username or password")

// HashPassword returns the digest sent instead of the password (hex encoded blake2b-256)
func HashPassword(password string) string {
	sum := blake2b.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// rpcClientAdapter is a struct that stores all data needed for an implementation if an RPC client
type rpcClientAdapter struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invokeRPCRequest is a helper function used to send requests
// It takes a request, a transport layer and a serializer as parameters
// It returns the response body and an error if any occurs
// This method also maps a cleared Ok flag to ErrAuthFailed
func invokeRPCRequest(req *common.Request, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (string, error) {
	// Serialize the request
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return "", err
	}

	// Send the request
	resp, err := transport.Send(reqBytes)
	if err != nil {
		return "", err
	}

	// Check if the credentials were accepted
	if !resp.Ok {
		return "", ErrAuthFailed
	}
	return string(resp.Body), nil
}
