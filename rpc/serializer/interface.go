package serializer

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/marines/rpc/common"
)

// IRPCSerializer is the interface for all request serializers
type IRPCSerializer interface {
	// Serialize serializes a Request into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(req common.Request) ([]byte, error)
	// Deserialize deserializes a byte array into a Request
	// It takes a byte array and a pointer to a Request as parameters
	// It returns an error if any
	Deserialize(b []byte, req *common.Request) error
}

// New returns the serializer with the given name (json, gob or binary)
func New(name string) (IRPCSerializer, error) {
	switch strings.ToLower(name) {
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	case "binary":
		return NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer %q (json, gob or binary)", name)
	}
}
