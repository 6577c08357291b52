package serializer

import (
	"encoding/json"

	"github.com/ValentinKolb/marines/rpc/common"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IRPCSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(req common.Request) ([]byte, error) {
	return json.Marshal(req)
}

func (j jsonSerializerImpl) Deserialize(b []byte, req *common.Request) error {
	*req = common.Request{}
	return json.Unmarshal(b, req)
}
