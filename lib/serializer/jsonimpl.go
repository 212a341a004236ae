package serializer

import (
	"encoding/json"

	"github.com/ValentinKolb/rtparam/lib/params"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() ISerializer {
	return &jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

func (j jsonSerializerImpl) Serialize(records []params.Record) ([]byte, error) {
	return json.MarshalIndent(records, "", "  ")
}

func (j jsonSerializerImpl) Deserialize(b []byte) ([]params.Record, error) {
	var records []params.Record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, err
	}
	return records, nil
}
