package serializer

import (
	"bytes"
	"encoding/gob"

	"github.com/ValentinKolb/rtparam/lib/params"
)

// NewGOBSerializer creates a new serializer using Go's binary gob format
func NewGOBSerializer() ISerializer {
	return &gobSerializerImpl{}
}

type gobSerializerImpl struct{}

func (g gobSerializerImpl) Serialize(records []params.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte) ([]params.Record, error) {
	var records []params.Record
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}
