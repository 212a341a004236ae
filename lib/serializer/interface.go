package serializer

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/rtparam/lib/params"
)

// ISerializer encodes parameter records for export and import
type ISerializer interface {
	// Serialize encodes the records into a byte array
	Serialize(records []params.Record) ([]byte, error)
	// Deserialize decodes a byte array produced by Serialize
	Deserialize(b []byte) ([]params.Record, error)
}

// Names of the available serializers
const (
	NameBinary = "binary"
	NameJSON   = "json"
	NameGOB    = "gob"
	NameYAML   = "yaml"
)

// FromName returns the serializer registered under name (case insensitive)
func FromName(name string) (ISerializer, error) {
	switch strings.ToLower(name) {
	case NameBinary:
		return NewBinarySerializer(), nil
	case NameJSON:
		return NewJSONSerializer(), nil
	case NameGOB:
		return NewGOBSerializer(), nil
	case NameYAML:
		return NewYAMLSerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer '%s' (use %s, %s, %s or %s)", name, NameBinary, NameJSON, NameGOB, NameYAML)
	}
}
