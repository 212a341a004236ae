package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/rtparam/lib/params"
)

// NewBinarySerializer creates a new serializer using a compact binary format
func NewBinarySerializer() ISerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl writes
//
//	count uint32
//	per record: flags byte, strings (uint32 length + data), value if hasValue
//
// Global records carry one string (the id), scoped records three (vhost,
// component, name).
type binarySerializerImpl struct{}

// Bit flags of a record
const (
	isGlobal byte = 1 << 0
	hasValue byte = 1 << 1
)

func (b binarySerializerImpl) Serialize(records []params.Record) ([]byte, error) {
	result := make([]byte, b.sizeBytes(records))
	binary.BigEndian.PutUint32(result[0:4], uint32(len(records)))
	pos := 4

	for _, r := range records {
		var flags byte
		if r.Key.Global {
			flags |= isGlobal
		}
		if r.Value != nil {
			flags |= hasValue
		}
		result[pos] = flags
		pos++

		if r.Key.Global {
			pos = putString(result, pos, r.Key.ID)
		} else {
			pos = putString(result, pos, r.Key.VHost)
			pos = putString(result, pos, r.Key.Component)
			pos = putString(result, pos, r.Key.Name)
		}
		if r.Value != nil {
			binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(r.Value)))
			pos += 4
			pos += copy(result[pos:], r.Value)
		}
	}

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte) ([]params.Record, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("data too short for record count")
	}
	count := binary.BigEndian.Uint32(data[0:4])
	pos := 4

	// every record needs at least its flags byte
	if uint64(count) > uint64(len(data)-pos) {
		return nil, fmt.Errorf("record count %d exceeds data size", count)
	}

	records := make([]params.Record, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos >= len(data) {
			return nil, fmt.Errorf("data too short for record %d", i)
		}
		flags := data[pos]
		pos++

		var (
			r   params.Record
			err error
		)
		if flags&isGlobal != 0 {
			r.Key.Global = true
			if r.Key.ID, pos, err = readString(data, pos); err != nil {
				return nil, fmt.Errorf("record %d: id: %w", i, err)
			}
		} else {
			if r.Key.VHost, pos, err = readString(data, pos); err != nil {
				return nil, fmt.Errorf("record %d: vhost: %w", i, err)
			}
			if r.Key.Component, pos, err = readString(data, pos); err != nil {
				return nil, fmt.Errorf("record %d: component: %w", i, err)
			}
			if r.Key.Name, pos, err = readString(data, pos); err != nil {
				return nil, fmt.Errorf("record %d: name: %w", i, err)
			}
		}

		if flags&hasValue != 0 {
			var value string
			if value, pos, err = readString(data, pos); err != nil {
				return nil, fmt.Errorf("record %d: value: %w", i, err)
			}
			r.Value = []byte(value)
		}
		records = append(records, r)
	}

	if pos != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after records", len(data)-pos)
	}
	return records, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (b binarySerializerImpl) sizeBytes(records []params.Record) int {
	size := 4
	for _, r := range records {
		size++
		if r.Key.Global {
			size += 4 + len(r.Key.ID)
		} else {
			size += 12 + len(r.Key.VHost) + len(r.Key.Component) + len(r.Key.Name)
		}
		if r.Value != nil {
			size += 4 + len(r.Value)
		}
	}
	return size
}

func putString(buf []byte, pos int, s string) int {
	binary.BigEndian.PutUint32(buf[pos:pos+4], uint32(len(s)))
	pos += 4
	return pos + copy(buf[pos:], s)
}

func readString(data []byte, pos int) (string, int, error) {
	if pos+4 > len(data) {
		return "", pos, fmt.Errorf("data too short for length")
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if n > len(data)-pos {
		return "", pos, fmt.Errorf("data too short for %d bytes", n)
	}
	return string(data[pos : pos+n]), pos + n, nil
}
