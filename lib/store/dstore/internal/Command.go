package internal

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/rtparam/lib/db"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTCommit CommandType = iota // Validate and apply a transaction batch.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTCommit:
		return "Commit"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the corresponding db.Feature.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTCommit:
		return db.FeatureCommit, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type    CommandType
	Scanned bool
	ScanIdx uint64
	Reads   []db.Read
	Writes  []db.Write
}

// NewCommitCommand wraps a transaction batch into a command
func NewCommitCommand(batch *db.Batch) Command {
	return Command{
		Type:    CommandTCommit,
		Scanned: batch.Scanned,
		ScanIdx: batch.ScanIdx,
		Reads:   batch.Reads,
		Writes:  batch.Writes,
	}
}

// Batch returns the transaction batch carried by the command
func (command *Command) Batch() *db.Batch {
	return &db.Batch{
		Reads:   command.Reads,
		Scanned: command.Scanned,
		ScanIdx: command.ScanIdx,
		Writes:  command.Writes,
	}
}

const (
	headerSize = 1 + 1 + 8 // Type + Flags + ScanIdx
	flagScan   = 1 << 0
	flagDelete = 1 << 0
)

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := headerSize + 4 // header + read count
	for _, r := range command.Reads {
		size += 4 + len(r.Key) + 8 // KeyLen + Key + Version
	}
	size += 4 // write count
	for _, w := range command.Writes {
		size += 1 + 4 + len(w.Key) + 4 // Flags + KeyLen + Key + ValueLen
		if !w.Delete {
			size += len(w.Value)
		}
	}
	return size
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 1 byte for flags (bit 0: scanned),
// 8 bytes for the scan index,
// 4 bytes read count, per read: 4 bytes key length, key, 8 bytes version,
// 4 bytes write count, per write: 1 byte flags (bit 0: delete), 4 bytes key length, key,
// 4 bytes value length, value.
// All integers are big endian.
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	if command.Scanned {
		result[1] = flagScan
	}
	binary.BigEndian.PutUint64(result[2:10], command.ScanIdx)
	pos := headerSize

	putBytes := func(b []byte) {
		binary.BigEndian.PutUint32(result[pos:], uint32(len(b)))
		pos += 4
		pos += copy(result[pos:], b)
	}

	binary.BigEndian.PutUint32(result[pos:], uint32(len(command.Reads)))
	pos += 4
	for _, r := range command.Reads {
		putBytes([]byte(r.Key))
		binary.BigEndian.PutUint64(result[pos:], r.Version)
		pos += 8
	}

	binary.BigEndian.PutUint32(result[pos:], uint32(len(command.Writes)))
	pos += 4
	for _, w := range command.Writes {
		if w.Delete {
			result[pos] = flagDelete
			pos++
			putBytes([]byte(w.Key))
			putBytes(nil)
			continue
		}
		pos++
		putBytes([]byte(w.Key))
		putBytes(w.Value)
	}

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize+4 {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Scanned = data[1]&flagScan != 0
	command.ScanIdx = binary.BigEndian.Uint64(data[2:10])
	pos := headerSize

	need := func(n int, what string) error {
		if len(data)-pos < n {
			return fmt.Errorf("data too short for %s", what)
		}
		return nil
	}
	getUint32 := func(what string) (uint32, error) {
		if err := need(4, what); err != nil {
			return 0, err
		}
		v := binary.BigEndian.Uint32(data[pos:])
		pos += 4
		return v, nil
	}
	getBytes := func(what string) ([]byte, error) {
		n, err := getUint32(what + " length")
		if err != nil {
			return nil, err
		}
		if err := need(int(n), what); err != nil {
			return nil, err
		}
		b := make([]byte, n)
		copy(b, data[pos:pos+int(n)])
		pos += int(n)
		return b, nil
	}

	readCount, err := getUint32("read count")
	if err != nil {
		return err
	}
	// every read needs at least 12 bytes, this rejects absurd counts before allocating
	if err := need(int(readCount)*12, "reads"); err != nil {
		return err
	}
	command.Reads = make([]db.Read, 0, readCount)
	for i := uint32(0); i < readCount; i++ {
		key, err := getBytes("read key")
		if err != nil {
			return err
		}
		if err := need(8, "read version"); err != nil {
			return err
		}
		command.Reads = append(command.Reads, db.Read{Key: string(key), Version: binary.BigEndian.Uint64(data[pos:])})
		pos += 8
	}

	writeCount, err := getUint32("write count")
	if err != nil {
		return err
	}
	if err := need(int(writeCount)*9, "writes"); err != nil {
		return err
	}
	command.Writes = make([]db.Write, 0, writeCount)
	for i := uint32(0); i < writeCount; i++ {
		if err := need(1, "write flags"); err != nil {
			return err
		}
		w := db.Write{Delete: data[pos]&flagDelete != 0}
		pos++

		key, err := getBytes("write key")
		if err != nil {
			return err
		}
		w.Key = string(key)

		value, err := getBytes("write value")
		if err != nil {
			return err
		}
		if !w.Delete {
			w.Value = value
		}
		command.Writes = append(command.Writes, w)
	}

	if pos != len(data) {
		return fmt.Errorf("%d trailing bytes after command", len(data)-pos)
	}
	return nil
}
