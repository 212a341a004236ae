package db

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Constants for the snapshot file format shared by all engines
const (
	snapshotMagic   = "PARAMDB\x00" // File format identifier
	snapshotVersion = 1             // Format version
)

// Record is a single entry of a snapshot
type Record struct {
	Key     string
	Value   []byte
	Version uint64
}

// WriteSnapshot writes the records and the write index in the binary snapshot format:
//
//	magic (8 bytes), version (1 byte), write index (8 bytes), record count (8 bytes),
//	per record: key length (4 bytes), key, version (8 bytes), value length (4 bytes), value
//
// All integers are little endian.
func WriteSnapshot(w io.Writer, writeIdx uint64, records []Record) error {
	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// Write file header
	if _, err := bw.WriteString(snapshotMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(snapshotVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, writeIdx); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(records))); err != nil {
		return err
	}

	for _, rec := range records {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(rec.Key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(rec.Key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, rec.Version); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(rec.Value))); err != nil {
			return err
		}
		if _, err := bw.Write(rec.Value); err != nil {
			return err
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// ReadSnapshot reads a snapshot written by WriteSnapshot and calls fn for every record.
// It returns the write index stored in the snapshot.
func ReadSnapshot(r io.Reader, fn func(rec Record) error) (uint64, error) {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return 0, err
	}
	if string(magicBytes) != snapshotMagic {
		return 0, fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return 0, err
	}
	if int(version) != snapshotVersion {
		return 0, fmt.Errorf("unsupported version: %d (expected %d)", version, snapshotVersion)
	}

	var writeIdx, count uint64
	if err := binary.Read(br, binary.LittleEndian, &writeIdx); err != nil {
		return 0, err
	}
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return 0, err
	}

	for i := uint64(0); i < count; i++ {
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return 0, err
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return 0, err
		}

		var recVersion uint64
		if err := binary.Read(br, binary.LittleEndian, &recVersion); err != nil {
			return 0, err
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return 0, err
		}
		value := make([]byte, valueLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return 0, err
		}

		if err := fn(Record{Key: string(key), Value: value, Version: recVersion}); err != nil {
			return 0, err
		}
	}

	return writeIdx, nil
}
