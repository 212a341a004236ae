package params

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Tag bytes of the encoded keys
const (
	tagGlobal = 'g'
	tagScoped = 's'
)

// Key identifies a runtime parameter. A key is either global (ID only) or
// scoped to a virtual host and component (VHost, Component, Name).
type Key struct {
	Global    bool   `json:"global,omitempty"`
	ID        string `json:"id,omitempty"`
	VHost     string `json:"vhost,omitempty"`
	Component string `json:"component,omitempty"`
	Name      string `json:"name,omitempty"`
}

// GlobalKey returns the key of a global parameter
func GlobalKey(id string) Key {
	return Key{Global: true, ID: id}
}

// ScopedKey returns the key of a parameter scoped to a virtual host and component
func ScopedKey(vhost, component, name string) Key {
	return Key{VHost: vhost, Component: component, Name: name}
}

func (k Key) String() string {
	if k.Global {
		return fmt.Sprintf("global:%s", k.ID)
	}
	return fmt.Sprintf("%s/%s/%s", k.VHost, k.Component, k.Name)
}

// Encode returns the table key.
//
//	global: 'g' id
//	scoped: 's' uvarint(len(vhost)) vhost uvarint(len(component)) component name
//
// The tag keeps global and scoped keys apart, the length prefixes make the field
// boundaries unambiguous for arbitrary strings.
func (k Key) Encode() string {
	var sb strings.Builder
	if k.Global {
		sb.Grow(1 + len(k.ID))
		sb.WriteByte(tagGlobal)
		sb.WriteString(k.ID)
		return sb.String()
	}

	var lenBuf [binary.MaxVarintLen64]byte
	sb.Grow(1 + 2*binary.MaxVarintLen64 + len(k.VHost) + len(k.Component) + len(k.Name))
	sb.WriteByte(tagScoped)
	sb.Write(lenBuf[:binary.PutUvarint(lenBuf[:], uint64(len(k.VHost)))])
	sb.WriteString(k.VHost)
	sb.Write(lenBuf[:binary.PutUvarint(lenBuf[:], uint64(len(k.Component)))])
	sb.WriteString(k.Component)
	sb.WriteString(k.Name)
	return sb.String()
}

// DecodeKey parses a table key produced by Key.Encode
func DecodeKey(s string) (Key, error) {
	if len(s) == 0 {
		return Key{}, fmt.Errorf("empty key")
	}

	switch s[0] {
	case tagGlobal:
		return GlobalKey(s[1:]), nil
	case tagScoped:
		rest := s[1:]
		vhost, rest, err := readField(rest)
		if err != nil {
			return Key{}, fmt.Errorf("invalid vhost: %w", err)
		}
		component, name, err := readField(rest)
		if err != nil {
			return Key{}, fmt.Errorf("invalid component: %w", err)
		}
		return ScopedKey(vhost, component, name), nil
	default:
		return Key{}, fmt.Errorf("unknown key tag %q", s[0])
	}
}

// readField reads one length prefixed field and returns it together with the remainder
func readField(s string) (string, string, error) {
	n, size := binary.Uvarint([]byte(s[:min(len(s), binary.MaxVarintLen64)]))
	if size <= 0 {
		return "", "", fmt.Errorf("malformed length prefix")
	}
	s = s[size:]
	if uint64(len(s)) < n {
		return "", "", fmt.Errorf("field length %d exceeds remaining %d bytes", n, len(s))
	}
	return s[:n], s[n:], nil
}
