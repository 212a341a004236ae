// Package serializer encodes parameter records for export and import.
//
// All implementations satisfy ISerializer and are stateless, so a single
// instance can be shared between goroutines:
//
//   - binary: compact length prefixed format, keeps nil and empty values apart
//   - json: indented json, values are base64 encoded
//   - gob: Go's gob encoding
//   - yaml: human editable, values are written as strings
//
// Usage:
//
//	s, err := serializer.FromName("yaml")
//	data, err := s.Serialize(records)
//	records, err = s.Deserialize(data)
package serializer
