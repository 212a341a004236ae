package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/rtparam/lib/params"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() ISerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
	"YAML":   NewYAMLSerializer,
}

// testRecords returns records covering global and scoped keys
func testRecords() []params.Record {
	return []params.Record{
		{Key: params.GlobalKey("timeout"), Value: []byte("30s")},
		{Key: params.ScopedKey("v1", "policy", "alpha"), Value: []byte(`{"max":10}`)},
		{Key: params.ScopedKey("v1", "", "empty-component"), Value: []byte("x")},
		{Key: params.GlobalKey(""), Value: []byte("empty id")},
	}
}

func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			records := testRecords()

			data, err := serializer.Serialize(records)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			result, err := serializer.Deserialize(data)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if !reflect.DeepEqual(records, result) {
				t.Errorf("Records don't match after round trip:\nOriginal: %+v\nResult: %+v", records, result)
			}
		})
	}
}

func TestSerializerEmpty(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize([]params.Record{})
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			result, err := serializer.Deserialize(data)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if len(result) != 0 {
				t.Errorf("Expected no records, got %d", len(result))
			}
		})
	}
}

// TestBinarySerializerValues checks that nil and empty values stay apart
func TestBinarySerializerValues(t *testing.T) {
	serializer := NewBinarySerializer()
	records := []params.Record{
		{Key: params.GlobalKey("nil")},
		{Key: params.GlobalKey("empty"), Value: []byte{}},
	}

	data, err := serializer.Serialize(records)
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}
	result, err := serializer.Deserialize(data)
	if err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}

	if result[0].Value != nil {
		t.Errorf("Expected nil value, got %v", result[0].Value)
	}
	if result[1].Value == nil || len(result[1].Value) != 0 {
		t.Errorf("Expected empty non nil value, got %v", result[1].Value)
	}
}

func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{name: "Empty data", data: []byte{}, expectError: true},
		{name: "Zero records", data: []byte{0, 0, 0, 0}, expectError: false},
		{name: "Count too large", data: []byte{0, 0, 0, 9, 1}, expectError: true},
		{name: "Missing id", data: []byte{0, 0, 0, 1, isGlobal}, expectError: true},
		{name: "Invalid id length", data: []byte{0, 0, 0, 1, isGlobal, 0, 0, 0, 5, 'a', 'b'}, expectError: true},
		{name: "Global without value", data: []byte{0, 0, 0, 1, isGlobal, 0, 0, 0, 1, 'a'}, expectError: false},
		{name: "Missing value", data: []byte{0, 0, 0, 1, isGlobal | hasValue, 0, 0, 0, 1, 'a'}, expectError: true},
		{name: "Scoped missing name", data: []byte{0, 0, 0, 1, 0, 0, 0, 0, 1, 'v', 0, 0, 0, 0}, expectError: true},
		{name: "Trailing bytes", data: []byte{0, 0, 0, 0, 42}, expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := serializer.Deserialize(tc.data)
			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

func TestFromName(t *testing.T) {
	for _, name := range []string{"binary", "JSON", "gob", "yaml"} {
		if _, err := FromName(name); err != nil {
			t.Errorf("FromName(%q) failed: %v", name, err)
		}
	}
	if _, err := FromName("xml"); err == nil {
		t.Errorf("Expected error for unknown serializer")
	}
}
