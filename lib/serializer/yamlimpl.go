package serializer

import (
	"github.com/ValentinKolb/rtparam/lib/params"
	"gopkg.in/yaml.v3"
)

// NewYAMLSerializer creates a new serializer writing human editable yaml.
// Values are written as strings.
func NewYAMLSerializer() ISerializer {
	return &yamlSerializerImpl{}
}

type yamlSerializerImpl struct{}

// yamlRecord is the document layout of one record
type yamlRecord struct {
	Global    bool   `yaml:"global,omitempty"`
	ID        string `yaml:"id,omitempty"`
	VHost     string `yaml:"vhost,omitempty"`
	Component string `yaml:"component,omitempty"`
	Name      string `yaml:"name,omitempty"`
	Value     string `yaml:"value"`
}

func (y yamlSerializerImpl) Serialize(records []params.Record) ([]byte, error) {
	docs := make([]yamlRecord, len(records))
	for i, r := range records {
		docs[i] = yamlRecord{
			Global:    r.Key.Global,
			ID:        r.Key.ID,
			VHost:     r.Key.VHost,
			Component: r.Key.Component,
			Name:      r.Key.Name,
			Value:     string(r.Value),
		}
	}
	return yaml.Marshal(docs)
}

func (y yamlSerializerImpl) Deserialize(b []byte) ([]params.Record, error) {
	var docs []yamlRecord
	if err := yaml.Unmarshal(b, &docs); err != nil {
		return nil, err
	}
	records := make([]params.Record, len(docs))
	for i, d := range docs {
		records[i] = params.Record{
			Key: params.Key{
				Global:    d.Global,
				ID:        d.ID,
				VHost:     d.VHost,
				Component: d.Component,
				Name:      d.Name,
			},
			Value: []byte(d.Value),
		}
	}
	return records, nil
}
