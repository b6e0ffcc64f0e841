package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"netconform/internal/evidence"

	"gopkg.in/yaml.v3"
)

// YAMLCodec reads hand written evidence: a YAML list of events with the
// same fields as the JSON form
type YAMLCodec struct {
	json *JSONCodec
}

// NewYAMLCodec creates a YAML codec decoding through c
func NewYAMLCodec(c *JSONCodec) *YAMLCodec {
	return &YAMLCodec{json: c}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// Parse reads every event of a document
func (c *YAMLCodec) Parse(ctx context.Context, r io.Reader, source *evidence.Source) ([]evidence.Event, error) {
	var docs []map[string]any
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&docs); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	events := make([]evidence.Event, 0, len(docs))
	for i, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i+1, err)
		}
		ev, err := c.json.Decode(ctx, data, source)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i+1, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
