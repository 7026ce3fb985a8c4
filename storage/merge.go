package storage

import (
	"encoding/json"
	"fmt"
)

// MergeObjects overlays the top-level fields of patch onto base. A nil or
// empty base is treated as an empty object. Both must be JSON objects.
func MergeObjects(base, patch json.RawMessage) (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if len(base) > 0 {
		if err := json.Unmarshal(base, &fields); err != nil || fields == nil {
			return nil, fmt.Errorf("stored %w", ErrNotObject)
		}
	}
	overlay, err := decodeObject(patch)
	if err != nil {
		return nil, err
	}
	for k, v := range overlay {
		fields[k] = v
	}
	return json.Marshal(fields)
}

// ValidateObject reports ErrNotObject unless data is a JSON object.
func ValidateObject(data json.RawMessage) error {
	_, err := decodeObject(data)
	return err
}

func decodeObject(data json.RawMessage) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, ErrNotObject
	}
	return fields, nil
}
