package stream

import "encoding/json"

// encodeMetadata serializes the free-form metadata map to a JSON string
// for storage in the schema-less log. Marshal failure degrades to an
// empty object rather than losing the whole record.
func encodeMetadata(m map[string]interface{}) string {
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func decodeMetadata(raw string) map[string]interface{} {
	if raw == "" {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}
