package timeseries

import "encoding/json"

// tagsJSON marshals a tag map for the tags JSONB column, defaulting to an
// empty object rather than SQL NULL so readers never need a nil check.
func tagsJSON(tags map[string]string) []byte {
	if tags == nil {
		tags = map[string]string{}
	}
	b, _ := json.Marshal(tags)
	return b
}

// metadataJSON marshals an arbitrary metadata map for the metadata JSONB
// column.
func metadataJSON(metadata map[string]any) []byte {
	if metadata == nil {
		metadata = map[string]any{}
	}
	b, _ := json.Marshal(metadata)
	return b
}
