package timeseries

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagsJSONDefaultsToEmptyObject(t *testing.T) {
	assert.JSONEq(t, "{}", string(tagsJSON(nil)))
}

func TestTagsJSONMarshalsProvidedMap(t *testing.T) {
	assert.JSONEq(t, `{"env":"prod"}`, string(tagsJSON(map[string]string{"env": "prod"})))
}

func TestMetadataJSONDefaultsToEmptyObject(t *testing.T) {
	assert.JSONEq(t, "{}", string(metadataJSON(nil)))
}

func TestDerefString(t *testing.T) {
	assert.Equal(t, "", derefString(nil))
	s := "x"
	assert.Equal(t, "x", derefString(&s))
}
