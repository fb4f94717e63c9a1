package consensus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRules(t *testing.T) {
	r := DefaultRules()

	assert.True(t, r.IsExcludedText("description"))
	assert.True(t, r.IsExcludedText("Feature List"))
	assert.True(t, r.IsExcludedText("sub-category"))
	assert.False(t, r.IsExcludedText("brand"))
	assert.False(t, r.IsExcludedText("fuel_type"))

	assert.True(t, r.IsCircular("Ceiling Fan"))
	assert.True(t, r.IsCircular("mirror"))
	assert.False(t, r.IsCircular("Range"))
	assert.False(t, r.IsCircular(""))
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"excluded_text_fields: [blurb]\ncircular_categories: [gong]\n",
	), 0o644))

	r, err := LoadRules(path)
	require.NoError(t, err)
	assert.True(t, r.IsExcludedText("blurb"))
	assert.False(t, r.IsExcludedText("description"))
	assert.True(t, r.IsCircular("Gong"))
}

func TestLoadRules_Missing(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
