package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeKeepsKnownValues(t *testing.T) {
	t.Parallel()
	merged, changed := Merge(map[string]string{"name": "A"}, map[string]any{"name": nil, "phone": "123"})
	assert.True(t, changed)
	assert.Equal(t, map[string]string{"name": "A", "phone": "123"}, merged)
}

func TestMergeUnchangedReportsFalse(t *testing.T) {
	t.Parallel()
	existing := map[string]string{"name": "A", "phone": "123"}
	merged, changed := Merge(existing, map[string]any{"name": "A", "phone": "", "email": "null"})
	assert.False(t, changed)
	assert.Equal(t, existing, merged)
}

func TestMergeOverwritesDifferentValue(t *testing.T) {
	t.Parallel()
	merged, changed := Merge(map[string]string{"city": "Hanoi"}, map[string]any{"city": "Da Nang"})
	assert.True(t, changed)
	assert.Equal(t, "Da Nang", merged["city"])
}

func TestCleanStringifiesScalars(t *testing.T) {
	t.Parallel()
	got := Clean(map[string]any{"age": float64(30), "vip": true, "trial": false, "note": "  hi "})
	assert.Equal(t, map[string]string{"age": "30", "vip": "true", "note": "hi"}, got)
}
