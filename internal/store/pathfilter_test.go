package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePathFilter_StripsWhitespaceAndLeadingSlash(t *testing.T) {
	got, err := NormalizePathFilter("  /src/main.go  ")
	require.NoError(t, err)
	assert.Equal(t, "src/main.go", got)
}

func TestNormalizePathFilter_BackslashesBecomeForwardSlashes(t *testing.T) {
	got, err := NormalizePathFilter(`internal\store`)
	require.NoError(t, err)
	assert.Equal(t, "internal/store/", got)
}

func TestNormalizePathFilter_AppendsTrailingSlashForExtensionlessSegment(t *testing.T) {
	got, err := NormalizePathFilter("internal/store")
	require.NoError(t, err)
	assert.Equal(t, "internal/store/", got)
}

func TestNormalizePathFilter_NoTrailingSlashForFilename(t *testing.T) {
	got, err := NormalizePathFilter("internal/store/engine.go")
	require.NoError(t, err)
	assert.Equal(t, "internal/store/engine.go", got)
}

func TestNormalizePathFilter_EmptyStaysEmpty(t *testing.T) {
	got, err := NormalizePathFilter("   ")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestNormalizePathFilter_RejectsTraversal(t *testing.T) {
	_, err := NormalizePathFilter("../../etc/passwd")
	assert.Error(t, err)
}

func TestNormalizePathFilter_RejectsWildcards(t *testing.T) {
	for _, bad := range []string{"*.go", "src?", "[abc]", "~/secrets"} {
		_, err := NormalizePathFilter(bad)
		assert.Error(t, err, "expected rejection for %q", bad)
	}
}

func TestPathFilterLikePattern(t *testing.T) {
	assert.Equal(t, "%/src/main.go%", pathFilterLikePattern("src/main.go"))
}
