package errors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToToolError_NoDebugHidesCause(t *testing.T) {
	cause := errors.New("stat /foo: permission denied")
	err := New(KindIO, "cannot read file", cause)

	te := ToToolError(err, false)
	assert.Equal(t, string(KindIO), te.Type)
	assert.Equal(t, "cannot read file", te.Message)
	assert.Empty(t, te.Debug)
}

func TestToToolError_DebugIncludesCause(t *testing.T) {
	cause := errors.New("stat /foo: permission denied")
	err := New(KindIO, "cannot read file", cause)

	te := ToToolError(err, true)
	assert.Contains(t, te.Debug, "permission denied")
}

func TestToToolError_NilIsZeroValue(t *testing.T) {
	assert.Equal(t, ToolError{}, ToToolError(nil, true))
}

func TestFormatJSON_BasicError(t *testing.T) {
	err := New(KindIO, "file not found", nil).WithDetail("path", "/foo/bar.txt")

	data, jsonErr := FormatJSON(err)
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, string(KindIO), result["kind"])
	assert.Equal(t, "file not found", result["message"])

	details, ok := result["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/foo/bar.txt", details["path"])
}

func TestFormatJSON_NilError(t *testing.T) {
	data, err := FormatJSON(nil)
	assert.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(string(data)))
}

func TestFormatJSON_WithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(KindStorage, "operation failed", cause)

	data, jsonErr := FormatJSON(err)
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "underlying error", result["cause"])
}

func TestFormatForLog_PlainError(t *testing.T) {
	attrs := FormatForLog(errors.New("generic"))
	assert.Equal(t, "generic", attrs["error"])
}

func TestFormatForLog_NilIsNil(t *testing.T) {
	assert.Nil(t, FormatForLog(nil))
}
