package formatting

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_JSONContainsFields(t *testing.T) {
	r := Report{Queues: []QueueDepth{{Queue: "high", Depth: 3}}}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r, FormatJSON))
	assert.Contains(t, buf.String(), `"queue": "high"`)
	assert.Contains(t, buf.String(), `"depth": 3`)
}

func TestWrite_YAMLContainsFields(t *testing.T) {
	r := Report{Sites: []SiteSummary{{Subdomain: "smallville", Stage: "ocr"}}}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r, FormatYAML))
	assert.Contains(t, buf.String(), "subdomain: smallville")
}

func TestWrite_TableRendersHeaders(t *testing.T) {
	r := Report{Queues: []QueueDepth{{Queue: "fetch", Depth: 1}}}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r, FormatTable))
	out := buf.String()
	assert.True(t, strings.Contains(out, "QUEUE") || strings.Contains(out, "Queue"))
	assert.Contains(t, out, "fetch")
}

func TestWrite_UnrecognizedFormatErrors(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, Report{}, Format("xml"))
	assert.Error(t, err)
}

func TestFormat_Valid(t *testing.T) {
	assert.True(t, FormatJSON.Valid())
	assert.False(t, Format("xml").Valid())
}
