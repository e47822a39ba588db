package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBiox_Logger_FormatRFC3339Millis(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 5, 7, 8, 9, 123_456_789, time.FixedZone("x", 3600))
	require.Equal(t, "2024-03-05T06:08:09.123Z", formatRFC3339Millis(ts))
}

func TestBiox_Logger_JSONDropsEmptyStrings(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithOptions(Options{Format: FormatJSON, Output: &buf})
	log.Info("runtime: executed", "signature", "abc", "empty", "")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "abc", line["signature"])
	_, hasEmpty := line["empty"]
	require.False(t, hasEmpty)
}

func TestBiox_Logger_ParseFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatText, f)

	f, err = ParseFormat("json")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	require.Error(t, err)
}
