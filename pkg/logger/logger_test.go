package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"release", zerolog.InfoLevel},
		{"test", zerolog.WarnLevel},
		{"nonsense", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			SetLevel(tt.in)
			assert.Equal(t, tt.want, zerolog.GlobalLevel())
			assert.Equal(t, tt.want, Log.GetLevel())
		})
	}
}

func TestBuildJSON(t *testing.T) {
	var buf bytes.Buffer
	l := build(&buf, FormatJSON)
	l.Info().Str("sku", "MUG-01").Msg("stat recalculated")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "MUG-01", line["sku"])
	assert.Equal(t, "stat recalculated", line["message"])
	assert.Equal(t, "info", line["level"])
}
