package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormatIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New("verifier", Config{Format: FormatJSON, Level: slog.LevelInfo, Output: &buf})

	logger.InfoContext(context.Background(), "lane started", "run_id", "r-1")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "verifier", line["component"])
	require.Equal(t, "lane started", line["msg"])
	require.Equal(t, "r-1", line["run_id"])
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New("budget", Config{Format: FormatJSON, Level: slog.LevelWarn, Output: &buf})

	logger.InfoContext(context.Background(), "ignored")
	require.Empty(t, buf.Bytes())

	logger.WarnContext(context.Background(), "seen")
	require.NotEmpty(t, buf.Bytes())
}

func TestNoop_DiscardsOutput(t *testing.T) {
	logger := Noop()
	require.NotPanics(t, func() {
		logger.ErrorContext(context.Background(), "should not appear")
	})
}

func TestWithFields_CarriesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	base := New("policy", Config{Format: FormatJSON, Output: &buf})
	scoped := WithFields(base, "tenant", "acme")

	scoped.InfoContext(context.Background(), "evaluated")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "acme", line["tenant"])
	require.Equal(t, "policy", line["component"])
}
