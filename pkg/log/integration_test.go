package log

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// TestLoggerInterface tests the Logger interface implementation
func TestLoggerInterface(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationFit)
	testLogger.Warn("warning message", "warning_code", "TEST_WARNING")
	testLogger.Error("error message", fmt.Errorf("test error"), "error_code", "TEST_ERROR")

	require.NotEmpty(t, buffer.String())
	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		assert.True(t, testLogger.ContainsMessage(msg), "missing %q", msg)
	}

	assert.True(t, testLogger.ContainsField("key1", "value1"))
	assert.True(t, testLogger.ContainsField("number", 42.0)) // JSON numbers decode as float64
	assert.True(t, testLogger.ContainsField("error", "test error"))
	assert.True(t, testLogger.ContainsField("error_code", "TEST_ERROR"))
}

func TestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	contextLogger := testLogger.With(
		ModelNameKey, "GBDTClassifier",
		RunIDKey, "run-001",
	)
	contextLogger.Info("contextual message", OperationKey, OperationPredict)

	assert.True(t, testLogger.ContainsField(ModelNameKey, "GBDTClassifier"))
	assert.True(t, testLogger.ContainsField(RunIDKey, "run-001"))
	assert.True(t, testLogger.ContainsField(OperationKey, OperationPredict))
}

func TestLoggerEnabled(t *testing.T) {
	ctx := context.Background()
	testLogger, buffer := NewTestLogger(LevelWarn)

	assert.False(t, testLogger.Enabled(ctx, LevelDebug))
	assert.False(t, testLogger.Enabled(ctx, LevelInfo))
	assert.True(t, testLogger.Enabled(ctx, LevelWarn))
	assert.True(t, testLogger.Enabled(ctx, LevelError))

	testLogger.Info("hidden")
	assert.Empty(t, buffer.String())
}

func TestErrorLogging_AttachesStack(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	err := herrors.NewArtifactError("model.bin", "checksum mismatch", nil)
	testLogger.Error("Artifact load failed", err, ArtifactPathKey, "model.bin")

	entries, perr := testLogger.GetLogEntries()
	require.NoError(t, perr)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, "error", entry["level"])
	assert.Contains(t, entry["error"], "checksum mismatch")
	assert.Equal(t, "model.bin", entry[ArtifactPathKey])
	assert.NotEmpty(t, entry["stack"], "cockroachdb stack should be extracted")

	details, ok := entry["error_details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ArtifactError", details["type"])
}

func TestLoggerProviderIntegration(t *testing.T) {
	provider, _ := NewTestLoggerProvider(LevelInfo)
	SetProvider(provider)
	defer SetProvider(NewZerologProvider(&bytes.Buffer{}, LevelInfo))

	GetLoggerWithName("gbdt.trainer").Info("provider message")
	GetLogger().Debug("filtered")

	tl := provider.TestLogger()
	assert.True(t, tl.ContainsField(ComponentField, "gbdt.trainer"))
	assert.False(t, tl.ContainsMessage("filtered"))

	SetLevel(LevelDebug)
	GetLogger().Debug("now visible")
	assert.True(t, provider.TestLogger().ContainsMessage("now visible"))
}

func TestWarningsRouteToLogger(t *testing.T) {
	provider, _ := NewTestLoggerProvider(LevelDebug)
	SetProvider(provider)
	defer SetProvider(NewZerologProvider(&bytes.Buffer{}, LevelInfo))

	herrors.Warn(herrors.NewUndefinedMetricWarning("recall", "no true samples", 0))

	assert.True(t, provider.TestLogger().ContainsMessage("'recall' is ill-defined"))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetup(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup("debug", "json", &buf))
	defer SetProvider(NewZerologProvider(&bytes.Buffer{}, LevelInfo))

	GetLoggerWithName("server").Debug("hello", "port", 8080)
	assert.Contains(t, buf.String(), `"component":"server"`)
	assert.Contains(t, buf.String(), `"port":8080`)

	assert.Error(t, Setup("info", "xml", &buf))
}

func TestConcurrentLogging(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				testLogger.Info("concurrent", "worker", id, "seq", j)
			}
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 100)
}
