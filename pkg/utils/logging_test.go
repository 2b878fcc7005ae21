package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected logrus.Level
		wantErr  bool
	}{
		{name: "debug level", input: "DEBUG", expected: logrus.DebugLevel},
		{name: "info level", input: "INFO", expected: logrus.InfoLevel},
		{name: "warn level", input: "WARN", expected: logrus.WarnLevel},
		{name: "warning level", input: "WARNING", expected: logrus.WarnLevel},
		{name: "error level", input: "ERROR", expected: logrus.ErrorLevel},
		{name: "case insensitive", input: "debug", expected: logrus.DebugLevel},
		{name: "empty defaults to info", input: "", expected: logrus.InfoLevel},
		{name: "invalid level", input: "INVALID", expected: logrus.InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("json to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "mediacache.log")

		logger, closer, err := NewLogger(LogConfig{Level: "debug", Format: "json", File: path})
		require.NoError(t, err)

		WithComponent(logger, "placement").WithField("path", "a.mp4").Debug("placed")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"component":"placement"`)
		assert.Contains(t, string(data), `"path":"a.mp4"`)
		assert.Contains(t, string(data), `"msg":"placed"`)
	})

	t.Run("level filtering", func(t *testing.T) {
		logger, closer, err := NewLogger(LogConfig{Level: "warn"})
		require.NoError(t, err)
		defer closer.Close()

		assert.False(t, logger.IsLevelEnabled(logrus.InfoLevel))
		assert.True(t, logger.IsLevelEnabled(logrus.WarnLevel))
	})

	t.Run("invalid format", func(t *testing.T) {
		_, _, err := NewLogger(LogConfig{Level: "info", Format: "xml"})
		assert.Error(t, err)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, _, err := NewLogger(LogConfig{Level: "loud"})
		assert.Error(t, err)
	})
}

func TestWithComponentNilLogger(t *testing.T) {
	entry := WithComponent(nil, "ledger")
	require.NotNil(t, entry)
	assert.Equal(t, "ledger", entry.Data["component"])
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{1024 * 1024 * 1024, "1.0 GB"},
		{1024 * 1024 * 1024 * 1024, "1.0 TB"},
		{-2048, "-2.0 KB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatBytes(tt.bytes))
		})
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
		wantErr  bool
	}{
		{name: "bytes", input: "512", expected: 512},
		{name: "bytes with B suffix", input: "512B", expected: 512},
		{name: "kilobytes", input: "2KB", expected: 2048},
		{name: "megabytes", input: "5M", expected: 5 << 20},
		{name: "gigabytes", input: "1GB", expected: 1 << 30},
		{name: "terabytes", input: "2T", expected: 2 << 40},
		{name: "fractional", input: "1.5G", expected: int64(1.5 * (1 << 30))},
		{name: "case insensitive", input: "1gb", expected: 1 << 30},
		{name: "with spaces", input: " 2 GB ", expected: 2 << 30},
		{name: "empty string", input: "", wantErr: true},
		{name: "invalid format", input: "invalid", wantErr: true},
		{name: "invalid number", input: "XGB", wantErr: true},
		{name: "negative", input: "-1G", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseBytes(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}
