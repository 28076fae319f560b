package logging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogFilePath(t *testing.T) {
	start := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		want    string
	}{
		{"relative", "logs", filepath.Join("logs", "mk8gym.20260212_213836.log")},
		{"dot prefix", "./logs", filepath.Join(".", "logs", "mk8gym.20260212_213836.log")},
		{"absolute", filepath.Join("/var", "log", "mk8gym"), filepath.Join("/var", "log", "mk8gym", "mk8gym.20260212_213836.log")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogFilePath(tt.logsDir, "mk8gym", start))
		})
	}
}

func TestLogFilePath_NormalisesToUTC(t *testing.T) {
	start := time.Date(2026, 2, 12, 22, 38, 36, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, filepath.Join("logs", "mk8gym.20260212_213836.log"), LogFilePath("logs", "mk8gym", start))
}
