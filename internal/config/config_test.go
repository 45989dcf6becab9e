package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 100, cfg.MixedTextLimit)
	assert.Equal(t, 500, cfg.FullPromptLimit)
	assert.Equal(t, 10, cfg.BatchSplitThreshold)
	assert.Equal(t, 15, cfg.RequestsPerMinute)
	assert.Equal(t, 1500, cfg.RequestsPerDay)
	assert.Equal(t, 32000, cfg.TokensPerMinute)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.BaseRetryDelay)
	assert.Equal(t, time.Hour, cfg.SweepAge)
	assert.Equal(t, 1920, cfg.ImageWidth)
	assert.Equal(t, 1280, cfg.ImageHeight)
}

func TestResolveDefaults_GeminiURL(t *testing.T) {
	cfg := NewForTesting()
	assert.Contains(t, cfg.GeminiURL, cfg.GeminiModel)
	assert.Contains(t, cfg.GeminiURL, "generativelanguage.googleapis.com")
}

func TestResolveDefaults_RejectsBadPartition(t *testing.T) {
	cfg := NewForTesting()
	cfg.BatchSplitCount = 0
	assert.Error(t, cfg.ResolveDefaults())
}
