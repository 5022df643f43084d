package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGetLogLevel(t *testing.T) {
	cases := []struct {
		env, level string
		want       string
	}{
		{"development", "", "debug"},
		{"", "", "info"},
		{"production", "WARN", "warn"},
		{"dev", "error", "error"},
		{"", "bogus", "info"},
	}
	for _, tc := range cases {
		t.Setenv("ENV", tc.env)
		t.Setenv("LOG_LEVEL", tc.level)
		assert.Equal(t, tc.want, getLogLevel().String(), "ENV=%q LOG_LEVEL=%q", tc.env, tc.level)
	}
}

func TestShouldSampleBounds(t *testing.T) {
	assert.True(t, ShouldSample(1.0))
	assert.False(t, ShouldSample(0))
}

func TestGetSamplingRate(t *testing.T) {
	cases := map[string]float64{
		"test":        1.0,
		"development": 1.0,
		"staging":     0.5,
		"production":  0.1,
		"":            0.1,
	}
	for env, want := range cases {
		t.Setenv("ENV", env)
		assert.Equal(t, want, GetSamplingRate(), "ENV=%q", env)
	}
}

func TestInitLoggerWithLevel(t *testing.T) {
	logger, err := InitLoggerWithLevel(zap.WarnLevel, "adbeacon-test")
	assert.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))
}
