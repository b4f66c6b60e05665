package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRateLimit(t *testing.T) {
	cases := []struct {
		in     string
		count  int
		window time.Duration
	}{
		{"100/minute", 100, time.Minute},
		{"10/second", 10, time.Second},
		{"1000/hour", 1000, time.Hour},
		{"5/s", 5, time.Second},
		{"20/min", 20, time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			limit, err := ParseRateLimit(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.count, limit.Count)
			assert.Equal(t, tc.window, limit.Window)
		})
	}
}

func TestParseRateLimit_Invalid(t *testing.T) {
	for _, in := range []string{"", "100", "/minute", "0/minute", "-5/minute", "ten/minute", "10/fortnight"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseRateLimit(in)
			assert.Error(t, err)
		})
	}
}

func TestValidate_RequiresSalt(t *testing.T) {
	cfg := &Config{App: AppConfig{ShortCodeLength: 8, ShortCodePoolSize: 100}}
	assert.Error(t, cfg.validate())

	cfg.App.IPSalt = "salt"
	assert.NoError(t, cfg.validate())
}

func TestValidate_CodeLengthBounds(t *testing.T) {
	cfg := &Config{App: AppConfig{ShortCodeLength: 3, ShortCodePoolSize: 100, IPSalt: "salt"}}
	assert.Error(t, cfg.validate())

	cfg.App.ShortCodeLength = 129
	assert.Error(t, cfg.validate())

	cfg.App.ShortCodeLength = 4
	assert.NoError(t, cfg.validate())
}
