package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/costkit/pkg/config"
)

type testConfig struct {
	Name  string `env:"CONFIG_TEST_NAME" envDefault:"default-name"`
	Count int    `env:"CONFIG_TEST_COUNT" envDefault:"7"`
}

type requiredConfig struct {
	Token string `env:"CONFIG_TEST_REQUIRED_TOKEN,required"`
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "default-name", cfg.Name)
		assert.Equal(t, 7, cfg.Count)
	})

	t.Run("returns cached value on second load", func(t *testing.T) {
		var first testConfig
		require.NoError(t, config.Load(&first))

		t.Setenv("CONFIG_TEST_NAME", "changed-after-first-load")

		var second testConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, first, second)
	})

	t.Run("fails on missing required variable", func(t *testing.T) {
		var cfg requiredConfig
		err := config.Load(&cfg)
		require.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("rejects nil pointer", func(t *testing.T) {
		err := config.Load[testConfig](nil)
		require.ErrorIs(t, err, config.ErrNilPointer)
	})
}
