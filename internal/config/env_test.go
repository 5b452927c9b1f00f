package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveCommandEnv(t *testing.T) {
	t.Run("resolves from commandEnv first", func(t *testing.T) {
		resolved, warnings := ResolveCommandEnv("serve --port ${PORT}", map[string]string{"PORT": "3000"})
		assert.Equal(t, "serve --port 3000", resolved)
		assert.Empty(t, warnings)
	})

	t.Run("falls back to process environment", func(t *testing.T) {
		t.Setenv("PORTMUX_TEST_VAR", "from-process-env")
		resolved, warnings := ResolveCommandEnv("echo ${PORTMUX_TEST_VAR}", nil)
		assert.Equal(t, "echo from-process-env", resolved)
		assert.Empty(t, warnings)
	})

	t.Run("undefined resolves to empty string with warning", func(t *testing.T) {
		resolved, warnings := ResolveCommandEnv("echo ${PORTMUX_DEFINITELY_UNDEFINED}", nil)
		assert.Equal(t, "echo ", resolved)
		assert.Len(t, warnings, 1)
	})
}

func TestResolveEnvObject(t *testing.T) {
	t.Run("expands every value, single pass", func(t *testing.T) {
		env := map[string]string{
			"BASE": "api",
			"URL":  "http://localhost/${BASE}",
		}
		resolved, warnings := ResolveEnvObject(env)
		assert.Equal(t, "http://localhost/api", resolved["URL"])
		assert.Equal(t, "api", resolved["BASE"])
		assert.Empty(t, warnings)
	})

	t.Run("nil map returns nil", func(t *testing.T) {
		resolved, warnings := ResolveEnvObject(nil)
		assert.Nil(t, resolved)
		assert.Nil(t, warnings)
	})
}
