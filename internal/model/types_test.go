package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"web", true},
		{"feature-auth", true},
		{"feature_auth", true},
		{"app.v2", true},
		{"a", true},
		{"", false},
		{"-leading", false},
		{"has space", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidateName(tt.name))
		})
	}
}

func TestGlobalConfig_EffectiveMaxBytes(t *testing.T) {
	t.Run("nil config falls back to default", func(t *testing.T) {
		var g *GlobalConfig
		assert.Equal(t, DefaultMaxLogBytes, g.EffectiveMaxBytes())
	})

	t.Run("nil logs falls back to default", func(t *testing.T) {
		g := &GlobalConfig{}
		assert.Equal(t, DefaultMaxLogBytes, g.EffectiveMaxBytes())
	})

	t.Run("zero maxBytes falls back to default", func(t *testing.T) {
		g := &GlobalConfig{Logs: &LogsConfig{MaxBytes: 0}}
		assert.Equal(t, DefaultMaxLogBytes, g.EffectiveMaxBytes())
	})

	t.Run("explicit value honored", func(t *testing.T) {
		g := &GlobalConfig{Logs: &LogsConfig{MaxBytes: 4096}}
		assert.Equal(t, int64(4096), g.EffectiveMaxBytes())
	})
}

func TestGlobalConfig_LoggingDisabled(t *testing.T) {
	var nilCfg *GlobalConfig
	assert.False(t, nilCfg.LoggingDisabled())

	assert.False(t, (&GlobalConfig{}).LoggingDisabled())
	assert.True(t, (&GlobalConfig{Logs: &LogsConfig{Disabled: true}}).LoggingDisabled())
}

func TestResolvedGroup_Group(t *testing.T) {
	rg := &ResolvedGroup{
		GroupDefinitionName: "app",
		ProjectConfig: &ProjectConfig{
			Groups: map[string]Group{
				"app": {Description: "the app group", Commands: []Command{{Name: "web", Command: "sleep 60"}}},
			},
		},
	}

	g := rg.Group()
	require.Len(t, g.Commands, 1)
	assert.Equal(t, "web", g.Commands[0].Name)
}

func TestProcessState_JSONRoundTrip(t *testing.T) {
	state := ProcessState{
		Group:   "myrepo::app::ab12cd34",
		Process: "web",
		Status:  StatusRunning,
		Pid:     1234,
		Ports:   []int{3000, 3001},
	}

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var decoded ProcessState
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, state, decoded)
}

func TestCLIError(t *testing.T) {
	t.Run("simple error", func(t *testing.T) {
		err := NewCLIError(ExitProcessStart, "already running")
		assert.Equal(t, ExitProcessStart, err.Code)
		assert.Equal(t, "already running", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("wrapped error", func(t *testing.T) {
		inner := errors.New("permission denied")
		err := WrapCLIError(ExitProcessStart, "failed to spawn", inner)
		assert.Equal(t, ExitProcessStart, err.Code)
		assert.Contains(t, err.Error(), "permission denied")
		assert.True(t, errors.Is(err, inner))
	})
}
