package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebops/deploybot/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.name), "level %q", tt.name)
	}
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/deploy_build", "deploy_build"},
		{"deploy_build", "deploy_build"},
		{" /deploy_build ", "deploy_build"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, commandName(tt.in))
	}
}

func TestCommandListCoversEveryProject(t *testing.T) {
	opts, err := config.ParseOptions([]byte(`{
		"projects": {
			"zpay": {
				"command": "/deploy_build",
				"environments": ["UAT"],
				"services": {"UAT": ["pre-admin"]},
				"group_ids": [-1001]
			},
			"wallet": {
				"command": "wallet_release",
				"environments": ["UAT"],
				"services": {"UAT": ["w-api"]},
				"group_ids": [-1002]
			}
		}
	}`))
	require.NoError(t, err)

	commands := commandList(opts)
	require.Len(t, commands, 4)
	assert.Equal(t, "start", commands[0].Name)
	assert.Equal(t, "deploy_build", commands[1].Name)
	assert.Equal(t, "wallet_release", commands[2].Name)
	assert.Equal(t, "cancel", commands[3].Name)
	for _, c := range commands {
		assert.NotEmpty(t, c.Description)
	}
}

func TestDBPathJoinsDataDir(t *testing.T) {
	assert.Equal(t, "data/workflows.db", options{}.dbPath())
	assert.Equal(t, "/var/lib/bot/workflows.db", options{dataDir: "/var/lib/bot"}.dbPath())
}
