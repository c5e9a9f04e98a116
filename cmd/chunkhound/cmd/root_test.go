package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRootCmd_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make(map[string]bool)
	for _, sc := range cmd.Commands() {
		names[sc.Name()] = true
	}

	for _, want := range []string{"serve", "index", "stats", "version"} {
		assert.True(t, names[want], "expected %q subcommand", want)
	}
}

func TestNewRootCmd_DebugFlag(t *testing.T) {
	cmd := NewRootCmd()

	flag := cmd.PersistentFlags().Lookup("debug")

	assert.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
