package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/smprofiler/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args against a fresh HOME and a config
// path that does not exist, resetting every flag first.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	resetFlags(rootCmd)

	cmd := GetRootCmd()
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(output)

	if !hasFlag(args, "--config") {
		args = append([]string{"--config", filepath.Join(home, "smprofiler.yaml")}, args...)
	}
	cmd.SetArgs(args)

	err := cmd.Execute()
	return output.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name || strings.HasPrefix(a, name+"=") {
			return true
		}
	}
	return false
}

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		output, err := execute(t, "--version")
		require.NoError(t, err)

		assert.Contains(t, output, "smprofiler version")
		assert.Contains(t, output, GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		output, err := execute(t, "--help")
		require.NoError(t, err)

		assert.Contains(t, output, "smprofiler")
		assert.Contains(t, output, "profiler sessions")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "info", logLevelFlag.DefValue)

		outputFlag := cmd.PersistentFlags().Lookup("output")
		require.NotNil(t, outputFlag)
		assert.Equal(t, "o", outputFlag.Shorthand)
		assert.Equal(t, formatTable, outputFlag.DefValue)

		assert.NotNil(t, cmd.PersistentFlags().Lookup("server"))
		assert.NotNil(t, cmd.PersistentFlags().Lookup("request-timeout"))
	})

	t.Run("subcommands registered", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range GetRootCmd().Commands() {
			names[c.Name()] = true
		}
		for _, want := range []string{"serve", "status", "stop", "session", "data", "config", "version"} {
			assert.True(t, names[want], "%s command should exist", want)
		}
	})
}

func TestVersionCommand(t *testing.T) {
	output, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "smprofiler version "+GetVersion())
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}

func TestLogLevelFlagOverridesConfig(t *testing.T) {
	output, err := execute(t, "--log-level", "debug", "config", "show", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, output, `"level": "debug"`)

	output, err = execute(t, "config", "show", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, output, `"level": "info"`)
}

func TestBaseURL(t *testing.T) {
	cfg := config.DefaultConfig().Server
	assert.Equal(t, "http://127.0.0.1:8888", baseURL(cfg))

	cfg.Host = "10.0.0.5"
	cfg.Port = 9000
	assert.Equal(t, "http://10.0.0.5:9000", baseURL(cfg))
}
