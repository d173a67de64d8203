package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCommand(t *testing.T) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Int("num-queries", 0, "")
	cmd.Flags().Float64("threshold", 0, "")
	return cmd
}

func TestLoadConfigFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("RESEARCH_NUM_QUERIES", "3")
	cmd := newFlagCommand(t)
	require.NoError(t, cmd.Flags().Set("num-queries", "6"))

	cfg, err := loadConfig(cmd, map[string]string{
		"RESEARCH_NUM_QUERIES":         "num-queries",
		"RESEARCH_RELEVANCE_THRESHOLD": "threshold",
	})
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.ResearchNumQueries)
	assert.Equal(t, 0.5, cfg.ResearchRelevanceThreshold)
}

func TestLoadConfigUnsetFlagsKeepEnvironment(t *testing.T) {
	t.Setenv("RESEARCH_NUM_QUERIES", "3")
	cmd := newFlagCommand(t)

	cfg, err := loadConfig(cmd, map[string]string{"RESEARCH_NUM_QUERIES": "num-queries"})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.ResearchNumQueries)
}

func TestLoadConfigRejectsInvalidFlag(t *testing.T) {
	cmd := newFlagCommand(t)
	require.NoError(t, cmd.Flags().Set("threshold", "1.5"))

	_, err := loadConfig(cmd, map[string]string{"RESEARCH_RELEVANCE_THRESHOLD": "threshold"})
	require.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["run"])
	assert.NotNil(t, runCmd.Flags().Lookup("objective"))
}
