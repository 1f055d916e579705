package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/gekko3d/lightbake"
)

const testLevel = `
name: test_room
lights:
  - id: left
    origin: [0, 0, 0]
    brightness: 1000
    attenuation: {quadratic: 1}
  - id: right
    origin: [50, 0, 0]
    brightness: 1000
    attenuation: {quadratic: 1}
    named: true
    initially_dark: true
brushes:
  - id: 1
    min: [20, -100, -100]
    max: [30, 100, 100]
`

func writeLevel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "room.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testLevel), 0o644))
	return path
}

func helpText() string {
	var sb strings.Builder
	printUsage(&sb)
	return sb.String()
}

func TestHelpContainsAllCommands(t *testing.T) {
	help := helpText()
	assert.Contains(t, help, "Usage:")
	for _, cmd := range commands {
		assert.Contains(t, help, cmd.name)
		assert.Contains(t, help, cmd.short)
	}
}

func TestLongHelp(t *testing.T) {
	for _, cmd := range commands {
		t.Run(cmd.name, func(t *testing.T) {
			var sb strings.Builder
			printCommandHelp(&sb, cmd.name)
			out := sb.String()
			assert.Contains(t, out, cmd.usage)
			assert.Contains(t, out, "-workers")
		})
	}

	var sb strings.Builder
	printCommandHelp(&sb, "no-such-command")
	assert.Contains(t, sb.String(), "unknown command")
}

func TestDispatchUnknownCommand(t *testing.T) {
	err := dispatch([]string{"bake-everything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bake-everything")
}

func TestParseRunArgs(t *testing.T) {
	opts, err := parseRunArgs("analyze", []string{"-workers", "3", "-dump-lights", "level.yaml"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 3, opts.workers)
	assert.True(t, opts.dumpLights)
	assert.Equal(t, "level.yaml", opts.level)

	_, err = parseRunArgs("analyze", nil, io.Discard)
	assert.ErrorContains(t, err, "usage: lightbake analyze")

	_, err = parseRunArgs("analyze", []string{"-bogus", "x.yaml"}, io.Discard)
	assert.Error(t, err)
}

func TestRunAnalyzePrintsListing(t *testing.T) {
	level := writeLevel(t)
	dumpPath := filepath.Join(t.TempDir(), "dump.yaml")

	var out bytes.Buffer
	err := runMode(lightbake.ModeAnalyzeOnly, []string{
		"-quiet", "-config", filepath.Join(t.TempDir(), "none.yaml"), "-dump", dumpPath, level,
	}, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "left")
	assert.Contains(t, text, "right")
	assert.Contains(t, text, "2 clusters")
	assert.NotContains(t, text, "baked")

	data, err := os.ReadFile(dumpPath)
	require.NoError(t, err)
	var dump struct {
		Clusters []struct {
			ClusterID int      `yaml:"cluster_id"`
			Members   []string `yaml:"member_light_ids"`
		} `yaml:"clusters"`
	}
	require.NoError(t, yaml.Unmarshal(data, &dump))
	require.Len(t, dump.Clusters, 2)
	assert.Equal(t, []string{"left"}, dump.Clusters[0].Members)
	assert.Equal(t, []string{"right"}, dump.Clusters[1].Members)
}

func TestRunFinalReportsPatch(t *testing.T) {
	level := writeLevel(t)

	var out bytes.Buffer
	err := runMode(lightbake.ModeFinal, []string{
		"-quiet", "-config", filepath.Join(t.TempDir(), "none.yaml"), "-map-name", "dm_test", level,
	}, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "baked 2 clusters into a 64x256 LUT")
	assert.Contains(t, text, "lightbake/dm_test/lut")
	assert.Contains(t, text, "1 switchable lights, 1 initially dark")
}

func TestProgressBarNilIsSafe(t *testing.T) {
	var bar *progressBar
	assert.NotPanics(t, func() {
		bar.Update("visibility", 1, 2)
		bar.Done()
	})

	var buf bytes.Buffer
	bar = newProgressBar(&buf)
	bar.Update("visibility", 0, 4)
	bar.Update("visibility", 0, 4)
	bar.Update("sampling", 4, 4)
	bar.Done()
	assert.Equal(t, 2, strings.Count(buf.String(), "\r"))
	assert.Contains(t, buf.String(), "sampling")
}
