package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/grocerybot/core/model"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("K_LOGGING__LEVEL", "error")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestParsePoint(t *testing.T) {
	p, err := parsePoint(" -1.5, 2 ")
	require.NoError(t, err)
	assert.Equal(t, model.Point{X: -1.5, Y: 2}, p)

	for _, bad := range []string{"", "1", "1,2,3", "a,2", "1,b"} {
		_, err := parsePoint(bad)
		assert.Error(t, err, bad)
	}
}

func TestPlanCommand(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "path.png")
	csv := filepath.Join(dir, "path.csv")
	out := execute(t, "plan", "--from", "0,0", "--to", "3,1", "--seed", "3", "--png", png, "--csv", csv)
	assert.Contains(t, out, "waypoints after")

	img, err := os.ReadFile(png)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, []byte("\x89PNG")))

	rows, err := os.ReadFile(csv)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(rows)), "\n")
	assert.Equal(t, "index,x,y", lines[0])
	assert.GreaterOrEqual(t, len(lines), 2)
}

func TestTopicsCommand(t *testing.T) {
	out := execute(t, "topics")
	assert.Contains(t, out, "TOPIC")
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, model.TopicTick+" ") {
			assert.Contains(t, line, "clock")
			assert.Contains(t, line, "scheduler")
			return
		}
	}
	t.Fatalf("no %s line in\n%s", model.TopicTick, out)
}

func TestSimCommand(t *testing.T) {
	chart := filepath.Join(t.TempDir(), "run.html")
	out := execute(t, "sim", "--ticks", "50", "--chart", chart)
	assert.Contains(t, out, "ticks: 50")
	html, err := os.ReadFile(chart)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Wheel commands")
}
