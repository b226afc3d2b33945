package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: thread
description: a reply linked from its post
setup:
  - invoke: commit
    as: post
    args: { entry_type: post, content: hello }
flow:
  - invoke: commit
    as: reply
    args: { entry_type: reply, content: hi }
    expect: { case: ok }
  - invoke: add_link
    args: { base: $post, target: $reply, tag: replies }
    expect: { case: ok }
assertions:
  - type: chain_length
    count: 2
  - type: verify
`

const failingScenario = `name: broken
description: expects a chain that is too long
flow:
  - invoke: commit
    args: { entry_type: post, content: only }
assertions:
  - type: chain_length
    count: 5
`

func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func execute(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestTestCommandPasses(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"thread.yaml": passingScenario})

	code, out, stderr := execute("test", dir)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, out, "✓ thread")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"thread.yaml": passingScenario})

	code, out, _ := execute("test", dir, "--update")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "(golden updated)")

	goldenPath := filepath.Join(dir, "golden", "thread.golden")
	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"thread"`)

	var result TestResult
	code, out, _ = execute("--format", "json", "test", dir)
	require.Equal(t, ExitSuccess, code)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "match", result.Scenarios[0].Golden)

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{}`), 0o644))
	code, out, _ = execute("test", dir)
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandFailureJSON(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"thread.yaml": passingScenario,
		"broken.yaml": failingScenario,
	})

	code, out, _ := execute("--format", "json", "test", dir)
	assert.Equal(t, ExitFailure, code)

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string     `json:"code"`
			Message string     `json:"message"`
			Details TestResult `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, "1 scenario(s) failed", resp.Error.Message)
	assert.Equal(t, 2, resp.Error.Details.Total)
	assert.Equal(t, 1, resp.Error.Details.Passed)
}

func TestTestCommandFilter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"thread.yaml": passingScenario,
		"broken.yaml": failingScenario,
	})

	code, out, _ := execute("test", dir, "--filter", "thr*")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
	assert.NotContains(t, out, "broken")
}

func TestTestCommandSingleFile(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"broken.yaml": failingScenario})

	code, out, stderr := execute("test", filepath.Join(dir, "broken.yaml"))
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "✗ broken")
	assert.Contains(t, out, "chain_length")
	assert.Contains(t, stderr, ErrCodeTestFailed)
}

func TestTestCommandLoadError(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"bad.yaml": "name: bad\n"})

	code, out, _ := execute("test", dir)
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "✗ bad.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandMissingPath(t *testing.T) {
	code, _, stderr := execute("test", filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "failed to find scenarios")
}

func TestTestCommandEmptyDir(t *testing.T) {
	code, out, _ := execute("test", t.TempDir())
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "No scenarios found.")
}
