package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var harnessScenariosDir = filepath.Join("..", "harness", "testdata", "scenarios")

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeTmpScenario writes a scenario against the harness festival catalog
// into a fresh directory and returns that directory.
func writeTmpScenario(t *testing.T, name, body string) string {
	t.Helper()
	catalog, err := filepath.Abs(filepath.Join("..", "harness", "testdata", "catalog"))
	require.NoError(t, err)

	dir := t.TempDir()
	content := "name: " + name + "\ncatalog: " + catalog + "\n" + body
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0644))
	return dir
}

const passingScenario = `participants:
  - id: p1
    role: PARTICIPANT
steps:
  - op: select
    participant: p1
    activity: workshop_a
    expect:
      auto_picked: [lunch]
assertions:
  - type: program_equals
    participant: p1
    activities: [workshop_a, lunch]
`

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentDir(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := runTestCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	out, err = runTestCommand(t, "json", t.TempDir())
	require.NoError(t, err)
	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 0, resp.Data.Total)
	assert.NotNil(t, resp.Data.Scenarios)
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := runTestCommand(t, "text", harnessScenariosDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ junior_program")
	assert.Contains(t, out, "✓ auto_pick_eviction")
	assert.Contains(t, out, "✓ alumni_gala")
	assert.Contains(t, out, "3 passed, 0 failed, 3 total")
}

func TestTestCommandFilterJSON(t *testing.T) {
	out, err := runTestCommand(t, "json", harnessScenariosDir, "--filter", "junior_*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "junior_program", resp.Data.Scenarios[0].Name)
	assert.Empty(t, resp.Data.Scenarios[0].Golden, "no golden directory next to the scenarios")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := writeTmpScenario(t, "failing", `participants:
  - id: p1
    role: MEMBRE_JUNIOR
steps:
  - op: select
    participant: p1
    activity: board_meeting
`)

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "expected OK, got FORBIDDEN")
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0644))

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandUpdateAndCompareGolden(t *testing.T) {
	dir := writeTmpScenario(t, "auto_pick", passingScenario)

	out, err := runTestCommand(t, "text", dir, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ auto_pick (golden updated)")

	goldenPath := filepath.Join(dir, "golden", "auto_pick.golden")
	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name": "auto_pick"`)

	out, err = runTestCommand(t, "json", dir)
	require.NoError(t, err, out)
	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "match", resp.Data.Scenarios[0].Golden)

	require.NoError(t, os.WriteFile(goldenPath, []byte("{}\n"), 0644))
	out, err = runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "notes.txt", "sub/c.yaml", "golden/d.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "b.yml"),
		filepath.Join(dir, "sub", "c.yaml"),
	}, files)

	files, err = findScenarioFiles(dir, "[bc]")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "b.yml"),
		filepath.Join(dir, "sub", "c.yaml"),
	}, files)

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}
