package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// To regenerate golden files:
//
//	go test ./internal/harness -update
func TestRunWithGolden_Testdata(t *testing.T) {
	for _, name := range []string{"junior_program", "auto_pick_eviction", "alumni_gala"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestGoldenPath(t *testing.T) {
	got := GoldenPath(filepath.Join("scenarios", "junior.yaml"))
	assert.Equal(t, filepath.Join("scenarios", "golden", "junior.golden"), got)
}

func TestUpdateAndCompareGolden(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "junior_program.yaml"))
	require.NoError(t, err)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "golden", "junior_program.golden")
	require.NoError(t, UpdateGolden(path, scenario, result))

	match, err := CompareGolden(path, scenario, result)
	require.NoError(t, err)
	assert.True(t, match)

	result.Trace[0].Outcome = "CONFLICT"
	match, err = CompareGolden(path, scenario, result)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestCompareGolden_MissingFile(t *testing.T) {
	_, err := CompareGolden(filepath.Join(t.TempDir(), "none.golden"), &Scenario{Name: "x"}, NewResult())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSnapshot_Format(t *testing.T) {
	result := NewResult()
	result.AddTrace(TraceEvent{
		Step:        1,
		Op:          OpDeselect,
		Participant: "p1",
		Activity:    "hike",
		Outcome:     OutcomeOK,
		Program:     []string{},
	})

	data, err := Snapshot("tiny", result)
	require.NoError(t, err)

	want := `{
  "scenario_name": "tiny",
  "trace": [
    {
      "step": 1,
      "op": "deselect",
      "participant": "p1",
      "activity": "hike",
      "outcome": "OK",
      "program": []
    }
  ]
}
`
	assert.Equal(t, want, string(data))
}
