// Package harness runs scripted selection scenarios against the engine.
//
// A scenario names a CUE catalog, registers participants, executes a list
// of engine operations and checks the resulting programs. Each run uses a
// fresh SQLite store, sequential selection ids and a stepping clock, so
// the trace is reproducible and can be compared to a golden file.
//
// # Scenario Format
//
//	name: junior_program
//	description: "A junior cannot attend the board meeting"
//	catalog: ../catalog
//	participants:
//	  - id: p1
//	    role: MEMBRE_JUNIOR
//	steps:
//	  - op: ensure_required
//	    participant: p1
//	    expect:
//	      added: [ceremony]
//	  - op: select
//	    participant: p1
//	    activity: board_meeting
//	    expect:
//	      error: FORBIDDEN
//	assertions:
//	  - type: program_equals
//	    participant: p1
//	    activities: [ceremony]
//
// Operations: select, deselect, ensure_required, update_program.
//
// # Assertion Types
//
//   - selected: the activity is in the participant's program
//   - not_selected: the activity is not in the program
//   - program_equals: the program is exactly these activities, in enrolment order
//   - no_overlap: no two activities in the program collide
//   - mandatory_present: every mandatory activity of the role is in the program
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/junior_program.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
package harness
