// Package engine implements participant activity selection.
//
// Every operation follows the same shape:
//
//  1. Lock the participant (Locker: in-process or Redis)
//  2. Load participant, catalog and current selections from the Repository
//  3. Compile the RuleSet for the participant's role (compiler.CompileRules)
//  4. Validate the request against the RuleSet, the EXCLUDES correlations
//     and the time windows of the current program
//  5. Apply evictions and creations inside one store transaction
//
// Validation happens before the first write, so a rejected request leaves
// the program untouched.
//
// Mandatory activities are protected: a Select whose time window overlaps
// a mandatory selection is rejected with CONFLICT instead of evicting it,
// and Deselect refuses to remove one. EnsureRequired and UpdateProgram
// both leave every mandatory activity selected.
//
// REQUIRES propagation follows chains depth-first with a visited set and
// a step quota (WithMaxSteps), so cyclic catalogs terminate.
package engine
