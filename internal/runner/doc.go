// Package runner drives a benchmark across a matrix of
// (repetition, story, browser) combinations.
//
// A Runner expands the matrix into a flat, ordered list of Run
// objects. Each Run walks a strict state machine (initial, prepare,
// run, done), holds one live Scope per attached Probe, and captures
// its own failures so a broken run never halts the matrix. Finished
// runs are grouped bottom-up, repetitions per story, stories per
// browser, browsers at the root, and each level asks every probe to
// merge its children's results.
package runner
