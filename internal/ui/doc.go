// Package ui renders gpufleet's terminal output with Lip Gloss.
//
// It covers the ranked GPU table and failures section printed by
// 'gpufleet poll', the jump-host reachability table, per-attempt connection
// lines for --verbose, a spinner shown while a batch is in flight, and the
// shared palette and symbols used by the interactive monitor.
//
// Use DisableColors() to switch to monochrome output (for --no-color and
// NO_COLOR).
package ui
