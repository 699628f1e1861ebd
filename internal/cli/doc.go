// Package cli implements the gpufleet command-line interface.
//
// Each Cobra command parses its flags and hands off to SetupWorkflow,
// which loads and validates config, reads the SSH key and known_hosts,
// and wires a host.Selector and fleet.Collector. Everything that can go
// wrong there is a config error, reported with exit code 2 before any
// connection is attempted.
//
// # Command Structure
//
//	gpufleet [poll]     - Poll every target once and print the ranked table
//	gpufleet monitor    - Interactive view, r to poll again
//	gpufleet jumps      - Check jump host reachability
//	gpufleet doctor     - Diagnose config, key, known_hosts and jump hosts
//	gpufleet init       - Create .gpufleet.yaml
//	gpufleet version    - Print build information
//	gpufleet completion - Shell completion scripts
//
// # Flag Handling
//
// Global flags (--config, --verbose, --quiet, --no-color, --json,
// --targets) are defined on the root command and available to all
// subcommands.
//
// # Machine Output
//
// With --json every command writes one JSONEnvelope to stdout. A poll
// where some targets failed sets success to false, keeps the results in
// data and reports PARTIAL_RESULTS as the error.
package cli
