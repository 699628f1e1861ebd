// Package doctor runs the diagnostics behind 'gpufleet doctor': config
// discovery and validation, the SSH key and known_hosts file, and one
// login per jump host. Targets are never contacted.
package doctor
