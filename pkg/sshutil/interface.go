package sshutil

import "context"

// Session is a live connection to one target that can run commands.
// *Tunnel implements it; tests use testing.MockSession.
type Session interface {
	// Run executes cmd and returns stdout, stderr and exit code.
	// Exit code is -1 if the command couldn't be executed at all.
	Run(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error)

	// JumpHost returns the jump host the session goes through.
	JumpHost() string

	// Close releases the session. Safe to call more than once.
	Close() error
}

var _ Session = (*Tunnel)(nil)
