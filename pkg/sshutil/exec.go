package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"

	"github.com/rileyhilliard/gpufleet/internal/errors"
	"golang.org/x/crypto/ssh"
)

type execResult struct {
	stdout, stderr []byte
	exitCode       int
	err            error
}

// Run executes cmd on the target and returns stdout, stderr and the exit
// code. A non-zero exit code with nil error means the command ran but
// failed. Exit code is -1 if the command couldn't be executed at all.
//
// SSH sessions over a tunneled channel can't take deadlines, so if ctx
// expires first the whole tunnel is closed to unblock the session and the
// context error is returned.
func (t *Tunnel) Run(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	done := make(chan execResult, 1)
	go func() {
		done <- t.exec(cmd)
	}()

	select {
	case r := <-done:
		return r.stdout, r.stderr, r.exitCode, r.err
	case <-ctx.Done():
		t.Close()
		return nil, nil, -1, errors.WrapWithCode(ctx.Err(), errors.ErrExec,
			fmt.Sprintf("'%s' on %s didn't finish in time", cmd, t.target),
			"The target may be overloaded or nvidia-smi may be hung.")
	}
}

func (t *Tunnel) exec(cmd string) execResult {
	session, err := t.client.NewSession()
	if err != nil {
		return execResult{exitCode: -1, err: errors.WrapWithCode(err, errors.ErrExec,
			fmt.Sprintf("Failed to open a session on %s", t.target),
			"Connection may have been closed. Try polling again.")}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	exitCode := 0
	if err := session.Run(cmd); err != nil {
		var exitErr *ssh.ExitError
		if !stderrors.As(err, &exitErr) {
			return execResult{exitCode: -1, err: errors.WrapWithCode(err, errors.ErrExec,
				fmt.Sprintf("Failed to execute command: %s", cmd),
				"Check if the command exists on the remote host.")}
		}
		exitCode = exitErr.ExitStatus()
	}

	return execResult{stdout: stdoutBuf.Bytes(), stderr: stderrBuf.Bytes(), exitCode: exitCode}
}
