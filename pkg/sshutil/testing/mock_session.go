package testing

import (
	"context"
	"errors"
	"regexp"
	"sync"

	"github.com/rileyhilliard/gpufleet/pkg/sshutil"
)

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error
	// Hang blocks Run until the context is done.
	Hang bool
}

// MockSession simulates a tunneled session for testing.
type MockSession struct {
	mu         sync.Mutex
	jumpHost   string
	closed     bool
	closeCalls int
	ran        []string
	commands   map[string]CommandResponse // pattern -> response
}

var _ sshutil.Session = (*MockSession)(nil)

// NewMockSession creates a mock session that claims to go through jumpHost.
func NewMockSession(jumpHost string) *MockSession {
	return &MockSession{
		jumpHost: jumpHost,
		commands: make(map[string]CommandResponse),
	}
}

// SetCommandResponse registers a canned response for a command pattern.
// The pattern can be an exact string or a regex.
func (m *MockSession) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[pattern] = resp
}

// Run returns the registered response for cmd. Unknown commands exit 127.
func (m *MockSession) Run(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, -1, errors.New("session closed")
	}
	m.ran = append(m.ran, cmd)
	resp, ok := m.lookup(cmd)
	m.mu.Unlock()

	if !ok {
		return nil, []byte("command not found"), 127, nil
	}
	if resp.Hang {
		<-ctx.Done()
		return nil, nil, -1, ctx.Err()
	}
	return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
}

func (m *MockSession) lookup(cmd string) (CommandResponse, bool) {
	if resp, ok := m.commands[cmd]; ok {
		return resp, true
	}
	for pattern, resp := range m.commands {
		if matched, _ := regexp.MatchString(pattern, cmd); matched {
			return resp, true
		}
	}
	return CommandResponse{}, false
}

// JumpHost returns the jump host given at construction.
func (m *MockSession) JumpHost() string {
	return m.jumpHost
}

// Close marks the session closed.
func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closeCalls++
	return nil
}

// Closed reports whether Close has been called.
func (m *MockSession) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CloseCalls returns how many times Close was called.
func (m *MockSession) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// Commands returns the commands run so far.
func (m *MockSession) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ran...)
}
