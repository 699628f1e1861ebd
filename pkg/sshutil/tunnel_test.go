package sshutil_test

import (
	"context"
	stderrors "errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/pkg/sshutil"
	sshtest "github.com/rileyhilliard/gpufleet/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const probeCmd = "nvidia-smi --query-gpu=utilization.gpu,memory.used,memory.total --format=csv,noheader"

type rig struct {
	creds  *sshutil.Credentials
	jump   *sshtest.Server
	target *sshtest.Server
}

// newRig starts a jump server and a target server that both trust one key,
// with gpu25:22 routed from the jump to the target.
func newRig(t *testing.T) *rig {
	t.Helper()

	keyPath, pub, err := sshtest.WriteKeyFile(t.TempDir())
	require.NoError(t, err)
	creds, err := sshutil.LoadCredentials("pu22", keyPath)
	require.NoError(t, err)

	jump, err := sshtest.NewServer("pu22", pub)
	require.NoError(t, err)
	t.Cleanup(func() { jump.Close() })

	target, err := sshtest.NewServer("pu22", pub)
	require.NoError(t, err)
	t.Cleanup(func() { target.Close() })

	jump.Route("gpu25", 22, target.Addr())
	target.SetCommandResponse(probeCmd, sshtest.CommandResponse{
		Stdout: []byte("45 %, 2048 MiB, 8192 MiB\n"),
	})

	return &rig{creds: creds, jump: jump, target: target}
}

func fastOptions() sshutil.Options {
	return sshutil.Options{
		ConnectTimeout: 2 * time.Second,
		ChannelTimeout: 2 * time.Second,
		AuthTimeout:    2 * time.Second,
	}
}

func TestBuildTunnel_RunsCommandThroughJump(t *testing.T) {
	r := newRig(t)

	tun, err := sshutil.BuildTunnel(context.Background(), r.jump.Addr(), "gpu25", r.creds, fastOptions())
	require.NoError(t, err)
	defer tun.Close()

	assert.Equal(t, r.jump.Addr(), tun.JumpHost())
	assert.Equal(t, "gpu25", tun.Target())

	stdout, stderr, code, err := tun.Run(context.Background(), probeCmd)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Empty(t, stderr)
	assert.Equal(t, "45 %, 2048 MiB, 8192 MiB\n", string(stdout))

	forwards := r.jump.Forwards()
	require.Len(t, forwards, 1)
	assert.Equal(t, sshtest.ForwardRequest{Host: "gpu25", Port: 22, OriginHost: "localhost", OriginPort: 22}, forwards[0])
}

func TestTunnel_CloseIsIdempotent(t *testing.T) {
	r := newRig(t)

	tun, err := sshutil.BuildTunnel(context.Background(), r.jump.Addr(), "gpu25", r.creds, fastOptions())
	require.NoError(t, err)

	assert.NoError(t, tun.Close())
	assert.NoError(t, tun.Close())

	_, _, code, err := tun.Run(context.Background(), probeCmd)
	assert.Error(t, err)
	assert.Equal(t, -1, code)
}

func TestTunnel_RunNonZeroExit(t *testing.T) {
	r := newRig(t)

	tun, err := sshutil.BuildTunnel(context.Background(), r.jump.Addr(), "gpu25", r.creds, fastOptions())
	require.NoError(t, err)
	defer tun.Close()

	_, stderr, code, err := tun.Run(context.Background(), "nvidia-smi --bogus")
	require.NoError(t, err, "a command that ran is not a transport error")
	assert.Equal(t, 127, code)
	assert.Contains(t, string(stderr), "command not found")
}

func TestTunnel_RunHonorsContext(t *testing.T) {
	r := newRig(t)
	r.target.SetExecDelay(10 * time.Second)

	tun, err := sshutil.BuildTunnel(context.Background(), r.jump.Addr(), "gpu25", r.creds, fastOptions())
	require.NoError(t, err)
	defer tun.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, code, err := tun.Run(ctx, probeCmd)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, -1, code)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
}

func TestBuildTunnel_StageFailures(t *testing.T) {
	r := newRig(t)

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedAddr := closed.Addr().String()
	closed.Close()

	otherKey, _, err := sshtest.WriteKeyFile(t.TempDir())
	require.NoError(t, err)
	stranger, err := sshutil.LoadCredentials("pu22", otherKey)
	require.NoError(t, err)

	tests := []struct {
		name   string
		jump   string
		target string
		creds  *sshutil.Credentials
		stage  string
	}{
		{"jump host down", closedAddr, "gpu25", r.creds, sshutil.StageJumpConnect},
		{"jump host rejects key", r.jump.Addr(), "gpu25", stranger, sshutil.StageJumpConnect},
		{"no forward to target", r.jump.Addr(), "gpu99", r.creds, sshutil.StageChannelOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tun, err := sshutil.BuildTunnel(context.Background(), tt.jump, tt.target, tt.creds, fastOptions())
			require.Error(t, err)
			assert.Nil(t, tun)

			var stageErr *sshutil.StageError
			require.True(t, stderrors.As(err, &stageErr))
			assert.Equal(t, tt.stage, stageErr.Stage)
			assert.Equal(t, tt.jump, stageErr.JumpHost)
			assert.Equal(t, tt.target, stageErr.Target)
			assert.NotEmpty(t, stageErr.Suggestion())
		})
	}
}

func TestBuildTunnel_TargetRejectsKey(t *testing.T) {
	r := newRig(t)

	_, otherPub, err := sshtest.WriteKeyFile(t.TempDir())
	require.NoError(t, err)
	picky, err := sshtest.NewServer("pu22", otherPub)
	require.NoError(t, err)
	defer picky.Close()
	r.jump.Route("gpu26", 22, picky.Addr())

	_, err = sshutil.BuildTunnel(context.Background(), r.jump.Addr(), "gpu26", r.creds, fastOptions())
	require.Error(t, err)

	var stageErr *sshutil.StageError
	require.True(t, stderrors.As(err, &stageErr))
	assert.Equal(t, sshutil.StageTargetAuth, stageErr.Stage)
	assert.False(t, stageErr.Timeout())
}

func TestBuildTunnel_HungTargetTimesOut(t *testing.T) {
	r := newRig(t)

	hole, err := sshtest.NewBlackhole()
	require.NoError(t, err)
	defer hole.Close()
	r.jump.Route("gpu27", 22, hole.Addr())

	opts := fastOptions()
	opts.AuthTimeout = 200 * time.Millisecond

	start := time.Now()
	_, err = sshutil.BuildTunnel(context.Background(), r.jump.Addr(), "gpu27", r.creds, opts)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var stageErr *sshutil.StageError
	require.True(t, stderrors.As(err, &stageErr))
	assert.Equal(t, sshutil.StageTargetAuth, stageErr.Stage)
	assert.True(t, stageErr.Timeout())
	assert.Contains(t, stageErr.Suggestion(), "gpu27")
}

func TestBuildTunnel_HungJumpTimesOut(t *testing.T) {
	keyPath, _, err := sshtest.WriteKeyFile(t.TempDir())
	require.NoError(t, err)
	creds, err := sshutil.LoadCredentials("pu22", keyPath)
	require.NoError(t, err)

	hole, err := sshtest.NewBlackhole()
	require.NoError(t, err)
	defer hole.Close()

	opts := fastOptions()
	opts.ConnectTimeout = 200 * time.Millisecond

	_, err = sshutil.BuildTunnel(context.Background(), hole.Addr(), "gpu25", creds, opts)
	require.Error(t, err)

	var stageErr *sshutil.StageError
	require.True(t, stderrors.As(err, &stageErr))
	assert.Equal(t, sshutil.StageJumpConnect, stageErr.Stage)
	assert.True(t, stageErr.Timeout())
}

func TestBuildTunnel_RecordsHostKeysOnFirstUse(t *testing.T) {
	r := newRig(t)
	knownHosts := filepath.Join(t.TempDir(), "known_hosts")

	store, err := sshutil.NewHostKeyStore(sshutil.HostKeyTOFU, knownHosts)
	require.NoError(t, err)

	opts := fastOptions()
	opts.HostKeys = store.Callback()

	for i := 0; i < 2; i++ {
		tun, err := sshutil.BuildTunnel(context.Background(), r.jump.Addr(), "gpu25", r.creds, opts)
		require.NoError(t, err)
		tun.Close()
	}

	data, err := os.ReadFile(knownHosts)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2, "jump host and target recorded once each")
	assert.Contains(t, string(data), "gpu25")
}

func TestDialJump(t *testing.T) {
	r := newRig(t)

	client, err := sshutil.DialJump(context.Background(), r.jump.Addr(), r.creds, fastOptions())
	require.NoError(t, err)
	assert.NoError(t, client.Close())
}

func TestDialJump_FailureIsStageError(t *testing.T) {
	r := newRig(t)
	addr := r.jump.Addr()
	r.jump.Close()

	_, err := sshutil.DialJump(context.Background(), addr, r.creds, fastOptions())
	require.Error(t, err)

	var stageErr *sshutil.StageError
	require.True(t, stderrors.As(err, &stageErr))
	assert.Equal(t, sshutil.StageJumpConnect, stageErr.Stage)
	assert.Equal(t, addr, stageErr.JumpHost)
}

func TestDialJump_KnownEd25519KeyOnMultiKeyHost(t *testing.T) {
	keyPath, pub, err := sshtest.WriteKeyFile(t.TempDir())
	require.NoError(t, err)
	creds, err := sshutil.LoadCredentials("pu22", keyPath)
	require.NoError(t, err)

	ed, err := sshtest.GenerateSigner()
	require.NoError(t, err)
	ec, err := sshtest.GenerateECDSASigner()
	require.NoError(t, err)
	jump, err := sshtest.NewServer("pu22", pub, ed, ec)
	require.NoError(t, err)
	t.Cleanup(func() { jump.Close() })

	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(jump.Addr())}, ed.PublicKey()) + "\n"
	require.NoError(t, os.WriteFile(knownHosts, []byte(line), 0600))

	store, err := sshutil.NewHostKeyStore(sshutil.HostKeyTOFU, knownHosts)
	require.NoError(t, err)

	opts := fastOptions()
	opts.HostKeys = store.Callback()
	opts.HostKeyAlgorithms = store.Algorithms

	client, err := sshutil.DialJump(context.Background(), jump.Addr(), creds, opts)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	data, err := os.ReadFile(knownHosts)
	require.NoError(t, err)
	assert.Equal(t, line, string(data), "matching key is not recorded again")

	// Without the known algorithms the server presents its ECDSA key.
	opts.HostKeyAlgorithms = nil
	_, err = sshutil.DialJump(context.Background(), jump.Addr(), creds, opts)
	var mismatch *sshutil.HostKeyMismatchError
	require.True(t, stderrors.As(err, &mismatch))
	assert.Equal(t, ssh.KeyAlgoECDSA256, mismatch.ReceivedType)
}

func TestBuildTunnel_KnownEd25519KeyOnMultiKeyTarget(t *testing.T) {
	keyPath, pub, err := sshtest.WriteKeyFile(t.TempDir())
	require.NoError(t, err)
	creds, err := sshutil.LoadCredentials("pu22", keyPath)
	require.NoError(t, err)

	jump, err := sshtest.NewServer("pu22", pub)
	require.NoError(t, err)
	t.Cleanup(func() { jump.Close() })

	ed, err := sshtest.GenerateSigner()
	require.NoError(t, err)
	ec, err := sshtest.GenerateECDSASigner()
	require.NoError(t, err)
	target, err := sshtest.NewServer("pu22", pub, ed, ec)
	require.NoError(t, err)
	t.Cleanup(func() { target.Close() })
	jump.Route("gpu25", 22, target.Addr())

	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(knownHosts,
		[]byte(knownhosts.Line([]string{"gpu25"}, ed.PublicKey())+"\n"), 0600))

	store, err := sshutil.NewHostKeyStore(sshutil.HostKeyTOFU, knownHosts)
	require.NoError(t, err)

	opts := fastOptions()
	opts.HostKeys = store.Callback()
	opts.HostKeyAlgorithms = store.Algorithms

	tun, err := sshutil.BuildTunnel(context.Background(), jump.Addr(), "gpu25", creds, opts)
	require.NoError(t, err)
	assert.NoError(t, tun.Close())
}
