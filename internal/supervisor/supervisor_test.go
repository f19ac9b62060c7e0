//go:build !windows

package supervisor

import (
	"bufio"
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/sessiond/agentbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawn_UnknownBinaryReturnsSpawnFailed(t *testing.T) {
	_, err := Spawn("definitely-not-a-real-binary-xyz", nil, ".", false, Options{})
	assert.ErrorIs(t, err, agentbridge.ErrSpawnFailed)
}

func TestSpawn_CleanExitReportsNilErr(t *testing.T) {
	s, err := Spawn("sh", []string{"-c", "exit 0"}, ".", false, Options{})
	require.NoError(t, err)
	<-s.Done()
	assert.NoError(t, s.Err())
}

func TestSpawn_NonZeroExitWrapsExitError(t *testing.T) {
	s, err := Spawn("sh", []string{"-c", "exit 7"}, ".", false, Options{})
	require.NoError(t, err)
	<-s.Done()

	var exitErr *agentbridge.ExitError
	require.True(t, errors.As(s.Err(), &exitErr))
	assert.Equal(t, 7, exitErr.Code)
}

func TestSpawn_StdoutIsReadable(t *testing.T) {
	s, err := Spawn("sh", []string{"-c", "echo hello"}, ".", false, Options{})
	require.NoError(t, err)

	scanner := bufio.NewScanner(s.Stdout())
	require.True(t, scanner.Scan())
	assert.Equal(t, "hello", scanner.Text())
	<-s.Done()
}

func TestSpawn_StdinPipeNilWhenNotWanted(t *testing.T) {
	s, err := Spawn("sh", []string{"-c", "exit 0"}, ".", false, Options{})
	require.NoError(t, err)
	assert.Nil(t, s.Stdin())
	<-s.Done()
}

func TestSpawn_StdinPipeWritableWhenWanted(t *testing.T) {
	s, err := Spawn("sh", []string{"-c", "cat"}, ".", true, Options{})
	require.NoError(t, err)
	require.NotNil(t, s.Stdin())

	_, err = s.Stdin().Write([]byte("hi\n"))
	require.NoError(t, err)
	require.NoError(t, s.Stop(context.Background()))
}

func TestStop_GracefulThenForceful(t *testing.T) {
	s, err := Spawn("sh", []string{"-c", "trap '' TERM; sleep 30"}, ".", false, Options{GracePeriod: 200 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, s.Stop(ctx))
	assert.Less(t, time.Since(start), 4*time.Second, "should escalate to SIGKILL after the grace period rather than waiting for sleep 30")
	assert.ErrorIs(t, s.Err(), agentbridge.ErrTerminated)
}

func TestStop_Idempotent(t *testing.T) {
	s, err := Spawn("sh", []string{"-c", "sleep 1"}, ".", false, Options{GracePeriod: 500 * time.Millisecond})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx)) // second call must not block or panic
}

func TestStderrLines_DeliversLines(t *testing.T) {
	s, err := Spawn("sh", []string{"-c", "echo oops 1>&2"}, ".", false, Options{})
	require.NoError(t, err)

	select {
	case line := <-s.StderrLines():
		assert.Equal(t, "oops", line.Text)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for stderr line")
	}
	<-s.Done()
}

func TestSignal_ProcessDoneTreatedAsSuccess(t *testing.T) {
	s, err := Spawn("sh", []string{"-c", "exit 0"}, ".", false, Options{})
	require.NoError(t, err)
	<-s.Done()
	require.NoError(t, s.Signal(syscall.SIGTERM))
}
