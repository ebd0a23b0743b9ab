package killswitch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsActive_FalseInitially(t *testing.T) {
	k := New(Config{PollInterval: 20 * time.Millisecond})
	defer k.Dispose()
	require.False(t, k.IsActive())
}

func TestActivate_SetsActiveAndReason(t *testing.T) {
	k := New(Config{PollInterval: 20 * time.Millisecond})
	defer k.Dispose()
	k.Activate("manual stop")
	st := k.GetStatus()
	require.True(t, st.Active)
	require.Equal(t, "manual stop", st.Reason)
	require.NotNil(t, st.ActivatedAt)
}

func TestDeactivate_ClearsProgrammaticFlag(t *testing.T) {
	k := New(Config{PollInterval: 20 * time.Millisecond})
	defer k.Dispose()
	k.Activate("")
	require.True(t, k.IsActive())
	k.Deactivate()
	require.False(t, k.IsActive())
}

func TestKillFile_ActivatesAndDeactivatesOnPoll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "KILL")
	k := New(Config{KillFilePaths: []string{path}, PollInterval: 10 * time.Millisecond})
	defer k.Dispose()

	require.Eventually(t, func() bool { return !k.IsActive() }, time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.Eventually(t, func() bool { return k.IsActive() }, time.Second, 5*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool { return !k.IsActive() }, time.Second, 5*time.Millisecond)
}

func TestDeactivate_DoesNotClearKillFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "KILL")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	k := New(Config{KillFilePaths: []string{path}, PollInterval: 10 * time.Millisecond})
	defer k.Dispose()

	require.Eventually(t, func() bool { return k.IsActive() }, time.Second, 5*time.Millisecond)
	k.Deactivate()
	require.True(t, k.IsActive(), "kill-file presence should keep the switch active")
}

func TestDispose_StopsTickerWithoutPanic(t *testing.T) {
	k := New(Config{PollInterval: 5 * time.Millisecond})
	k.Dispose()
}
