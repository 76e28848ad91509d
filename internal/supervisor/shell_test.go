//go:build !windows

package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inovacc/reposync/internal/process"
)

func TestSystemShell_Run(t *testing.T) {
	dir := t.TempDir()

	out, err := (&SystemShell{}).Run(context.Background(), dir, "pwd")
	require.NoError(t, err)

	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(string(out)))
	assert.Equal(t, want, got)
}

func TestSystemShell_LaunchStillRunningIsSuccess(t *testing.T) {
	logDir := t.TempDir()
	sh := &SystemShell{LogDir: logDir}

	pid, err := sh.Launch(context.Background(), t.TempDir(), "echo started; sleep 5", 100*time.Millisecond)
	require.NoError(t, err)
	require.Positive(t, pid)

	t.Cleanup(func() { _ = process.GroupSignaler{}.Terminate(pid) })

	assert.True(t, process.IsRunning(pid))

	entries, err := os.ReadDir(logDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSystemShell_LaunchEarlyExitIsFailure(t *testing.T) {
	_, err := (&SystemShell{}).Launch(context.Background(), t.TempDir(), "exit 3", time.Second)
	assert.ErrorIs(t, err, ErrExitedEarly)
}

func TestLogFile(t *testing.T) {
	assert.Equal(t, filepath.Join("/logs", "alice_tool.log"), LogFile("/logs", "/r/alice/tool/"))
}
