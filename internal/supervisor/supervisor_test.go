package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inovacc/reposync/internal/model"
	"github.com/inovacc/reposync/internal/process"
)

type shellCall struct {
	kind    string
	dir     string
	command string
}

type fakeShell struct {
	mu        sync.Mutex
	calls     []shellCall
	runErr    map[string]error
	launchErr map[string]error
	nextPID   int
	delay     time.Duration

	inFlight    int
	maxInFlight int
}

func newFakeShell() *fakeShell {
	return &fakeShell{runErr: map[string]error{}, launchErr: map[string]error{}, nextPID: 5000}
}

func (f *fakeShell) enter(kind, dir, command string) {
	f.mu.Lock()
	f.calls = append(f.calls, shellCall{kind: kind, dir: dir, command: command})
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func (f *fakeShell) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *fakeShell) Run(_ context.Context, dir, command string) ([]byte, error) {
	f.enter("run", dir, command)
	defer f.leave()

	return []byte("ok"), f.runErr[command]
}

func (f *fakeShell) Launch(_ context.Context, dir, command string, _ time.Duration) (int, error) {
	f.enter("launch", dir, command)
	defer f.leave()

	if err := f.launchErr[command]; err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPID++

	return f.nextPID, nil
}

func (f *fakeShell) commands(kind string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.calls {
		if c.kind == kind {
			out = append(out, c.command)
		}
	}

	return out
}

type fakeSignaler struct {
	mu   sync.Mutex
	pids []int
}

func (f *fakeSignaler) signalled(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range f.pids {
		if p == pid {
			return true
		}
	}

	return false
}

func (f *fakeSignaler) Terminate(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pids = append(f.pids, pid)

	return nil
}

type fakePIDs struct {
	mu   sync.Mutex
	apps map[string]int
}

func (f *fakePIDs) RecordApp(path string, pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.apps == nil {
		f.apps = map[string]int{}
	}

	f.apps[filepath.Clean(path)] = pid

	return nil
}

func (f *fakePIDs) AppPID(path string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pid, ok := f.apps[filepath.Clean(path)]

	return pid, ok, nil
}

func (f *fakePIDs) ForgetApp(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.apps, filepath.Clean(path))

	return nil
}

type fakeSettings struct {
	mu        sync.Mutex
	records   map[string]model.RepositorySettings
	finalized []string
}

func (f *fakeSettings) Get(user, name string) (model.RepositorySettings, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rs, ok := f.records[user+"/"+name]

	return rs, ok, nil
}

func (f *fakeSettings) SetSetupFinalized(user, name string, v bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.finalized = append(f.finalized, user+"/"+name)

	rs := f.records[user+"/"+name]
	rs.SetupFinalized = v
	f.records[user+"/"+name] = rs

	return nil
}

type fakeSource struct {
	recs  []model.ProcessRecord
	err   error
	calls int
}

func (f *fakeSource) Snapshot(context.Context, []string) ([]model.ProcessRecord, error) {
	f.calls++
	return f.recs, f.err
}

type harness struct {
	sup      *Supervisor
	shell    *fakeShell
	signaler *fakeSignaler
	pids     *fakePIDs
	settings *fakeSettings
	source   *fakeSource
	cwds     map[int]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		shell:    newFakeShell(),
		signaler: &fakeSignaler{},
		pids:     &fakePIDs{},
		settings: &fakeSettings{records: map[string]model.RepositorySettings{}},
		source:   &fakeSource{},
		cwds:     map[int]string{},
	}

	h.sup = New(Options{
		Shell:    h.shell,
		Signaler: h.signaler,
		PIDs:     h.pids,
		Settings: h.settings,
		Finder: &process.Inspector{
			Source: h.source,
			CWD: func(pid int) (string, error) {
				if cwd, ok := h.cwds[pid]; ok {
					return cwd, nil
				}

				return "", os.ErrPermission
			},
		},
		Alive:       func(pid int) bool { return !h.signaler.signalled(pid) },
		Grace:       10 * time.Millisecond,
		StopTimeout: time.Second,
	})
	h.sup.exitPoll = time.Millisecond

	return h
}

// checkout creates <root>/alice/<name> with a settings.json manifest.
func checkout(t *testing.T, name, commands string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "alice", name)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	if commands != "" {
		content := `{"dev-gui": {"version": "1.0.0", "commands": ` + commands + `}}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(content), 0o644))
	}

	return dir
}

func TestStart_LaunchesAndRecordsPID(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "python3 app.py"}`)

	pid, err := h.sup.Start(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"python3 app.py"}, h.shell.commands("launch"))

	recorded, ok, _ := h.pids.AppPID(dir)
	assert.True(t, ok)
	assert.Equal(t, pid, recorded)
}

func TestStart_NoStartCommand(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"stop": "./stop.sh"}`)

	_, err := h.sup.Start(context.Background(), dir)
	assert.ErrorIs(t, err, ErrNoStartCommand)
	assert.Empty(t, h.shell.commands("launch"))
}

func TestStart_ManifestMissing(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", "")

	_, err := h.sup.Start(context.Background(), dir)
	assert.ErrorIs(t, err, ErrManifestMissing)
}

func TestStart_FallsBackToAlternates(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "bad", "start_alt_1": "worse", "start_alt_2": "good"}`)
	h.shell.launchErr["bad"] = ErrExitedEarly
	h.shell.launchErr["worse"] = ErrExitedEarly

	_, err := h.sup.Start(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"bad", "worse", "good"}, h.shell.commands("launch"))
}

func TestStart_AllLaunchesFail(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "bad"}`)
	h.shell.launchErr["bad"] = ErrExitedEarly

	_, err := h.sup.Start(context.Background(), dir)
	require.Error(t, err)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "start", cmdErr.Name)
	assert.ErrorIs(t, err, ErrExitedEarly)
}

func TestStop_UsesStopCommandOnly(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "python3 app.py", "stop": "./stop.sh"}`)
	require.NoError(t, h.pids.RecordApp(dir, 4242))

	res, err := h.sup.Stop(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, StopByCommand, res.Method)
	assert.Equal(t, []string{"./stop.sh"}, h.shell.commands("run"))
	assert.Empty(t, h.signaler.pids)
	assert.Zero(t, h.source.calls)
}

func TestStop_SignalsRecordedPID(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "python3 app.py"}`)
	require.NoError(t, h.pids.RecordApp(dir, 4242))

	res, err := h.sup.Stop(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, StopByPID, res.Method)
	assert.Equal(t, []int{4242}, h.signaler.pids)
	assert.Zero(t, h.source.calls)

	_, ok, _ := h.pids.AppPID(dir)
	assert.False(t, ok)
}

func TestStop_ManifestPID(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "python3 app.py"}`)

	content := `{"dev-gui": {"commands": {"start": "python3 app.py"}, "pid": 777}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(content), 0o644))

	res, err := h.sup.Stop(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, StopByPID, res.Method)
	assert.Equal(t, []int{777}, h.signaler.pids)
}

func TestStop_ScansProcessTableByCWD(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "python3 app.py"}`)
	other := t.TempDir()

	h.source.recs = []model.ProcessRecord{
		{PID: 10, Cmd: "python3 app.py"},
		{PID: 11, Cmd: "python3 -m worker"},
		{PID: 12, Cmd: "python3 app.py"},
		{PID: 13, Cmd: "python3 unreadable.py"},
		{PID: 14, Cmd: "node server.js"},
	}
	h.cwds[10] = dir
	h.cwds[11] = dir
	h.cwds[12] = other
	h.cwds[14] = dir

	res, err := h.sup.Stop(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, StopByScan, res.Method)
	assert.ElementsMatch(t, []int{10, 11}, h.signaler.pids)
}

func TestStop_StaleRecordedPIDFallsThrough(t *testing.T) {
	h := newHarness(t)
	h.sup.alive = func(pid int) bool { return pid != 4242 && !h.signaler.signalled(pid) }

	dir := checkout(t, "tool", `{"start": "python3 app.py"}`)
	require.NoError(t, h.pids.RecordApp(dir, 4242))

	h.source.recs = []model.ProcessRecord{{PID: 10, Cmd: "python3 app.py"}}
	h.cwds[10] = dir

	res, err := h.sup.Stop(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, StopByScan, res.Method)
	assert.Equal(t, []int{10}, h.signaler.pids)
}

func TestStop_WaitsForSignalledProcessToExit(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "python3 app.py"}`)
	require.NoError(t, h.pids.RecordApp(dir, 4242))

	// the process lingers for a few polls after SIGTERM
	lingering := 0
	h.sup.alive = func(pid int) bool {
		if !h.signaler.signalled(pid) {
			return true
		}

		lingering++

		return lingering < 4
	}

	_, err := h.sup.Restart(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 4, lingering)
	assert.Equal(t, []string{"python3 app.py"}, h.shell.commands("launch"))
}

func TestStop_GivesUpWaitingAfterTimeout(t *testing.T) {
	h := newHarness(t)
	h.sup.stopTimeout = 30 * time.Millisecond
	h.sup.alive = func(int) bool { return true }

	dir := checkout(t, "tool", `{"start": "python3 app.py"}`)
	require.NoError(t, h.pids.RecordApp(dir, 4242))

	start := time.Now()
	res, err := h.sup.Stop(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, StopByPID, res.Method)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStop_ListingFailureIsNothingFound(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "python3 app.py"}`)
	h.source.err = errors.New("ps missing")

	res, err := h.sup.Stop(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, StopNothing, res.Method)
	assert.Empty(t, h.signaler.pids)
}

func TestRestart_StopsBeforeStarting(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "python3 app.py", "stop": "./stop.sh"}`)

	_, err := h.sup.Restart(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, h.shell.calls, 2)
	assert.Equal(t, "run", h.shell.calls[0].kind)
	assert.Equal(t, "launch", h.shell.calls[1].kind)
}

func TestRestart_SerializedPerPath(t *testing.T) {
	h := newHarness(t)
	h.shell.delay = 5 * time.Millisecond
	dir := checkout(t, "tool", `{"start": "python3 app.py", "stop": "./stop.sh"}`)

	var errs []<-chan error
	for range 5 {
		errs = append(errs, h.sup.RestartAsync(context.Background(), dir))
	}

	for _, ch := range errs {
		require.NoError(t, <-ch)
	}

	h.sup.Wait()

	assert.Equal(t, 1, h.shell.maxInFlight)
	require.Len(t, h.shell.calls, 10)

	for i := 0; i < len(h.shell.calls); i += 2 {
		assert.Equal(t, "run", h.shell.calls[i].kind)
		assert.Equal(t, "launch", h.shell.calls[i+1].kind)
	}
}

func TestSetupAndStart_RunsSetupOnce(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "python3 app.py", "setup": "pip install -r requirements.txt"}`)
	rs := model.RepositorySettings{User: "alice", Name: "tool", Path: dir}
	h.settings.records["alice/tool"] = rs

	_, err := h.sup.SetupAndStart(context.Background(), rs)
	require.NoError(t, err)

	assert.Equal(t, []string{"pip install -r requirements.txt"}, h.shell.commands("run"))
	assert.Equal(t, []string{"alice/tool"}, h.settings.finalized)

	rs.SetupFinalized = true

	_, err = h.sup.SetupAndStart(context.Background(), rs)
	require.NoError(t, err)

	assert.Len(t, h.shell.commands("run"), 1)
	assert.Len(t, h.shell.commands("launch"), 2)
}

func TestSetupAndStart_SetupFailureDoesNotStart(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "python3 app.py", "setup": "make"}`)
	h.shell.runErr["make"] = errors.New("exit status 2")

	_, err := h.sup.SetupAndStart(context.Background(), model.RepositorySettings{User: "alice", Name: "tool", Path: dir})
	require.Error(t, err)

	assert.Empty(t, h.settings.finalized)
	assert.Empty(t, h.shell.commands("launch"))
}

func TestRestartOnPull_Enabled(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "python3 app.py", "stop": "./stop.sh"}`)
	h.settings.records["alice/tool"] = model.RepositorySettings{User: "alice", Name: "tool", Path: dir, Enabled: true, SetupFinalized: true}

	require.NoError(t, <-h.sup.RestartOnPull(context.Background(), "tool", dir))
	h.sup.Wait()

	require.Len(t, h.shell.calls, 2)
	assert.Equal(t, "./stop.sh", h.shell.calls[0].command)
	assert.Equal(t, "python3 app.py", h.shell.calls[1].command)
}

func TestRestartOnPull_Disabled(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "python3 app.py"}`)
	h.settings.records["alice/tool"] = model.RepositorySettings{User: "alice", Name: "tool", Path: dir}

	require.NoError(t, <-h.sup.RestartOnPull(context.Background(), "tool", dir))
	assert.Empty(t, h.shell.calls)
}

func TestRunCommand(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "python3 app.py", "migrate": "python3 manage.py migrate"}`)

	out, err := h.sup.RunCommand(context.Background(), dir, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out))

	_, err = h.sup.RunCommand(context.Background(), dir, "deploy")
	assert.Error(t, err)
}

func TestIsRunning(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "./run.sh"}`)

	running, err := h.sup.IsRunning(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, running)

	// a process the manifest never mentions still counts
	h.source.recs = []model.ProcessRecord{{PID: 10, Cmd: "python3 server.py"}, {PID: 11, Cmd: "vim notes"}}
	h.cwds[10] = dir
	h.cwds[11] = t.TempDir()

	running, err = h.sup.IsRunning(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, running)
}

func TestIsRunning_WithoutManifest(t *testing.T) {
	h := newHarness(t)
	dir := filepath.Join(t.TempDir(), "alice", "bare")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	h.source.recs = []model.ProcessRecord{{PID: 20, Cmd: "node index.js"}}
	h.cwds[20] = dir

	running, err := h.sup.IsRunning(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, running)
}

func TestIsRunning_ListingFailure(t *testing.T) {
	h := newHarness(t)
	dir := checkout(t, "tool", `{"start": "./run.sh"}`)
	h.source.err = errors.New("ps: not found")

	running, err := h.sup.IsRunning(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, running)
}
