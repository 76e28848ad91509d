// Package localdata keeps the small key/value file that records this
// process's own PID and the PIDs it spawned, so the next start can detect
// and optionally terminate a previous instance.
package localdata

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/inovacc/reposync/internal/encoding"
	"github.com/inovacc/reposync/internal/process"
)

// Data is the content of the local data file
type Data struct {
	PID                     int            `json:"pid"`
	StartedAt               time.Time      `json:"started_at,omitzero"`
	KillsSubprocessesOnExit bool           `json:"kills_subprocesses_on_exit"`
	Subprocesses            []int          `json:"subprocesses,omitempty"`
	Apps                    map[string]int `json:"apps,omitempty"`
}

// File guards concurrent access to the local data file.
type File struct {
	path string
	mu   sync.Mutex

	// alive reports whether a pid is a live instance of exe; replaced in tests
	alive func(pid int, exe string) bool
}

// Open returns the local data file at path. The file is created on first write.
func Open(path string) *File {
	return &File{path: path, alive: instanceAlive}
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Load returns the current content; a missing file yields empty Data.
func (f *File) Load() (Data, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.load()
}

func (f *File) load() (Data, error) {
	d, err := encoding.LoadJSON[Data](f.path)
	if err != nil {
		return Data{}, err
	}

	if d == nil {
		return Data{}, nil
	}

	return *d, nil
}

// Update applies fn to the content and writes it back.
func (f *File) Update(fn func(*Data)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, err := f.load()
	if err != nil {
		return err
	}

	fn(&d)

	return encoding.SaveJSON(f.path, d)
}

// RecordSelf stores the current process as the running instance. The spawned
// PIDs of the previous instance are kept so they can still be terminated.
func (f *File) RecordSelf(killsSubprocessesOnExit bool) error {
	return f.Update(func(d *Data) {
		d.PID = os.Getpid()
		d.StartedAt = time.Now().UTC()
		d.KillsSubprocessesOnExit = killsSubprocessesOnExit
	})
}

// RecordApp stores pid as the launched process of the application at path.
func (f *File) RecordApp(path string, pid int) error {
	return f.Update(func(d *Data) {
		if d.Apps == nil {
			d.Apps = make(map[string]int)
		}

		d.Apps[filepath.Clean(path)] = pid

		if !slices.Contains(d.Subprocesses, pid) {
			d.Subprocesses = append(d.Subprocesses, pid)
		}
	})
}

// AppPID returns the recorded pid of the application at path.
func (f *File) AppPID(path string) (int, bool, error) {
	d, err := f.Load()
	if err != nil {
		return 0, false, err
	}

	pid, ok := d.Apps[filepath.Clean(path)]

	return pid, ok && pid > 0, nil
}

// ForgetApp drops the recorded pid of the application at path.
func (f *File) ForgetApp(path string) error {
	return f.Update(func(d *Data) {
		key := filepath.Clean(path)
		if pid, ok := d.Apps[key]; ok {
			d.Subprocesses = slices.DeleteFunc(d.Subprocesses, func(p int) bool { return p == pid })
			delete(d.Apps, key)
		}
	})
}

// PreviousInstance returns the PID of another live reposync instance recorded
// in the file. exe is the executable name the process must carry.
func (f *File) PreviousInstance(exe string) (int, bool, error) {
	d, err := f.Load()
	if err != nil {
		return 0, false, err
	}

	if d.PID <= 0 || d.PID == os.Getpid() {
		return 0, false, nil
	}

	if !f.alive(d.PID, exe) {
		return 0, false, nil
	}

	return d.PID, true, nil
}

// TerminateSubprocesses signals every recorded subprocess that is still
// running and clears the list. Failures are collected, not fatal.
func (f *File) TerminateSubprocesses(sig process.Signaler) []error {
	var errs []error

	err := f.Update(func(d *Data) {
		for _, pid := range d.Subprocesses {
			if !process.IsRunning(pid) {
				continue
			}

			if err := sig.Terminate(pid); err != nil {
				errs = append(errs, fmt.Errorf("terminate %d: %w", pid, err))
			}
		}

		d.Subprocesses = nil
		d.Apps = nil
	})
	if err != nil {
		errs = append(errs, err)
	}

	return errs
}

func instanceAlive(pid int, exe string) bool {
	if !process.IsRunning(pid) {
		return false
	}

	// gops only sees Go binaries; a stale pid reused by an unrelated program is not ours
	return process.IsGoBinary(pid, exe)
}
