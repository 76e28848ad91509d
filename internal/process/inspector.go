// Package process queries the OS process table and signals processes.
//
// Matching processes by command name is approximate: unrelated programs that
// share a binary name also match. Callers disambiguate by comparing the
// resolved working directory, see [Inspector.FindInDir].
package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/inovacc/reposync/internal/model"
)

// DefaultFields are the ps columns requested when the caller does not pick any.
var DefaultFields = []string{"euser", "pid", "ppid", "c", "stime", "tty", "time", "cmd"}

// Source produces the raw process table restricted to the given columns.
type Source interface {
	Snapshot(ctx context.Context, fields []string) ([]model.ProcessRecord, error)
}

// CWDResolver resolves the working directory of a pid.
type CWDResolver func(pid int) (string, error)

// Inspector finds processes by command-name substring.
type Inspector struct {
	Source Source
	CWD    CWDResolver
}

// NewInspector returns an Inspector with /proc cwd lookup and a gopsutil
// fallback. It lists through ps and falls back to gopsutil when ps fails;
// Windows has no ps and goes to gopsutil directly.
func NewInspector() *Inspector {
	var src Source = FallbackSource{Primary: &PSSource{}, Fallback: GopsutilSource{}}
	if runtime.GOOS == "windows" {
		src = GopsutilSource{}
	}

	return &Inspector{
		Source: src,
		CWD:    ResolveCWD,
	}
}

// FallbackSource lists through Primary and, when that fails, Fallback.
type FallbackSource struct {
	Primary  Source
	Fallback Source
}

func (s FallbackSource) Snapshot(ctx context.Context, fields []string) ([]model.ProcessRecord, error) {
	recs, err := s.Primary.Snapshot(ctx, fields)
	if err == nil {
		return recs, nil
	}

	recs, fallbackErr := s.Fallback.Snapshot(ctx, fields)
	if fallbackErr != nil {
		return nil, errors.Join(err, fallbackErr)
	}

	return recs, nil
}

// Find returns every process whose command contains name.
// A failing process listing is reported as an error; callers that treat it
// as "nothing found" decide so themselves.
func (i *Inspector) Find(ctx context.Context, name string, fields []string) ([]model.ProcessRecord, error) {
	if len(fields) == 0 {
		fields = DefaultFields
	}

	all, err := i.Source.Snapshot(ctx, fields)
	if err != nil {
		return nil, err
	}

	var out []model.ProcessRecord

	for _, rec := range all {
		haystack := rec.Cmd
		if haystack == "" {
			haystack = strings.Join(fieldValues(rec, fields), " ")
		}

		if strings.Contains(haystack, name) {
			out = append(out, rec)
		}
	}

	return out, nil
}

// FindWithCWD is Find with each match's working directory resolved.
// Processes whose cwd cannot be read keep an empty CWD.
func (i *Inspector) FindWithCWD(ctx context.Context, name string, fields []string) ([]model.ProcessRecord, error) {
	recs, err := i.Find(ctx, name, fields)
	if err != nil {
		return nil, err
	}

	for idx := range recs {
		recs[idx].CWD = i.ResolveCWD(recs[idx].PID)
	}

	return recs, nil
}

// FindInDir returns the processes matching name whose working directory is dir.
func (i *Inspector) FindInDir(ctx context.Context, name, dir string) ([]model.ProcessRecord, error) {
	recs, err := i.FindWithCWD(ctx, name, nil)
	if err != nil {
		return nil, err
	}

	want := cleanPath(dir)

	var out []model.ProcessRecord

	for _, rec := range recs {
		if rec.HasCWD() && cleanPath(rec.CWD) == want {
			out = append(out, rec)
		}
	}

	return out, nil
}

// FindByCWD returns every process whose working directory is dir, whatever
// its command.
func (i *Inspector) FindByCWD(ctx context.Context, dir string) ([]model.ProcessRecord, error) {
	return i.FindInDir(ctx, "", dir)
}

// ResolveCWD returns the working directory of pid, or "" when it cannot be read.
func (i *Inspector) ResolveCWD(pid int) string {
	if i.CWD == nil || pid <= 0 {
		return ""
	}

	cwd, err := i.CWD(pid)
	if err != nil {
		return ""
	}

	return cwd
}

func cleanPath(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}

	return filepath.Clean(p)
}

func fieldValues(rec model.ProcessRecord, fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if v, ok := rec.Fields[f]; ok {
			out = append(out, v)
		}
	}

	return out
}

// PSSource lists processes with `ps -eo <fields>`.
type PSSource struct {
	// Run executes the listing command; nil runs it with os/exec.
	Run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func (s *PSSource) Snapshot(ctx context.Context, fields []string) ([]model.ProcessRecord, error) {
	run := s.Run
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		}
	}

	out, err := run(ctx, "ps", "-eo", strings.Join(fields, ","))
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	return ParseTable(out, fields), nil
}

// ParseTable parses ps output. The first line is a header and is dropped.
// Empty lines and lines without a numeric pid are skipped.
func ParseTable(out []byte, fields []string) []model.ProcessRecord {
	var recs []model.ProcessRecord

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	header := true

	for scanner.Scan() {
		line := scanner.Text()
		if header {
			header = false
			continue
		}

		rec, ok := ParseLine(line, fields)
		if ok {
			recs = append(recs, rec)
		}
	}

	return recs
}

// ParseLine splits one ps row into the requested fields. The last field
// takes the remainder of the line, so commands keep their spaces. A row
// with fewer columns than fields yields only the columns present.
func ParseLine(line string, fields []string) (model.ProcessRecord, bool) {
	line = strings.TrimSpace(line)
	if line == "" || len(fields) == 0 {
		return model.ProcessRecord{}, false
	}

	values := splitN(line, len(fields))
	rec := model.ProcessRecord{Fields: make(map[string]string, len(values))}

	for idx, v := range values {
		rec.Fields[fields[idx]] = v
	}

	rec.EUser = rec.Fields["euser"]
	rec.Cmd = rec.Fields["cmd"]

	if rec.Cmd == "" {
		rec.Cmd = rec.Fields["args"]
	}

	if rec.Cmd == "" {
		rec.Cmd = rec.Fields["comm"]
	}

	if v, ok := rec.Fields["pid"]; ok {
		pid, err := strconv.Atoi(v)
		if err != nil {
			return model.ProcessRecord{}, false
		}

		rec.PID = pid
	}

	if v, ok := rec.Fields["ppid"]; ok {
		if ppid, err := strconv.Atoi(v); err == nil {
			rec.PPID = ppid
		}
	}

	return rec, true
}

// splitN splits s on runs of whitespace into at most n parts.
func splitN(s string, n int) []string {
	var parts []string

	for len(parts) < n-1 {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return parts
		}

		end := strings.IndexAny(s, " \t")
		if end < 0 {
			return append(parts, s)
		}

		parts = append(parts, s[:end])
		s = s[end:]
	}

	if s = strings.TrimSpace(s); s != "" {
		parts = append(parts, s)
	}

	return parts
}

// ResolveCWD follows /proc/<pid>/cwd and falls back to gopsutil where /proc is absent.
func ResolveCWD(pid int) (string, error) {
	cwd, err := os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "cwd"))
	if err == nil {
		return cwd, nil
	}

	return gopsutilCWD(pid)
}
