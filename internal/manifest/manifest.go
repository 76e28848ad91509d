// Package manifest reads the per-application manifest from a checkout.
//
// Two forms are accepted, tried in this order:
//
//	settings.json   {"dev-gui": {"commands": {"start": "..."}, "version": "1.2.0"}}
//	reposync.toml   version = "1.2.0" / [commands] start = "..."
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"
)

const (
	// JSONFile is the manifest file holding a "dev-gui" section.
	JSONFile = "settings.json"

	// JSONSection is the top-level key of the JSON manifest.
	JSONSection = "dev-gui"

	// TOMLFile is the TOML manifest file.
	TOMLFile = "reposync.toml"

	startAltPrefix = "start_alt_"
)

// ErrManifestMissing is carried by a NotFound result.
var ErrManifestMissing = errors.New("manifest missing")

// Manifest declares the lifecycle commands of an application
type Manifest struct {
	Commands map[string]string `json:"commands" toml:"commands"`
	Version  string            `json:"version" toml:"version"`
	PID      int               `json:"pid,omitempty" toml:"pid,omitempty"`
}

// Status classifies a Load outcome.
type Status int

const (
	Found Status = iota
	NotFound
	Error
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not found"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of reading a manifest. Manifest is set only when Status is Found.
type Result struct {
	Status   Status
	Manifest *Manifest
	Path     string
	Err      error
}

// Load reads the manifest of the checkout at dir.
func Load(dir string) Result {
	jsonPath := filepath.Join(dir, JSONFile)

	data, err := os.ReadFile(jsonPath)
	switch {
	case err == nil:
		m, found, perr := parseJSON(data)
		if perr != nil {
			return Result{Status: Error, Path: jsonPath, Err: perr}
		}

		if found {
			return Result{Status: Found, Manifest: m, Path: jsonPath}
		}
	case !os.IsNotExist(err):
		return Result{Status: Error, Path: jsonPath, Err: fmt.Errorf("failed to read %s: %w", jsonPath, err)}
	}

	tomlPath := filepath.Join(dir, TOMLFile)

	data, err = os.ReadFile(tomlPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Status: NotFound, Path: dir, Err: fmt.Errorf("%w in %s", ErrManifestMissing, dir)}
		}

		return Result{Status: Error, Path: tomlPath, Err: fmt.Errorf("failed to read %s: %w", tomlPath, err)}
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return Result{Status: Error, Path: tomlPath, Err: fmt.Errorf("failed to parse %s: %w", tomlPath, err)}
	}

	return Result{Status: Found, Manifest: &m, Path: tomlPath}
}

// parseJSON decodes the "dev-gui" section; found is false when the file has none.
func parseJSON(data []byte) (*Manifest, bool, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to parse %s: %w", JSONFile, err)
	}

	raw, ok := doc[JSONSection]
	if !ok {
		return nil, false, nil
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, fmt.Errorf("failed to parse %s section of %s: %w", JSONSection, JSONFile, err)
	}

	return &m, true, nil
}

// Command returns the named command and whether it is declared and non-empty.
func (m *Manifest) Command(name string) (string, bool) {
	if m == nil {
		return "", false
	}

	cmd := strings.TrimSpace(m.Commands[name])

	return cmd, cmd != ""
}

func (m *Manifest) Start() (string, bool) { return m.Command("start") }
func (m *Manifest) Stop() (string, bool)  { return m.Command("stop") }
func (m *Manifest) Setup() (string, bool) { return m.Command("setup") }

// StartCommands returns start followed by start_alt_1 ... start_alt_n in numeric order.
func (m *Manifest) StartCommands() []string {
	if m == nil {
		return nil
	}

	var out []string
	if start, ok := m.Start(); ok {
		out = append(out, start)
	}

	type alt struct {
		n   int
		cmd string
	}

	var alts []alt

	for name, cmd := range m.Commands {
		suffix, ok := strings.CutPrefix(name, startAltPrefix)
		if !ok {
			continue
		}

		n, err := strconv.Atoi(suffix)
		if err != nil || strings.TrimSpace(cmd) == "" {
			continue
		}

		alts = append(alts, alt{n: n, cmd: strings.TrimSpace(cmd)})
	}

	sort.Slice(alts, func(i, j int) bool { return alts[i].n < alts[j].n })

	for _, a := range alts {
		out = append(out, a.cmd)
	}

	return out
}

// StartBinary returns the executable name of the start command, used to
// narrow the process table scan.
func (m *Manifest) StartBinary() string {
	start, ok := m.Start()
	if !ok {
		return ""
	}

	fields := strings.Fields(start)
	for _, f := range fields {
		// skip leading VAR=value assignments
		if strings.Contains(f, "=") && !strings.ContainsAny(f, "/\\") {
			continue
		}

		return filepath.Base(f)
	}

	return ""
}

// SemVer parses Version.
func (m *Manifest) SemVer() (*semver.Version, error) {
	if m == nil || m.Version == "" {
		return nil, errors.New("manifest has no version")
	}

	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest version %q: %w", m.Version, err)
	}

	return v, nil
}
