package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad_JSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, JSONFile, `{
  "other": {"x": 1},
  "dev-gui": {
    "commands": {"start": "python3 app.py", "stop": "./stop.sh", "setup": "pip install -r requirements.txt"},
    "version": "1.4.2",
    "pid": 4242
  }
}`)

	res := Load(dir)
	require.Equal(t, Found, res.Status, res.Err)

	start, ok := res.Manifest.Start()
	assert.True(t, ok)
	assert.Equal(t, "python3 app.py", start)

	stop, ok := res.Manifest.Stop()
	assert.True(t, ok)
	assert.Equal(t, "./stop.sh", stop)

	assert.Equal(t, 4242, res.Manifest.PID)
	assert.Equal(t, "python3", res.Manifest.StartBinary())

	v, err := res.Manifest.SemVer()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.Major())
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, TOMLFile, `
version = "0.2.0"

[commands]
start = "./bin/server --port 9000"
`)

	res := Load(dir)
	require.Equal(t, Found, res.Status, res.Err)

	_, ok := res.Manifest.Stop()
	assert.False(t, ok)
	assert.Equal(t, "server", res.Manifest.StartBinary())
}

func TestLoad_JSONWithoutSectionFallsBackToTOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, JSONFile, `{"editor": {"tabs": 4}}`)
	writeFile(t, dir, TOMLFile, "[commands]\nstart = \"node index.js\"\n")

	res := Load(dir)
	require.Equal(t, Found, res.Status)
	assert.Equal(t, TOMLFile, filepath.Base(res.Path))
}

func TestLoad_NotFound(t *testing.T) {
	res := Load(t.TempDir())

	assert.Equal(t, NotFound, res.Status)
	assert.Nil(t, res.Manifest)
	assert.True(t, errors.Is(res.Err, ErrManifestMissing))
}

func TestLoad_Error(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, JSONFile, `{"dev-gui": [1, 2]}`)

	res := Load(dir)
	assert.Equal(t, Error, res.Status)
	assert.Error(t, res.Err)
}

func TestManifest_StartCommands(t *testing.T) {
	m := &Manifest{Commands: map[string]string{
		"start_alt_2":  "c",
		"start":        "a",
		"start_alt_1":  "b",
		"start_alt_x":  "ignored",
		"start_alt_10": "d",
		"stop":         "s",
	}}

	assert.Equal(t, []string{"a", "b", "c", "d"}, m.StartCommands())
}

func TestManifest_StartBinary(t *testing.T) {
	tests := []struct {
		start string
		want  string
	}{
		{"PORT=80 DEBUG=1 /usr/bin/node server.js", "node"},
		{"  ./run.sh", "run.sh"},
		{"", ""},
	}

	for _, tt := range tests {
		m := &Manifest{Commands: map[string]string{"start": tt.start}}
		if got := m.StartBinary(); got != tt.want {
			t.Errorf("StartBinary(%q) = %q, want %q", tt.start, got, tt.want)
		}
	}
}

func TestManifest_SemVerInvalid(t *testing.T) {
	_, err := (&Manifest{Version: "not-a-version"}).SemVer()
	assert.Error(t, err)

	_, err = (&Manifest{}).SemVer()
	assert.Error(t, err)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "found", Found.String())
	assert.Equal(t, "not found", NotFound.String())
	assert.Equal(t, "error", Error.String())
}
