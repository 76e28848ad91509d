package params

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDotEnv(t *testing.T) {
	in := `# token for the mirror
GITHUB_TOKEN=ghp_plain
export REPOSYNC_ORGS="acme, widgets"

REPOSYNC_PAUSE=5s # between actions
REPOSYNC_NOTE='keep # this'
EMPTY=
`

	vars, err := ParseDotEnv(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []EnvVar{
		{Key: "GITHUB_TOKEN", Value: "ghp_plain", Line: 2},
		{Key: "REPOSYNC_ORGS", Value: "acme, widgets", Line: 3},
		{Key: "REPOSYNC_PAUSE", Value: "5s", Line: 5},
		{Key: "REPOSYNC_NOTE", Value: "keep # this", Line: 6},
		{Key: "EMPTY", Value: "", Line: 7},
	}, vars)
}

func TestParseDotEnv_Rejects(t *testing.T) {
	for _, in := range []string{"not a pair", "=value", "1KEY=x", "BAD KEY=x"} {
		_, err := ParseDotEnv(strings.NewReader("OK=1\n" + in))
		assert.ErrorContains(t, err, "line 2", in)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `RS_DOTENV_A=plain
export RS_DOTENV_B="quoted value"
RS_DOTENV_KEEP=new
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("RS_DOTENV_KEEP", "old")
	t.Setenv("RS_DOTENV_A", "")
	t.Setenv("RS_DOTENV_B", "")
	require.NoError(t, os.Unsetenv("RS_DOTENV_A"))
	require.NoError(t, os.Unsetenv("RS_DOTENV_B"))

	keys, err := LoadDotEnv(path, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"RS_DOTENV_A", "RS_DOTENV_B"}, keys)
	assert.Equal(t, "plain", os.Getenv("RS_DOTENV_A"))
	assert.Equal(t, "quoted value", os.Getenv("RS_DOTENV_B"))
	assert.Equal(t, "old", os.Getenv("RS_DOTENV_KEEP"))

	keys, err = LoadDotEnv(path, true)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
	assert.Equal(t, "new", os.Getenv("RS_DOTENV_KEEP"))
}

func TestLoadDotEnv_BadFileSetsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RS_DOTENV_C=1\ngarbage\n"), 0o600))

	t.Setenv("RS_DOTENV_C", "")
	require.NoError(t, os.Unsetenv("RS_DOTENV_C"))

	_, err := LoadDotEnv(path, false)
	require.Error(t, err)

	_, set := os.LookupEnv("RS_DOTENV_C")
	assert.False(t, set)
}

func TestLoadDotEnv_Missing(t *testing.T) {
	_, err := LoadDotEnv(filepath.Join(t.TempDir(), "none"), false)
	assert.Error(t, err)
}

func TestLoadDotEnvDefault(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path, keys, err := LoadDotEnvDefault()
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, keys)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DotEnvFile), []byte("RS_DOTENV_D=yes\n"), 0o600))
	t.Setenv("RS_DOTENV_D", "")
	require.NoError(t, os.Unsetenv("RS_DOTENV_D"))

	path, keys, err = LoadDotEnvDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DotEnvFile), path)
	assert.Equal(t, []string{"RS_DOTENV_D"}, keys)
}
