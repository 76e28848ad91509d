package params

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DotEnvFile is the file LoadDotEnvDefault looks for in the working directory.
const DotEnvFile = ".env"

// EnvVar is one assignment read from a .env file.
type EnvVar struct {
	Key   string
	Value string
	Line  int
}

// ParseDotEnv reads KEY=VALUE assignments in file order. Blank lines and
// lines starting with # are ignored, an "export " prefix is dropped and
// matching quotes around a value are removed. An unquoted value ends at " #".
// A line that is not an assignment to a valid name fails the whole parse.
func ParseDotEnv(r io.Reader) ([]EnvVar, error) {
	var vars []EnvVar

	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		key, val, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		key = strings.TrimSpace(key)

		if !ok || !validEnvName(key) {
			return nil, fmt.Errorf("line %d: not a KEY=VALUE assignment", n)
		}

		vars = append(vars, EnvVar{Key: key, Value: unquote(strings.TrimSpace(val)), Line: n})
	}

	if err := sc.Err(); err != nil {
		return nil, err
	}

	return vars, nil
}

func unquote(val string) string {
	if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
		return val[1 : len(val)-1]
	}

	if i := strings.Index(val, " #"); i >= 0 {
		val = strings.TrimSpace(val[:i])
	}

	return val
}

func validEnvName(key string) bool {
	if key == "" {
		return false
	}

	for i, r := range key {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}

	return true
}

// LoadDotEnv sets the assignments of path into the process environment and
// returns the keys it set. Variables already present win unless override is
// true. Nothing is set when the file does not parse.
func LoadDotEnv(path string, override bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vars, err := ParseDotEnv(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var set []string

	for _, v := range vars {
		if _, exists := os.LookupEnv(v.Key); exists && !override {
			continue
		}

		if err := os.Setenv(v.Key, v.Value); err != nil {
			return set, fmt.Errorf("%s: line %d: %w", path, v.Line, err)
		}

		set = append(set, v.Key)
	}

	return set, nil
}

// LoadDotEnvDefault loads .env from the working directory, keeping variables
// already set. It returns the file it read, or "" when there is none.
func LoadDotEnvDefault() (string, []string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", nil, nil
	}

	p := filepath.Join(cwd, DotEnvFile)
	if st, err := os.Stat(p); err != nil || st.IsDir() {
		return "", nil, nil
	}

	keys, err := LoadDotEnv(p, false)

	return p, keys, err
}
