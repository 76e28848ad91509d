package model

// ProcessRecord is one row of the OS process table
type ProcessRecord struct {
	EUser string
	PID   int
	PPID  int
	Cmd   string

	// Fields holds every requested column by name, including the ones above
	Fields map[string]string

	// CWD is the resolved working directory; empty when unknown
	CWD string
}

// HasCWD reports whether the working directory was resolved.
func (p ProcessRecord) HasCWD() bool {
	return p.CWD != ""
}
