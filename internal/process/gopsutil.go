package process

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	gprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/inovacc/reposync/internal/model"
)

// GopsutilSource lists processes through gopsutil. It works where ps is
// unavailable and fills the euser, pid, ppid and cmd columns.
type GopsutilSource struct{}

func (GopsutilSource) Snapshot(ctx context.Context, fields []string) ([]model.ProcessRecord, error) {
	procs, err := gprocess.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	out := make([]model.ProcessRecord, 0, len(procs))

	for _, p := range procs {
		// processes may exit between listing and inspection
		cmd, err := p.CmdlineWithContext(ctx)
		if err != nil || strings.TrimSpace(cmd) == "" {
			continue
		}

		rec := model.ProcessRecord{
			PID:    int(p.Pid),
			Cmd:    cmd,
			Fields: make(map[string]string, len(fields)),
		}

		if user, err := p.UsernameWithContext(ctx); err == nil {
			rec.EUser = user
		}

		if ppid, err := p.PpidWithContext(ctx); err == nil {
			rec.PPID = int(ppid)
		}

		for _, f := range fields {
			switch f {
			case "euser", "user":
				rec.Fields[f] = rec.EUser
			case "pid":
				rec.Fields[f] = strconv.Itoa(rec.PID)
			case "ppid":
				rec.Fields[f] = strconv.Itoa(rec.PPID)
			case "cmd", "args", "command":
				rec.Fields[f] = rec.Cmd
			}
		}

		out = append(out, rec)
	}

	return out, nil
}

func gopsutilCWD(pid int) (string, error) {
	p, err := gprocess.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}

	return p.Cwd()
}
