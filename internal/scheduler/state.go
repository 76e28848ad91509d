package scheduler

// State is the lifecycle phase of a Scheduler.
type State int32

const (
	Idle State = iota
	Fetching
	Reconciling
	Sleeping
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Fetching:
		return "FETCHING"
	case Reconciling:
		return "RECONCILING"
	case Sleeping:
		return "SLEEPING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}
