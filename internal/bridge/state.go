package bridge

// State is the per-signal position in the bridge state machine:
//
//	Unwatched -> Watched -> SignalPending -> Delivering -> Terminating
//
// Terminating is absorbing. Once any signal reaches it the bridge ignores
// every later delivery.
type State int32

const (
	// Unwatched means the bridge does not own the signal.
	Unwatched State = iota
	// Watched means the bridge owns the signal and is idle.
	Watched
	// SignalPending means the relay saw the signal and posted its trigger.
	SignalPending
	// Delivering means the monitor is running the delivery path.
	Delivering
	// Terminating means cleanup and re-raise are under way.
	Terminating
)

func (s State) String() string {
	switch s {
	case Unwatched:
		return "unwatched"
	case Watched:
		return "watched"
	case SignalPending:
		return "signal-pending"
	case Delivering:
		return "delivering"
	case Terminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Disposition is what the process did with a signal before the bridge
// watched it. Unwatch and Close put it back.
type Disposition int

const (
	// Default means the OS default action applied.
	Default Disposition = iota
	// Ignored means the signal was being ignored.
	Ignored
)

func (d Disposition) String() string {
	if d == Ignored {
		return "ignored"
	}
	return "default"
}
