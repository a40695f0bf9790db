package orchestrator

// State is the phase a run is in. A run moves through the states in declaration order and never goes back.
type State int

const (
	Idle State = iota
	Launching
	AwaitingReadiness
	Running
	ShuttingDown
	CleaningUp
	Reported
)

var stateNames = map[State]string{
	Idle:              "idle",
	Launching:         "launching",
	AwaitingReadiness: "awaiting-readiness",
	Running:           "running",
	ShuttingDown:      "shutting-down",
	CleaningUp:        "cleaning-up",
	Reported:          "reported",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
