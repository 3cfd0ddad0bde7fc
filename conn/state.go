package conn

import "laundry-notifier/metrics"

// State is the lifecycle state of a Manager.
type State int

// Connection states. GivenUp and Closed are both closed states: GivenUp is
// reached when the retry ceiling is exhausted, Closed after Teardown.
const (
	Idle State = iota
	Connecting
	Open
	Reconnecting
	GivenUp
	Closed
)

var stateNames = [...]string{
	Idle:         "idle",
	Connecting:   "connecting",
	Open:         "open",
	Reconnecting: "reconnecting",
	GivenUp:      "given_up",
	Closed:       "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state by name in JSON status documents.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func reportState(s State) {
	for i, name := range stateNames {
		v := 0.0
		if State(i) == s {
			v = 1
		}
		metrics.ConnectionState.WithLabelValues(name).Set(v)
	}
}
