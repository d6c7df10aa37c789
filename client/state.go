package client

import "fmt"

// State is a position in the driver's lifecycle.
type State int

const (
	Disconnected State = iota
	Connected
	Running
	Finishing
	Closing
	Closed
	Failed
)

var stateNames = [...]string{
	Disconnected: "disconnected",
	Connected:    "connected",
	Running:      "running",
	Finishing:    "finishing",
	Closing:      "closing",
	Closed:       "closed",
	Failed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}

	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Closed || s == Failed
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
