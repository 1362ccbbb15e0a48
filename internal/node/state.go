package node

import "fmt"

// State defines the state of the node state machine.
type State int

// Node states.
const (
	StateInit State = iota
	StateJoin
	StateSend
	StateCycle
	StateSleep
)

var stateStr = []string{"init", "join", "send", "cycle", "sleep"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateStr) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateStr[s]
}
