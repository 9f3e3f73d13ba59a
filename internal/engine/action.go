package engine

import (
	"fmt"
	"strings"
)

// Action is one of the fixed moves an agent can take from a state. The
// numeric value doubles as the column index inside a QTable row.
type Action int

const (
	Up Action = iota
	Down
	Left
	Right
	NoMove
)

const (
	FourWay = 4
	FiveWay = 5
)

var actionNames = [...]string{"UP", "DOWN", "LEFT", "RIGHT", "NOMOVE"}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

// ParseAction accepts the names used in the table header, case-insensitively.
func ParseAction(s string) (Action, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range actionNames {
		if n == name {
			return Action(i), nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// Actions returns the first n actions of the fixed enumeration order.
func Actions(n int) []Action {
	if n > len(actionNames) {
		n = len(actionNames)
	}
	if n < 0 {
		n = 0
	}
	out := make([]Action, n)
	for i := range out {
		out[i] = Action(i)
	}
	return out
}
