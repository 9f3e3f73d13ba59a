package engine

import "fmt"

// Selection controls how BestAction and HighestValue scan a row.
type Selection int

const (
	// ZeroFlooredArgmax starts the scan from 0 and only replaces it on strict
	// improvement, so negative values never win and an all-non-positive row
	// selects action 0 with value 0. Tables saved by earlier versions were
	// trained this way.
	ZeroFlooredArgmax Selection = iota
	// TrueArgmax starts the scan from the first action's value.
	TrueArgmax
)

func (s Selection) String() string {
	switch s {
	case ZeroFlooredArgmax:
		return "zero-floored-argmax"
	case TrueArgmax:
		return "true-argmax"
	default:
		return fmt.Sprintf("Selection(%d)", int(s))
	}
}

// ParseSelection maps the names returned by Selection.String back to values.
func ParseSelection(s string) (Selection, error) {
	switch s {
	case "", "zero-floored-argmax":
		return ZeroFlooredArgmax, nil
	case "true-argmax":
		return TrueArgmax, nil
	default:
		return 0, fmt.Errorf("unknown selection %q", s)
	}
}

func (s Selection) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Selection) UnmarshalText(text []byte) error {
	v, err := ParseSelection(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// QTable is a dense state x action value store laid out row-major:
// index = state*numActions + action. Its length never changes.
type QTable struct {
	numStates  int
	numActions int
	columns    int
	selection  Selection
	data       []float32
}

// NewQTable allocates a zeroed table. columns is the board width used to
// label rows as <row,col> when saving; values <= 0 label every state as row 0.
func NewQTable(numStates, numActions, columns int) *QTable {
	if numStates < 0 || numActions <= 0 {
		panic(fmt.Sprintf("engine: invalid q-table shape %dx%d", numStates, numActions))
	}
	if columns <= 0 {
		columns = numStates
	}
	return &QTable{
		numStates:  numStates,
		numActions: numActions,
		columns:    columns,
		data:       make([]float32, numStates*numActions),
	}
}

func (q *QTable) NumStates() int  { return q.numStates }
func (q *QTable) NumActions() int { return q.numActions }
func (q *QTable) Columns() int    { return q.columns }

func (q *QTable) Selection() Selection     { return q.selection }
func (q *QTable) SetSelection(s Selection) { q.selection = s }

func (q *QTable) index(state int, action Action) int {
	if state < 0 || state >= q.numStates {
		panic(fmt.Sprintf("engine: state %d out of range [0,%d)", state, q.numStates))
	}
	if action < 0 || int(action) >= q.numActions {
		panic(fmt.Sprintf("engine: action %d out of range [0,%d)", int(action), q.numActions))
	}
	return state*q.numActions + int(action)
}

func (q *QTable) Get(state int, action Action) float32 {
	return q.data[q.index(state, action)]
}

func (q *QTable) Set(state int, action Action, value float32) {
	q.data[q.index(state, action)] = value
}

// ValuesForState returns a copy of the row for state in action order.
func (q *QTable) ValuesForState(state int) []float32 {
	start := q.index(state, 0)
	values := make([]float32, q.numActions)
	copy(values, q.data[start:start+q.numActions])
	return values
}

// BestAction returns the greedy action for state. Ties go to the first action
// in enumeration order.
func (q *QTable) BestAction(state int) Action {
	action, _ := q.scan(state)
	return action
}

// HighestValue returns the value BestAction would pick, which under
// ZeroFlooredArgmax is never below zero.
func (q *QTable) HighestValue(state int) float32 {
	_, value := q.scan(state)
	return value
}

func (q *QTable) scan(state int) (Action, float32) {
	start := q.index(state, 0)
	row := q.data[start : start+q.numActions]
	best := 0
	var highest float32
	first := 0
	if q.selection == TrueArgmax {
		highest = row[0]
		first = 1
	}
	for i := first; i < len(row); i++ {
		if row[i] > highest {
			highest = row[i]
			best = i
		}
	}
	return Action(best), highest
}

// StateValues returns HighestValue for every state.
func (q *QTable) StateValues() []float32 {
	values := make([]float32, q.numStates)
	for s := range values {
		values[s] = q.HighestValue(s)
	}
	return values
}

func (q *QTable) Clone() *QTable {
	data := make([]float32, len(q.data))
	copy(data, q.data)
	return &QTable{
		numStates:  q.numStates,
		numActions: q.numActions,
		columns:    q.columns,
		selection:  q.selection,
		data:       data,
	}
}

// Equal reports whether both tables have the same shape and identical values.
func (q *QTable) Equal(other *QTable) bool {
	if other == nil || q.numStates != other.numStates || q.numActions != other.numActions {
		return false
	}
	for i, v := range q.data {
		if other.data[i] != v {
			return false
		}
	}
	return true
}
