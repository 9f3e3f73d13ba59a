package report

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"qgrid/internal/engine"
)

// Summary describes the distribution of per-state values of a table.
type Summary struct {
	States    int     `json:"states"`
	Actions   int     `json:"actions"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"stdDev"`
	Max       float64 `json:"max"`
	BestState int     `json:"bestState"`
	Learned   int     `json:"learned"`
}

// Summarize computes statistics over HighestValue of every state.
func Summarize(table *engine.QTable) Summary {
	s := Summary{States: table.NumStates(), Actions: table.NumActions(), BestState: -1}
	if table.NumStates() == 0 {
		return s
	}
	values := make([]float64, table.NumStates())
	for i, v := range table.StateValues() {
		values[i] = float64(v)
		if v > 0 {
			s.Learned++
		}
	}
	if len(values) > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	} else {
		s.Mean = values[0]
	}
	s.BestState = floats.MaxIdx(values)
	s.Max = values[s.BestState]
	return s
}

// ValueMatrix copies the table into a states x actions matrix.
func ValueMatrix(table *engine.QTable) *mat.Dense {
	if table.NumStates() == 0 {
		return nil
	}
	data := make([]float64, 0, table.NumStates()*table.NumActions())
	for s := 0; s < table.NumStates(); s++ {
		for _, v := range table.ValuesForState(s) {
			data = append(data, float64(v))
		}
	}
	return mat.NewDense(table.NumStates(), table.NumActions(), data)
}
