package report

import (
	"fmt"
	"io"

	"github.com/logrusorgru/aurora"

	"qgrid/internal/engine"
)

var arrows = map[engine.Action]string{
	engine.Up:     "^",
	engine.Down:   "v",
	engine.Left:   "<",
	engine.Right:  ">",
	engine.NoMove: "o",
}

// RenderPolicy prints the greedy action of every cell. Cells whose best value
// is still zero are drawn as '.', walls as '#' and goals as 'G'.
func RenderPolicy(w io.Writer, board *engine.Board, table *engine.QTable, color bool) error {
	au := aurora.NewAurora(color)
	for r := 0; r < board.Rows(); r++ {
		for c := 0; c < board.Cols(); c++ {
			state := board.StateIndex(r, c)
			var cell interface{}
			switch {
			case board.IsGoal(r, c):
				cell = au.Green("G")
			case !board.Walkable(r, c):
				cell = au.Red("#")
			case table.HighestValue(state) == 0:
				cell = au.Yellow(".")
			default:
				cell = au.Cyan(arrows[table.BestAction(state)])
			}
			if _, err := fmt.Fprintf(w, "%s ", cell); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

// RenderValues prints HighestValue for every cell.
func RenderValues(w io.Writer, board *engine.Board, table *engine.QTable, color bool) error {
	au := aurora.NewAurora(color)
	for r := 0; r < board.Rows(); r++ {
		for c := 0; c < board.Cols(); c++ {
			v := table.HighestValue(board.StateIndex(r, c))
			text := fmt.Sprintf("%7.2f", v)
			var cell interface{} = au.Blue(text)
			if v > 0 {
				cell = au.Green(text)
			}
			if _, err := fmt.Fprintf(w, "%s%s", cell, au.White("|")); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
