package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"qgrid/internal/api"
	"qgrid/internal/checkpoint"
	"qgrid/internal/config"
	"qgrid/internal/engine"
	"qgrid/internal/report"
)

func runAct(cfg config.Config, args []string) error {
	flags := flag.NewFlagSet("act", flag.ContinueOnError)
	flags.SetOutput(os.Stderr)

	boardPath := flags.String("board", cfg.BoardPath, "board map file (empty for the built-in board)")
	noMove := flags.Bool("nomove", false, "the table was trained with NOMOVE")
	tablePath := flags.String("table", cfg.TablePath, "q-table file")
	selection := flags.String("selection", cfg.Selection.String(), "zero-floored-argmax or true-argmax")
	row := flags.Int("row", -1, "query a single cell (needs -col)")
	col := flags.Int("col", -1, "query a single cell (needs -row)")
	actionName := flags.String("action", "", "with -row/-col, print only this action's value (UP, DOWN, LEFT, RIGHT, NOMOVE)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	sel, err := engine.ParseSelection(*selection)
	if err != nil {
		return err
	}
	board, err := loadBoard(*boardPath, *noMove)
	if err != nil {
		return err
	}
	table, err := loadTable(*tablePath, board, sel, false)
	if err != nil {
		return err
	}

	if *row < 0 && *col < 0 {
		return printPolicy(os.Stdout, board, table)
	}
	return printCell(os.Stdout, board, table, *row, *col, *actionName)
}

func printCell(w io.Writer, board *engine.Board, table *engine.QTable, row, col int, actionName string) error {
	if row < 0 || row >= board.Rows() || col < 0 || col >= board.Cols() {
		return fmt.Errorf("cell (%d,%d) is off the board", row, col)
	}
	state := board.StateIndex(row, col)
	if actionName == "" {
		_, err := fmt.Fprintf(w, "<%d,%d> best=%s value=%.2f values=%v\n",
			row, col, table.BestAction(state), table.HighestValue(state), table.ValuesForState(state))
		return err
	}
	action, err := engine.ParseAction(actionName)
	if err != nil {
		return err
	}
	if int(action) >= table.NumActions() {
		return fmt.Errorf("action %s is not available on this board (use -nomove)", action)
	}
	_, err = fmt.Fprintf(w, "<%d,%d> %s=%.2f\n", row, col, action, table.Get(state, action))
	return err
}

func runRuns(cfg config.Config, args []string) error {
	flags := flag.NewFlagSet("runs", flag.ContinueOnError)
	flags.SetOutput(os.Stderr)

	dbPath := flags.String("db", cfg.DBPath, "checkpoint database")
	limit := flags.Int("limit", 20, "number of runs to list")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return errors.New("runs needs a checkpoint database")
	}
	store, err := checkpoint.NewStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return listRuns(os.Stdout, store, *limit)
}

func listRuns(w io.Writer, store *checkpoint.Store, limit int) error {
	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}
	for _, rec := range runs {
		n, err := store.CountCheckpoints(rec.ID)
		if err != nil {
			return err
		}
		episode := 0
		if n > 0 {
			cp, err := store.LatestCheckpoint(rec.ID)
			if err != nil {
				return err
			}
			episode = cp.Episode
		}
		if _, err := fmt.Fprintf(w, "%s  %s  %dx%d  episode %d/%d  checkpoints=%d\n",
			rec.ID, rec.CreatedAt.Format(time.RFC3339), rec.NumStates, rec.NumActions,
			episode, rec.Config.NumberOfEpisodes, n); err != nil {
			return err
		}
	}
	return nil
}

func runServe(cfg config.Config, args []string) error {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	flags.SetOutput(os.Stderr)

	addr := flags.String("addr", cfg.Addr, "listen address")
	boardPath := flags.String("board", cfg.BoardPath, "board map file (empty for the built-in board)")
	noMove := flags.Bool("nomove", false, "the table was trained with NOMOVE")
	tablePath := flags.String("table", cfg.TablePath, "q-table file")
	if err := flags.Parse(args); err != nil {
		return err
	}
	board, err := loadBoard(*boardPath, *noMove)
	if err != nil {
		return err
	}
	table, err := loadTable(*tablePath, board, cfg.Selection, false)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	return api.NewPolicyServer(board, table, logger).Run(*addr)
}

func printPolicy(w io.Writer, board *engine.Board, table *engine.QTable) error {
	color := isTerminal(w)
	if err := report.RenderPolicy(w, board, table, color); err != nil {
		return err
	}
	fmt.Fprintln(w)
	if err := report.RenderValues(w, board, table, color); err != nil {
		return err
	}
	s := report.Summarize(table)
	fmt.Fprintf(w, "summary: states=%d learned=%d mean=%.2f stddev=%.2f max=%.2f\n",
		s.States, s.Learned, s.Mean, s.StdDev, s.Max)
	return nil
}

// isTerminal reports whether w is a terminal, so colour codes are only
// written where they render.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
