package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"qgrid/internal/config"
	"qgrid/internal/engine"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "qgrid: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return errors.New("missing subcommand; try 'train', 'resume', 'runs', 'act' or 'serve'")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	subcommand := os.Args[1]
	switch subcommand {
	case "train":
		return runTrain(cfg, os.Args[2:])
	case "resume":
		return runResume(cfg, os.Args[2:])
	case "runs":
		return runRuns(cfg, os.Args[2:])
	case "act":
		return runAct(cfg, os.Args[2:])
	case "serve":
		return runServe(cfg, os.Args[2:])
	default:
		return fmt.Errorf("unknown subcommand %q", subcommand)
	}
}

// loadConfig reads QGRID_ENV_FILE when set, otherwise an optional .env in
// the working directory.
func loadConfig() (config.Config, error) {
	if path := os.Getenv("QGRID_ENV_FILE"); path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newLogger(level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

const defaultBoard = `
....#...
.##.#.#.
.#....#.
.#.##.#.
...#...G
`

// loadBoard reads a board map from path, or returns the built-in board.
func loadBoard(path string, noMove bool) (*engine.Board, error) {
	text := defaultBoard
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read board: %w", err)
		}
		text = string(data)
	}
	board, err := engine.ParseBoard(text)
	if err != nil {
		return nil, err
	}
	if noMove {
		board.WithNoMove()
	}
	return board, nil
}

func loadTable(path string, board *engine.Board, selection engine.Selection, strict bool) (*engine.QTable, error) {
	opts := []engine.LoadOption{engine.WithColumns(board.Cols()), engine.WithSelection(selection)}
	if strict {
		opts = append(opts, engine.Strict())
	}
	return engine.LoadFile(path, board.NumStates(), board.NumActions(), opts...)
}
