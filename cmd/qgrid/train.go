package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"qgrid/internal/checkpoint"
	"qgrid/internal/config"
	"qgrid/internal/engine"
	"qgrid/internal/report"
)

func runTrain(cfg config.Config, args []string) error {
	flags := flag.NewFlagSet("train", flag.ContinueOnError)
	flags.SetOutput(os.Stderr)

	episodes := flags.Int("episodes", cfg.NumberOfEpisodes, "number of training episodes")
	seed := flags.Int64("seed", cfg.Seed, "deterministic seed (0 for default)")
	alpha := flags.Float64("alpha", float64(cfg.Alpha), "learning rate")
	gamma := flags.Float64("gamma", float64(cfg.Gamma), "discount factor")
	epsilon := flags.Float64("epsilon", float64(cfg.Epsilon), "initial exploration rate")
	decay := flags.Float64("epsilon-decay", float64(cfg.EpsilonDecayRate), "per-episode epsilon multiplier")
	epsilonMin := flags.Float64("epsilon-min", float64(cfg.EpsilonMinimumValue), "epsilon below which decay stops")
	yieldEvery := flags.Int("yield-every", cfg.YieldEvery, "episodes between progress reports and checkpoints")
	maxSteps := flags.Int("max-steps", 0, "step cap per episode (0 for none)")
	selection := flags.String("selection", cfg.Selection.String(), "zero-floored-argmax or true-argmax")
	boardPath := flags.String("board", cfg.BoardPath, "board map file (empty for the built-in board)")
	noMove := flags.Bool("nomove", false, "allow NOMOVE as a fifth action")
	tablePath := flags.String("table", cfg.TablePath, "q-table file to load and save")
	dbPath := flags.String("db", cfg.DBPath, "checkpoint database (empty to disable)")
	chartPath := flags.String("chart", cfg.ChartPath, "write an HTML training chart here")
	forget := flags.Bool("forget", cfg.ForgetPrevious, "discard previous learning and train from scratch")
	strict := flags.Bool("strict", false, "reject saved tables with the wrong number of rows")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *episodes <= 0 {
		return fmt.Errorf("episodes must be positive (got %d)", *episodes)
	}
	sel, err := engine.ParseSelection(*selection)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	board, err := loadBoard(*boardPath, *noMove)
	if err != nil {
		return err
	}

	if !*forget {
		table, err := loadTable(*tablePath, board, sel, *strict)
		switch {
		case err == nil:
			logger.WithField("table", *tablePath).Info("using previous learning")
			return printPolicy(os.Stdout, board, table)
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("%w (use -forget to retrain)", err)
		}
	}

	tcfg := cfg.Trainer()
	tcfg.Alpha = float32(*alpha)
	tcfg.Gamma = float32(*gamma)
	tcfg.Epsilon = float32(*epsilon)
	tcfg.EpsilonDecayRate = float32(*decay)
	tcfg.EpsilonMinimumValue = float32(*epsilonMin)
	tcfg.NumberOfEpisodes = *episodes
	tcfg.YieldEvery = *yieldEvery
	tcfg.MaxStepsPerEpisode = *maxSteps
	tcfg.Selection = sel
	tcfg.Seed = *seed
	fmt.Printf("train config => board=%dx%d actions=%d episodes=%d seed=%d alpha=%.2f gamma=%.2f epsilon=%.2f\n",
		board.Rows(), board.Cols(), board.NumActions(), tcfg.NumberOfEpisodes, tcfg.Seed, tcfg.Alpha, tcfg.Gamma, tcfg.Epsilon)

	session := &trainSession{
		board:     board,
		logger:    logger,
		out:       os.Stdout,
		tablePath: *tablePath,
		chartPath: *chartPath,
	}
	if *dbPath != "" {
		store, err := checkpoint.NewStore(*dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		rec, err := store.CreateRun(checkpoint.Run{
			Config:      tcfg,
			NumStates:   board.NumStates(),
			NumActions:  board.NumActions(),
			Columns:     board.Cols(),
			Environment: board.String(),
		})
		if err != nil {
			return err
		}
		logger.WithField("run", rec.ID).Info("recording checkpoints")
		session.store = store
		session.runID = rec.ID
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return session.train(ctx, func(c engine.Config) (*engine.Trainer, error) {
		return engine.NewTrainer(board, c), nil
	}, tcfg)
}

func runResume(cfg config.Config, args []string) error {
	flags := flag.NewFlagSet("resume", flag.ContinueOnError)
	flags.SetOutput(os.Stderr)

	dbPath := flags.String("db", cfg.DBPath, "checkpoint database")
	runID := flags.String("run", "", "run to resume (default: latest)")
	tablePath := flags.String("table", cfg.TablePath, "q-table file to save")
	chartPath := flags.String("chart", cfg.ChartPath, "write an HTML training chart here")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return errors.New("resume needs a checkpoint database")
	}

	logger := newLogger(cfg.LogLevel)
	store, err := checkpoint.NewStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	plan, err := planResume(store, *runID)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"run":     plan.run.ID,
		"episode": plan.checkpoint.Episode,
		"seed":    plan.config.Seed,
	}).Info("resuming")

	session := &trainSession{
		board:     plan.board,
		logger:    logger,
		out:       os.Stdout,
		store:     store,
		runID:     plan.run.ID,
		tablePath: *tablePath,
		chartPath: *chartPath,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return session.train(ctx, func(c engine.Config) (*engine.Trainer, error) {
		return engine.ResumeTrainer(plan.board, c, plan.checkpoint)
	}, plan.config)
}

// resumePlan is everything needed to continue a stored run.
type resumePlan struct {
	run        checkpoint.Run
	board      *engine.Board
	checkpoint engine.Checkpoint
	config     engine.Config
}

// planResume loads a run (the latest when runID is empty), its newest
// checkpoint and its board. The seed is offset by the completed episode count
// so the resumed episodes do not replay the random stream of the first ones.
func planResume(store *checkpoint.Store, runID string) (resumePlan, error) {
	var (
		rec checkpoint.Run
		err error
	)
	if runID == "" {
		rec, err = store.LatestRun()
	} else {
		rec, err = store.GetRun(runID)
	}
	if err != nil {
		return resumePlan{}, err
	}
	cp, err := store.LatestCheckpoint(rec.ID)
	if err != nil {
		return resumePlan{}, err
	}
	board, err := engine.ParseBoard(rec.Environment)
	if err != nil {
		return resumePlan{}, fmt.Errorf("run %s board: %w", rec.ID, err)
	}
	if rec.NumActions == engine.FiveWay {
		board.WithNoMove()
	}
	cfg := rec.Config
	cfg.Seed += int64(cp.Episode)
	return resumePlan{run: rec, board: board, checkpoint: cp, config: cfg}, nil
}

type trainSession struct {
	board     *engine.Board
	logger    *logrus.Logger
	out       io.Writer
	store     *checkpoint.Store
	runID     string
	tablePath string
	chartPath string
}

// train drives newTrainer to completion, checkpointing at every yield. When
// ctx is cancelled it stops after the current episode.
func (s *trainSession) train(ctx context.Context, newTrainer func(engine.Config) (*engine.Trainer, error), cfg engine.Config) error {
	var chart *report.Chart
	sinks := report.Multi{report.NewLogSink(s.logger, cfg.YieldEvery), cfg.Progress}
	if s.chartPath != "" {
		chart = report.NewChart("qgrid", cfg.YieldEvery)
		sinks = append(sinks, chart)
	}
	cfg.Progress = sinks
	cfg.Logger = s.logger

	trainer, err := newTrainer(cfg)
	if err != nil {
		return err
	}

	total := trainer.Config().NumberOfEpisodes
	for !trainer.Done() {
		p, err := trainer.Advance(ctx)
		if cpErr := s.checkpoint(trainer); cpErr != nil {
			return cpErr
		}
		if err != nil {
			if ctx.Err() == nil {
				return err
			}
			if s.store == nil {
				fmt.Fprintf(s.out, "interrupted after episode %d; nothing saved (set -db to keep checkpoints)\n", trainer.Episode())
			} else {
				fmt.Fprintf(s.out, "interrupted after episode %d; continue with 'qgrid resume -run %s'\n", trainer.Episode(), s.runID)
			}
			return nil
		}
		fmt.Fprintf(s.out, "episode %d/%d (%.0f%%) maxQ=%.2f totalQ=%.2f epsilon=%.4f\n",
			p.Episode, total, p.Fraction*100, p.MaxQ, p.TotalQ, p.Epsilon)
	}

	if err := trainer.Table().SaveFile(s.tablePath); err != nil {
		return err
	}
	s.logger.WithField("table", s.tablePath).Info("saved q-table")
	if chart != nil {
		if err := chart.RenderFile(s.chartPath); err != nil {
			return err
		}
		s.logger.WithField("chart", s.chartPath).Info("wrote training chart")
	}
	return printPolicy(s.out, s.board, trainer.Table())
}

func (s *trainSession) checkpoint(trainer *engine.Trainer) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveCheckpoint(s.runID, trainer.Checkpoint()); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}
