package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"

	"github.com/sirupsen/logrus"
)

const (
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusCancelled = "cancelled"
)

// Config holds the hyperparameters of a training run. Values are used as
// given; nothing is clamped to a sensible range.
type Config struct {
	Alpha               float32   `json:"alpha"`
	Gamma               float32   `json:"gamma"`
	Epsilon             float32   `json:"epsilon"`
	EpsilonDecayRate    float32   `json:"epsilonDecayRate"`
	EpsilonMinimumValue float32   `json:"epsilonMinimumValue"`
	NumberOfEpisodes    int       `json:"numberOfEpisodes"`
	YieldEvery          int       `json:"yieldEvery"`
	MaxStepsPerEpisode  int       `json:"maxStepsPerEpisode"`
	Selection           Selection `json:"selection"`
	Seed                int64     `json:"seed"`

	Rand     Rand               `json:"-"`
	Progress ProgressSink       `json:"-"`
	Logger   logrus.FieldLogger `json:"-"`
}

// Progress describes the run after a finished episode. MaxQ and TotalQ are the
// running max and sum of every value written since the trainer was created;
// MaxQ is 0 until the first write.
type Progress struct {
	Episode  int
	Fraction float64
	MaxQ     float32
	TotalQ   float32
	Steps    int
	Epsilon  float32
}

// ProgressSink receives one event per finished episode. It runs on the
// training goroutine and must not modify the table.
type ProgressSink interface {
	Episode(p Progress)
}

type ProgressFunc func(p Progress)

func (f ProgressFunc) Episode(p Progress) { f(p) }

// Snapshot is emitted by Run at every suspension point.
type Snapshot struct {
	Status   string
	Progress Progress
	ValueMap []float32
	Config   Config
}

// Checkpoint is the state needed to resume a run: the table, the number of
// completed episodes and the current exploration rate.
type Checkpoint struct {
	Episode int
	Epsilon float32
	Table   *QTable
}

var errNoStates = errors.New("engine: environment has no states")

type Trainer struct {
	cfg     Config
	env     Environment
	rng     Rand
	log     logrus.FieldLogger
	agent   *epsilonGreedyAgent
	qvalues *QTable
	episode int
	steps   int
	maxQ    float32
	hasMax  bool
	totalQ  float32
}

// NewTrainer prepares a run over env with a zeroed table.
func NewTrainer(env Environment, cfg Config) *Trainer {
	qvalues := NewQTable(env.NumStates(), env.NumActions(), columnsOf(env))
	return newTrainer(env, cfg, qvalues, 0, cfg.Epsilon)
}

// ResumeTrainer continues a run from cp. The table must have the shape of env;
// the trainer takes ownership of it.
func ResumeTrainer(env Environment, cfg Config, cp Checkpoint) (*Trainer, error) {
	if cp.Table == nil {
		return nil, errors.New("engine: checkpoint has no table")
	}
	if cp.Table.NumStates() != env.NumStates() || cp.Table.NumActions() != env.NumActions() {
		return nil, fmt.Errorf("%w: checkpoint %dx%d, environment %dx%d", ErrShapeMismatch,
			cp.Table.NumStates(), cp.Table.NumActions(), env.NumStates(), env.NumActions())
	}
	if cp.Episode < 0 || cp.Episode > cfg.NumberOfEpisodes {
		return nil, fmt.Errorf("engine: checkpoint episode %d outside [0,%d]", cp.Episode, cfg.NumberOfEpisodes)
	}
	return newTrainer(env, cfg, cp.Table, cp.Episode, cp.Epsilon), nil
}

func newTrainer(env Environment, cfg Config, qvalues *QTable, episode int, epsilon float32) *Trainer {
	if cfg.YieldEvery <= 0 {
		cfg.YieldEvery = 1
	}
	if cfg.MaxStepsPerEpisode < 0 {
		cfg.MaxStepsPerEpisode = 0
	}
	rng := cfg.Rand
	if rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = 1
		}
		rng = rand.New(rand.NewSource(seed))
	}
	log := cfg.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	qvalues.SetSelection(cfg.Selection)
	return &Trainer{
		cfg:     cfg,
		env:     env,
		rng:     rng,
		log:     log,
		agent:   newEpsilonGreedyAgent(rng, qvalues, epsilon),
		qvalues: qvalues,
		episode: episode,
	}
}

func columnsOf(env Environment) int {
	if grid, ok := env.(interface{ Cols() int }); ok {
		return grid.Cols()
	}
	return env.NumStates()
}

func (t *Trainer) Done() bool           { return t.episode >= t.cfg.NumberOfEpisodes }
func (t *Trainer) Episode() int         { return t.episode }
func (t *Trainer) Epsilon() float32     { return t.agent.epsilon }
func (t *Trainer) Config() Config       { return t.cfg }
func (t *Trainer) Table() *QTable       { return t.qvalues }
func (t *Trainer) Act(state int) Action { return t.qvalues.BestAction(state) }

// Checkpoint captures the run so far. The table is copied.
func (t *Trainer) Checkpoint() Checkpoint {
	return Checkpoint{Episode: t.episode, Epsilon: t.agent.epsilon, Table: t.qvalues.Clone()}
}

// Advance runs up to YieldEvery episodes and returns. The context is only
// checked between episodes, so a cancelled Advance never leaves an episode
// half applied.
func (t *Trainer) Advance(ctx context.Context) (Progress, error) {
	if t.env.NumStates() == 0 {
		return t.progress(), errNoStates
	}
	for i := 0; i < t.cfg.YieldEvery && !t.Done(); i++ {
		if err := ctx.Err(); err != nil {
			return t.progress(), err
		}
		t.runEpisode()
	}
	return t.progress(), nil
}

// Run trains in a goroutine until every episode has run or ctx is cancelled,
// sending a snapshot at each suspension point and a final one with
// StatusDone or StatusCancelled.
func (t *Trainer) Run(ctx context.Context) <-chan Snapshot {
	out := make(chan Snapshot)
	go func() {
		defer close(out)
		for !t.Done() {
			if _, err := t.Advance(ctx); err != nil {
				t.log.WithError(err).WithField("episode", t.episode).Warn("training stopped")
				out <- t.snapshot(StatusCancelled)
				return
			}
			out <- t.snapshot(StatusRunning)
		}
		out <- t.snapshot(StatusDone)
	}()
	return out
}

func (t *Trainer) runEpisode() {
	state := t.rng.Intn(t.env.NumStates())
	steps := 0
	for {
		action := t.agent.act(state)
		current := t.qvalues.Get(state, action)
		next := t.env.Neighbors(state)[action]
		reward := t.env.Reward(next)
		var nextMax float32
		if next != NoState {
			nextMax = t.qvalues.HighestValue(next)
		}
		updated := BellmanUpdate(current, reward, nextMax, t.cfg.Alpha, t.cfg.Gamma)
		t.qvalues.Set(state, action, updated)
		t.totalQ += updated
		if !t.hasMax || updated > t.maxQ {
			t.maxQ = updated
			t.hasMax = true
		}
		steps++
		state = next
		if IsTerminal(reward) || next == NoState {
			break
		}
		if t.cfg.MaxStepsPerEpisode > 0 && steps >= t.cfg.MaxStepsPerEpisode {
			break
		}
	}
	t.episode++
	t.steps = steps
	t.agent.decay(t.cfg.EpsilonDecayRate, t.cfg.EpsilonMinimumValue)

	p := t.progress()
	t.log.WithFields(logrus.Fields{
		"episode": p.Episode,
		"steps":   p.Steps,
		"maxQ":    p.MaxQ,
		"totalQ":  p.TotalQ,
		"epsilon": p.Epsilon,
	}).Debug("episode finished")
	if t.cfg.Progress != nil {
		t.cfg.Progress.Episode(p)
	}
}

// BellmanUpdate returns (1-alpha)*q + alpha*(reward + gamma*nextMax).
func BellmanUpdate(q, reward, nextMax, alpha, gamma float32) float32 {
	return (1-alpha)*q + alpha*(reward+gamma*nextMax)
}

func (t *Trainer) progress() Progress {
	fraction := 1.0
	if t.cfg.NumberOfEpisodes > 0 {
		fraction = float64(t.episode) / float64(t.cfg.NumberOfEpisodes)
	}
	return Progress{
		Episode:  t.episode,
		Fraction: fraction,
		MaxQ:     t.maxQ,
		TotalQ:   t.totalQ,
		Steps:    t.steps,
		Epsilon:  t.agent.epsilon,
	}
}

func (t *Trainer) snapshot(status string) Snapshot {
	return Snapshot{
		Status:   status,
		Progress: t.progress(),
		ValueMap: t.qvalues.StateValues(),
		Config:   t.cfg,
	}
}
