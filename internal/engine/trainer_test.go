package engine

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
)

// scriptedRand replays fixed draws so updates can be checked by hand.
type scriptedRand struct {
	t      *testing.T
	floats []float32
	ints   []int
}

func (r *scriptedRand) Float32() float32 {
	if len(r.floats) == 0 {
		r.t.Fatalf("unexpected Float32 draw")
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func (r *scriptedRand) Intn(n int) int {
	if len(r.ints) == 0 {
		r.t.Fatalf("unexpected Intn(%d) draw", n)
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	if v < 0 || v >= n {
		r.t.Fatalf("scripted value %d outside [0,%d)", v, n)
	}
	return v
}

func mustBoard(t *testing.T, text string) *Board {
	t.Helper()
	b, err := ParseBoard(text)
	if err != nil {
		t.Fatalf("ParseBoard: %v", err)
	}
	return b
}

func trainAll(t *testing.T, trainer *Trainer) {
	t.Helper()
	for !trainer.Done() {
		if _, err := trainer.Advance(context.Background()); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
}

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func TestQLearningUpdateSequence(t *testing.T) {
	board := mustBoard(t, "..G")
	rng := &scriptedRand{
		t: t,
		// episode 1: start 1, explore, Right into the goal
		// episode 2: start 0, explore, Right onto 1, explore, Right into the goal
		floats: []float32{0, 0, 0},
		ints:   []int{1, int(Right), 0, int(Right), int(Right)},
	}
	trainer := NewTrainer(board, Config{
		Alpha:            0.5,
		Gamma:            0.9,
		Epsilon:          1,
		EpsilonDecayRate: 1,
		NumberOfEpisodes: 2,
		Rand:             rng,
	})
	trainAll(t, trainer)

	table := trainer.Table()
	// Q(1,R) = 0.5*0 + 0.5*100
	// Q(0,R) = 0.5*0 + 0.5*(0 + 0.9*50)
	// Q(1,R) = 0.5*50 + 0.5*100
	if got := table.Get(1, Right); !approx(got, 75) {
		t.Fatalf("expected Q(1,Right)=75, got %v", got)
	}
	if got := table.Get(0, Right); !approx(got, 22.5) {
		t.Fatalf("expected Q(0,Right)=22.5, got %v", got)
	}
	if trainer.Episode() != 2 {
		t.Fatalf("expected 2 episodes, got %d", trainer.Episode())
	}
}

func TestBlockedMoveEndsEpisode(t *testing.T) {
	board := mustBoard(t, ".#")
	seeded := NewQTable(board.NumStates(), board.NumActions(), board.Cols())
	seeded.Set(0, Right, 42)

	var events []Progress
	rng := &scriptedRand{t: t, floats: []float32{0.5}, ints: []int{0}}
	trainer, err := ResumeTrainer(board, Config{
		Alpha:            0.5,
		Gamma:            0.9,
		Epsilon:          0,
		EpsilonDecayRate: 1,
		NumberOfEpisodes: 1,
		Rand:             rng,
		Progress:         ProgressFunc(func(p Progress) { events = append(events, p) }),
	}, Checkpoint{Table: seeded})
	if err != nil {
		t.Fatalf("ResumeTrainer: %v", err)
	}
	trainAll(t, trainer)

	if len(events) != 1 || events[0].Steps != 1 {
		t.Fatalf("expected a single one-step episode, got %+v", events)
	}
	// greedy Right into the wall: 0.5*42 + 0.5*(-1)
	if got := trainer.Table().Get(0, Right); !approx(got, 20.5) {
		t.Fatalf("expected Q(0,Right)=20.5, got %v", got)
	}
}

func TestEpsilonDecayFreezesBelowFloor(t *testing.T) {
	var epsilons []float32
	trainer := NewTrainer(NewBoard(1, 1), Config{
		Alpha:               0.5,
		Gamma:               0.9,
		Epsilon:             1,
		EpsilonDecayRate:    0.5,
		EpsilonMinimumValue: 0.2,
		NumberOfEpisodes:    8,
		Seed:                3,
		Progress:            ProgressFunc(func(p Progress) { epsilons = append(epsilons, p.Epsilon) }),
	})
	trainAll(t, trainer)

	want := []float32{0.5, 0.25, 0.125, 0.125, 0.125, 0.125, 0.125, 0.125}
	if len(epsilons) != len(want) {
		t.Fatalf("expected %d progress events, got %d", len(want), len(epsilons))
	}
	for i := range want {
		if epsilons[i] != want[i] {
			t.Fatalf("episode %d: expected epsilon %v, got %v", i+1, want[i], epsilons[i])
		}
	}
	if trainer.Epsilon() != 0.125 {
		t.Fatalf("expected frozen epsilon 0.125, got %v", trainer.Epsilon())
	}
}

func TestTwoByTwoLearnsTowardGoal(t *testing.T) {
	board := mustBoard(t, "..\n.G\n")
	trainer := NewTrainer(board, Config{
		Alpha:            0.5,
		Gamma:            0.9,
		Epsilon:          1,
		EpsilonDecayRate: 1,
		NumberOfEpisodes: 500,
		Seed:             42,
	})
	trainAll(t, trainer)

	table := trainer.Table()
	start := board.StateIndex(0, 0)
	if best := trainer.Act(start); best != Down && best != Right {
		t.Fatalf("expected Down or Right from (0,0), got %s", best)
	}
	near := table.HighestValue(board.StateIndex(1, 0))
	far := table.HighestValue(start)
	if near <= far {
		t.Fatalf("expected value next to goal (%v) to exceed (0,0) (%v)", near, far)
	}
}

func TestRandomPolicyTerminates(t *testing.T) {
	board := mustBoard(t, `
		.....
		.#.#.
		.....
		.#..G
	`)
	completed := 0
	trainer := NewTrainer(board, Config{
		Alpha:            0.3,
		Gamma:            0.8,
		Epsilon:          1,
		EpsilonDecayRate: 1,
		NumberOfEpisodes: 300,
		YieldEvery:       50,
		Seed:             11,
		Progress: ProgressFunc(func(p Progress) {
			if p.Steps < 1 {
				t.Fatalf("episode %d recorded %d steps", p.Episode, p.Steps)
			}
			completed++
		}),
	})
	trainAll(t, trainer)
	if completed != 300 {
		t.Fatalf("expected 300 episodes, got %d", completed)
	}
}

func TestBellmanUpdateIsConvex(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 10000; i++ {
		alpha := rng.Float32()
		gamma := rng.Float32()
		q := (rng.Float32() - 0.5) * 200
		reward := []float32{RewardBlocked, RewardStep, RewardGoal}[rng.Intn(3)]
		nextMax := rng.Float32() * 100
		target := reward + gamma*nextMax

		got := BellmanUpdate(q, reward, nextMax, alpha, gamma)
		lo, hi := q, target
		if lo > hi {
			lo, hi = hi, lo
		}
		if got < lo-1e-3 || got > hi+1e-3 {
			t.Fatalf("update %v outside [%v,%v] (q=%v r=%v next=%v a=%v g=%v)", got, lo, hi, q, reward, nextMax, alpha, gamma)
		}
	}
	if got := BellmanUpdate(7, RewardGoal, 0, 0, 0.9); got != 7 {
		t.Fatalf("alpha 0 must keep q, got %v", got)
	}
	if got := BellmanUpdate(7, RewardStep, 10, 1, 0.5); got != 5 {
		t.Fatalf("alpha 1 must take the target, got %v", got)
	}
}

func TestRunEmitsSnapshotsPerYield(t *testing.T) {
	board := mustBoard(t, "...\n..G\n")
	trainer := NewTrainer(board, Config{
		Alpha:            0.3,
		Gamma:            0.8,
		Epsilon:          1,
		EpsilonDecayRate: 0.99,
		NumberOfEpisodes: 25,
		YieldEvery:       10,
		Seed:             7,
	})

	var snapshots []Snapshot
	for snapshot := range trainer.Run(context.Background()) {
		snapshots = append(snapshots, snapshot)
	}
	if len(snapshots) != 4 {
		t.Fatalf("expected 3 running snapshots and 1 done, got %d", len(snapshots))
	}
	for i, episode := range []int{10, 20, 25} {
		if snapshots[i].Status != StatusRunning || snapshots[i].Progress.Episode != episode {
			t.Fatalf("snapshot %d: unexpected %s at episode %d", i, snapshots[i].Status, snapshots[i].Progress.Episode)
		}
	}
	final := snapshots[3]
	if final.Status != StatusDone || final.Progress.Fraction != 1 {
		t.Fatalf("unexpected final snapshot %+v", final.Progress)
	}
	if len(final.ValueMap) != board.NumStates() {
		t.Fatalf("expected %d values, got %d", board.NumStates(), len(final.ValueMap))
	}
}

func TestRunCancelledBetweenEpisodes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	trainer := NewTrainer(NewBoard(2, 2), Config{NumberOfEpisodes: 5, Epsilon: 1, EpsilonDecayRate: 1})

	var final Snapshot
	for snapshot := range trainer.Run(ctx) {
		final = snapshot
	}
	if final.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", final.Status)
	}
	if trainer.Episode() != 0 {
		t.Fatalf("expected no episodes, got %d", trainer.Episode())
	}
	if final.Progress.MaxQ != 0 {
		t.Fatalf("expected MaxQ 0 before any update, got %v", final.Progress.MaxQ)
	}

	p, err := trainer.Advance(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p.MaxQ != 0 {
		t.Fatalf("expected MaxQ 0 before any update, got %v", p.MaxQ)
	}
}

func TestMaxQTracksNegativeFirstWrite(t *testing.T) {
	board := mustBoard(t, ".")
	trainer := NewTrainer(board, Config{Alpha: 0.5, Gamma: 0.9, NumberOfEpisodes: 1, EpsilonDecayRate: 1})

	p, err := trainer.Advance(context.Background())
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if p.MaxQ != -0.5 {
		t.Fatalf("expected MaxQ -0.5 after one blocked move, got %v", p.MaxQ)
	}
	if p.TotalQ != -0.5 {
		t.Fatalf("expected TotalQ -0.5, got %v", p.TotalQ)
	}
}

func TestResumeMatchesUninterruptedRun(t *testing.T) {
	board := mustBoard(t, `
		....
		.#..
		...G
	`)
	cfg := Config{
		Alpha:               0.4,
		Gamma:               0.9,
		Epsilon:             0.8,
		EpsilonDecayRate:    0.95,
		EpsilonMinimumValue: 0.1,
		NumberOfEpisodes:    40,
		YieldEvery:          15,
	}

	full := cfg
	full.Rand = rand.New(rand.NewSource(5))
	uninterrupted := NewTrainer(board, full)
	trainAll(t, uninterrupted)

	part := cfg
	part.Rand = rand.New(rand.NewSource(5))
	first := NewTrainer(board, part)
	if _, err := first.Advance(context.Background()); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	cp := first.Checkpoint()
	if cp.Episode != 15 {
		t.Fatalf("expected checkpoint at 15, got %d", cp.Episode)
	}

	resumed, err := ResumeTrainer(board, part, cp)
	if err != nil {
		t.Fatalf("ResumeTrainer: %v", err)
	}
	trainAll(t, resumed)

	if !resumed.Table().Equal(uninterrupted.Table()) {
		t.Fatalf("resumed table differs from uninterrupted run")
	}
	if resumed.Epsilon() != uninterrupted.Epsilon() {
		t.Fatalf("expected epsilon %v, got %v", uninterrupted.Epsilon(), resumed.Epsilon())
	}
}

func TestResumeRejectsWrongShape(t *testing.T) {
	_, err := ResumeTrainer(NewBoard(2, 2), Config{NumberOfEpisodes: 1}, Checkpoint{Table: NewQTable(9, 4, 3)})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	_, err = ResumeTrainer(NewBoard(2, 2), Config{NumberOfEpisodes: 1}, Checkpoint{Episode: 2, Table: NewQTable(4, 4, 2)})
	if err == nil {
		t.Fatalf("expected episode beyond horizon to fail")
	}
}

func TestMaxStepsPerEpisodeBoundsGreedyLoops(t *testing.T) {
	// With true argmax and no exploration the agent can bounce between two
	// cells forever; the step cap ends those episodes.
	board := mustBoard(t, "..\n.G\n")
	trainer := NewTrainer(board, Config{
		Alpha:              0.5,
		Gamma:              0.9,
		Epsilon:            0,
		EpsilonDecayRate:   1,
		NumberOfEpisodes:   20,
		MaxStepsPerEpisode: 50,
		Selection:          TrueArgmax,
		Seed:               9,
	})
	trainAll(t, trainer)
	if trainer.Table().Selection() != TrueArgmax {
		t.Fatalf("expected trainer to apply the configured selection")
	}
}
