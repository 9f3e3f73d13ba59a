package checkpoint

import (
	"errors"
	"time"

	"qgrid/internal/engine"
)

var (
	ErrNoRun        = errors.New("no training run found")
	ErrNoCheckpoint = errors.New("no checkpoint found")
)

// Run is one training run: the hyperparameters it was started with, the
// shape of the table it trains and a text description of its environment
// (for boards, the map accepted by engine.ParseBoard).
type Run struct {
	ID          string
	Config      engine.Config
	NumStates   int
	NumActions  int
	Columns     int
	Environment string
	CreatedAt   time.Time
}
