//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"syscall/js"

	"qgrid/internal/engine"
)

// host owns the browser-side training session. Starting a new run cancels
// the previous one.
type host struct {
	mu       sync.Mutex
	cancel   context.CancelFunc
	onUpdate js.Value

	// trained is the last run whose snapshot stream has closed. It is no
	// longer written to, so qgridAct can read it.
	trained *engine.Trainer
	board   *engine.Board
}

// startRequest is the JSON accepted by qgridStartTraining.
type startRequest struct {
	engine.Config
	Board  string `json:"board"`
	NoMove bool   `json:"noMove"`
}

func main() {
	h := &host{}
	global := js.Global()
	global.Set("qgridRegisterSnapshotHandler", js.FuncOf(h.register))
	global.Set("qgridStartTraining", js.FuncOf(h.start))
	global.Set("qgridStopTraining", js.FuncOf(h.stop))
	global.Set("qgridAct", js.FuncOf(h.act))
	select {}
}

func (h *host) register(_ js.Value, args []js.Value) interface{} {
	if len(args) != 1 || args[0].Type() != js.TypeFunction {
		fmt.Println("qgridRegisterSnapshotHandler: expected a callback")
		return nil
	}
	h.mu.Lock()
	h.onUpdate = args[0]
	h.mu.Unlock()
	return nil
}

func (h *host) start(_ js.Value, args []js.Value) interface{} {
	if len(args) == 0 {
		fmt.Println("qgridStartTraining: expected a JSON request")
		return nil
	}
	var req startRequest
	if err := json.Unmarshal([]byte(args[0].String()), &req); err != nil {
		fmt.Printf("qgridStartTraining: %v\n", err)
		return nil
	}
	board, err := engine.ParseBoard(req.Board)
	if err != nil {
		fmt.Printf("qgridStartTraining: board: %v\n", err)
		return nil
	}
	if req.NoMove {
		board.WithNoMove()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.onUpdate.IsUndefined() || h.onUpdate.IsNull() {
		fmt.Println("qgridStartTraining: no snapshot handler registered")
		return nil
	}
	if h.cancel != nil {
		h.cancel()
	}
	var ctx context.Context
	ctx, h.cancel = context.WithCancel(context.Background())
	callback := h.onUpdate

	trainer := engine.NewTrainer(board, req.Config)
	snapshots := trainer.Run(ctx)
	go func() {
		for snap := range snapshots {
			callback.Invoke(snapshotToJS(board, snap))
		}
		h.mu.Lock()
		h.trained, h.board = trainer, board
		h.mu.Unlock()
	}()
	return nil
}

// act returns the greedy action name for (row, col) from the last finished
// run, or null when there is none or the cell is off the board.
func (h *host) act(_ js.Value, args []js.Value) interface{} {
	if len(args) != 2 {
		fmt.Println("qgridAct: expected row and col")
		return nil
	}
	row, col := args[0].Int(), args[1].Int()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.trained == nil || row < 0 || row >= h.board.Rows() || col < 0 || col >= h.board.Cols() {
		return nil
	}
	return h.trained.Act(h.board.StateIndex(row, col)).String()
}

func (h *host) stop(js.Value, []js.Value) interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	return nil
}

func snapshotToJS(board *engine.Board, snapshot engine.Snapshot) js.Value {
	valueMap := make([]interface{}, board.Rows())
	for r := range valueMap {
		row := make([]interface{}, board.Cols())
		for c := range row {
			row[c] = snapshot.ValueMap[board.StateIndex(r, c)]
		}
		valueMap[r] = row
	}
	goals := make([]interface{}, 0, len(board.Goals()))
	for _, g := range board.Goals() {
		goals = append(goals, map[string]interface{}{"row": g[0], "col": g[1]})
	}
	config := map[string]interface{}{
		"alpha":       snapshot.Config.Alpha,
		"gamma":       snapshot.Config.Gamma,
		"epsilon":     snapshot.Config.Epsilon,
		"decayRate":   snapshot.Config.EpsilonDecayRate,
		"minEpsilon":  snapshot.Config.EpsilonMinimumValue,
		"episodes":    snapshot.Config.NumberOfEpisodes,
		"yieldEvery":  snapshot.Config.YieldEvery,
		"selection":   snapshot.Config.Selection.String(),
		"seed":        snapshot.Config.Seed,
		"rows":        board.Rows(),
		"cols":        board.Cols(),
		"actionCount": board.NumActions(),
	}
	payload := map[string]interface{}{
		"status":   snapshot.Status,
		"episode":  snapshot.Progress.Episode,
		"fraction": snapshot.Progress.Fraction,
		"maxQ":     snapshot.Progress.MaxQ,
		"totalQ":   snapshot.Progress.TotalQ,
		"steps":    snapshot.Progress.Steps,
		"epsilon":  snapshot.Progress.Epsilon,
		"valueMap": valueMap,
		"goals":    goals,
		"config":   config,
	}
	return js.ValueOf(payload)
}
