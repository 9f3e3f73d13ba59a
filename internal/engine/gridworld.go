package engine

import (
	"errors"
	"fmt"
	"strings"
)

type tileKind int

const (
	tileEmpty tileKind = iota
	tileWall
	tileGoal
)

type position struct {
	row int
	col int
}

// Board is a rectangular grid environment. Walls and the board edge block
// movement; goal cells end the episode with RewardGoal.
type Board struct {
	rows       int
	cols       int
	numActions int
	tiles      map[position]tileKind
}

// NewBoard returns an all-empty board using the four directional moves.
func NewBoard(rows, cols int) *Board {
	if rows <= 0 {
		rows = 1
	}
	if cols <= 0 {
		cols = 1
	}
	return &Board{
		rows:       rows,
		cols:       cols,
		numActions: FourWay,
		tiles:      make(map[position]tileKind),
	}
}

// ParseBoard reads an ASCII map: '.' empty, '#' wall, 'G' goal. Blank lines
// are ignored and every row must have the same width.
func ParseBoard(text string) (*Board, error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, errors.New("empty board")
	}
	b := NewBoard(len(lines), len(lines[0]))
	for r, line := range lines {
		if len(line) != b.cols {
			return nil, fmt.Errorf("board row %d has width %d, want %d", r, len(line), b.cols)
		}
		for c, ch := range line {
			switch ch {
			case '.':
			case '#':
				b.SetWall(r, c)
			case 'G', 'g':
				b.SetGoal(r, c)
			default:
				return nil, fmt.Errorf("board row %d col %d: unknown tile %q", r, c, ch)
			}
		}
	}
	return b, nil
}

// WithNoMove makes NoMove available as a fifth action.
func (b *Board) WithNoMove() *Board {
	b.numActions = FiveWay
	return b
}

func (b *Board) Rows() int { return b.rows }
func (b *Board) Cols() int { return b.cols }

func (b *Board) NumStates() int  { return b.rows * b.cols }
func (b *Board) NumActions() int { return b.numActions }

func (b *Board) inBounds(row, col int) bool {
	return row >= 0 && row < b.rows && col >= 0 && col < b.cols
}

func (b *Board) SetWall(row, col int) {
	if b.inBounds(row, col) {
		b.tiles[position{row: row, col: col}] = tileWall
	}
}

func (b *Board) SetGoal(row, col int) {
	if b.inBounds(row, col) {
		b.tiles[position{row: row, col: col}] = tileGoal
	}
}

func (b *Board) tileAt(row, col int) tileKind {
	return b.tiles[position{row: row, col: col}]
}

func (b *Board) Walkable(row, col int) bool {
	return b.inBounds(row, col) && b.tileAt(row, col) != tileWall
}

func (b *Board) IsGoal(row, col int) bool {
	return b.inBounds(row, col) && b.tileAt(row, col) == tileGoal
}

// StateIndex maps a cell to its state index.
func (b *Board) StateIndex(row, col int) int {
	return row*b.cols + col
}

// Cell maps a state index back to its cell.
func (b *Board) Cell(state int) (row, col int) {
	return state / b.cols, state % b.cols
}

func (b *Board) nextPosition(row, col int, action Action) (int, int) {
	switch action {
	case Up:
		row--
	case Down:
		row++
	case Left:
		col--
	case Right:
		col++
	}
	return row, col
}

func (b *Board) Neighbors(state int) []int {
	row, col := b.Cell(state)
	out := make([]int, b.numActions)
	for a := range out {
		r, c := b.nextPosition(row, col, Action(a))
		if b.Walkable(r, c) {
			out[a] = b.StateIndex(r, c)
		} else {
			out[a] = NoState
		}
	}
	return out
}

func (b *Board) Reward(next int) float32 {
	if next < 0 || next >= b.NumStates() {
		return RewardBlocked
	}
	row, col := b.Cell(next)
	switch b.tileAt(row, col) {
	case tileWall:
		return RewardBlocked
	case tileGoal:
		return RewardGoal
	default:
		return RewardStep
	}
}

// Goals lists goal cells in row-major order.
func (b *Board) Goals() [][2]int {
	var goals [][2]int
	for r := 0; r < b.rows; r++ {
		for c := 0; c < b.cols; c++ {
			if b.tileAt(r, c) == tileGoal {
				goals = append(goals, [2]int{r, c})
			}
		}
	}
	return goals
}

// String renders the board in the format accepted by ParseBoard.
func (b *Board) String() string {
	var sb strings.Builder
	for r := 0; r < b.rows; r++ {
		for c := 0; c < b.cols; c++ {
			switch b.tileAt(r, c) {
			case tileWall:
				sb.WriteByte('#')
			case tileGoal:
				sb.WriteByte('G')
			default:
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
