package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const fieldSeparator = ";"

// ErrShapeMismatch is returned by a strict load when the number of data lines
// does not match the expected number of states.
var ErrShapeMismatch = errors.New("q-table shape mismatch")

// FormatError reports a data line that could not be parsed.
type FormatError struct {
	Line int
	Text string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("q-table line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Save writes the table as one header line followed by one
// "<row,col>;v0;v1;..." line per state. Values use the shortest decimal form
// that reads back to the same float32.
func (q *QTable) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	var sb strings.Builder
	for a := 0; a < q.numActions; a++ {
		sb.WriteString(fieldSeparator)
		sb.WriteString(Action(a).String())
	}
	sb.WriteByte('\n')
	if _, err := bw.WriteString(sb.String()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for s := 0; s < q.numStates; s++ {
		sb.Reset()
		fmt.Fprintf(&sb, "<%d,%d>", s/q.columns, s%q.columns)
		for _, v := range q.data[s*q.numActions : (s+1)*q.numActions] {
			sb.WriteString(fieldSeparator)
			sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
		}
		sb.WriteByte('\n')
		if _, err := bw.WriteString(sb.String()); err != nil {
			return fmt.Errorf("write state %d: %w", s, err)
		}
	}
	return bw.Flush()
}

// SaveFile writes the table to path. A failed save can leave a truncated file.
func (q *QTable) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := q.Save(f); err != nil {
		f.Close()
		return fmt.Errorf("save %s: %w", path, err)
	}
	return f.Close()
}

type loadOptions struct {
	strict    bool
	columns   int
	selection Selection
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

// Strict rejects files whose data line count differs from the expected number
// of states. Without it missing rows stay zero and extra rows are ignored.
func Strict() LoadOption {
	return func(o *loadOptions) { o.strict = true }
}

// WithColumns sets the board width used for labels when the table is saved again.
func WithColumns(columns int) LoadOption {
	return func(o *loadOptions) { o.columns = columns }
}

// WithSelection sets the selection mode of the loaded table.
func WithSelection(s Selection) LoadOption {
	return func(o *loadOptions) { o.selection = s }
}

// Load parses a table written by Save. The first line is skipped unread.
// Rows are assigned to states purely by order; the <row,col> labels are
// ignored. The caller must pass the shape the table was trained with.
func Load(r io.Reader, numStates, numActions int, opts ...LoadOption) (*QTable, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	q := NewQTable(numStates, numActions, o.columns)
	q.selection = o.selection

	scanner := bufio.NewScanner(r)
	lineNo := 0
	state := 0
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			continue
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, fieldSeparator)
		if len(fields) != numActions+1 {
			return nil, &FormatError{
				Line: lineNo,
				Text: line,
				Err:  fmt.Errorf("expected %d fields, got %d", numActions+1, len(fields)),
			}
		}
		row := make([]float32, numActions)
		for i, field := range fields[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
			if err != nil {
				return nil, &FormatError{Line: lineNo, Text: line, Err: err}
			}
			row[i] = float32(v)
		}
		if state < numStates {
			copy(q.data[state*numActions:], row)
		}
		state++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read q-table: %w", err)
	}
	if o.strict && state != numStates {
		return nil, fmt.Errorf("%w: %d data lines for %d states", ErrShapeMismatch, state, numStates)
	}
	return q, nil
}

// LoadFile opens path and calls Load. A missing file yields an error matching
// fs.ErrNotExist, which callers use as the signal to train from scratch.
func LoadFile(path string, numStates, numActions int, opts ...LoadOption) (*QTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	q, err := Load(f, numStates, numActions, opts...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return q, nil
}
