package engine

import (
	"bytes"
	"errors"
	"io/fs"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveFormat(t *testing.T) {
	q := NewQTable(4, 4, 2)
	setRow(q, 0, 0.5, -1, 0, 100)
	setRow(q, 3, 0, 0, 0.25, 0)

	var buf bytes.Buffer
	require.NoError(t, q.Save(&buf))

	want := ";UP;DOWN;LEFT;RIGHT\n" +
		"<0,0>;0.5;-1;0;100\n" +
		"<0,1>;0;0;0;0\n" +
		"<1,0>;0;0;0;0\n" +
		"<1,1>;0;0;0.25;0\n"
	assert.Equal(t, want, buf.String())
}

func TestSaveHeaderFiveWay(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewQTable(1, FiveWay, 1).Save(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), ";UP;DOWN;LEFT;RIGHT;NOMOVE\n"))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	q := NewQTable(6, 5, 3)
	values := []float32{0.1, -3.25, 1e-7, 123456.79, math.MaxFloat32 / 8, -0.3, 81, 2.0 / 3.0}
	i := 0
	for s := 0; s < q.NumStates(); s++ {
		for a := 0; a < q.NumActions(); a++ {
			q.Set(s, Action(a), values[i%len(values)]*float32(s+1))
			i++
		}
	}

	var buf bytes.Buffer
	require.NoError(t, q.Save(&buf))
	loaded, err := Load(&buf, 6, 5, WithColumns(3))
	require.NoError(t, err)
	assert.True(t, q.Equal(loaded))
	assert.Equal(t, 3, loaded.Columns())
}

func TestZeroTableRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qtable.csv")
	require.NoError(t, NewQTable(9, 4, 3).SaveFile(path))

	loaded, err := LoadFile(path, 9, 4, WithColumns(3))
	require.NoError(t, err)
	for s := 0; s < 9; s++ {
		assert.Zero(t, loaded.HighestValue(s))
	}
}

func TestLoadSkipsHeaderAndBlankLines(t *testing.T) {
	in := "this header is never read\r\n" +
		"<0,0>;1;2;3;4\r\n" +
		"\r\n" +
		"<9,9>; 5 ;6;7;8\r\n"
	q, err := Load(strings.NewReader(in), 2, 4, WithSelection(TrueArgmax))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, q.ValuesForState(0))
	assert.Equal(t, []float32{5, 6, 7, 8}, q.ValuesForState(1))
	assert.Equal(t, TrueArgmax, q.Selection())
}

func TestLoadFormatErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		line int
	}{
		{"too few fields", ";UP;DOWN;LEFT;RIGHT\n<0,0>;1;2;3;4\n<0,1>;1;2;3\n", 3},
		{"too many fields", ";UP;DOWN;LEFT;RIGHT\n<0,0>;1;2;3;4;5\n", 2},
		{"not a number", ";UP;DOWN;LEFT;RIGHT\n<0,0>;1;x;3;4\n", 2},
		{"comma decimal", ";UP;DOWN;LEFT;RIGHT\n<0,0>;1,5;0;0;0\n", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.in), 2, 4)
			var formatErr *FormatError
			require.True(t, errors.As(err, &formatErr), "got %v", err)
			assert.Equal(t, tc.line, formatErr.Line)
			assert.Contains(t, err.Error(), "line")
		})
	}
}

func TestLoadRowCountLenientAndStrict(t *testing.T) {
	short := ";UP;DOWN;LEFT;RIGHT\n<0,0>;1;1;1;1\n"
	long := short + "<0,1>;2;2;2;2\n<0,2>;3;3;3;3\n"

	q, err := Load(strings.NewReader(short), 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0}, q.ValuesForState(1))

	q, err = Load(strings.NewReader(long), 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 2, 2, 2}, q.ValuesForState(1))

	_, err = Load(strings.NewReader(short), 2, 4, Strict())
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = Load(strings.NewReader(long), 2, 4, Strict())
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.csv"), 4, 4)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
