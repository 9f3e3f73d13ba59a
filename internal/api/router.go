package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"qgrid/internal/engine"
	"qgrid/internal/report"
)

// PolicyServer answers greedy-action queries against a trained table. The
// table is treated as read-only; training must not run on it concurrently.
type PolicyServer struct {
	board *engine.Board
	table *engine.QTable
	log   logrus.FieldLogger
}

// PolicyResponse is returned for a single cell.
type PolicyResponse struct {
	Row     int                `json:"row"`
	Col     int                `json:"col"`
	State   int                `json:"state"`
	Action  string             `json:"action"`
	Highest float32            `json:"highest"`
	Values  map[string]float32 `json:"values"`
}

func NewPolicyServer(board *engine.Board, table *engine.QTable, log logrus.FieldLogger) *PolicyServer {
	return &PolicyServer{board: board, table: table, log: log}
}

// Handler builds the gin engine with every route under /api/v1.
func (s *PolicyServer) Handler() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", s.health)
		v1.GET("/policy/:row/:col", s.policy)
		v1.GET("/table", s.dump)
		v1.GET("/summary", s.summary)
	}
	return router
}

// Run serves the API on addr until the listener fails.
func (s *PolicyServer) Run(addr string) error {
	s.log.WithFields(logrus.Fields{"addr": addr, "states": s.table.NumStates()}).Info("serving policy")
	return s.Handler().Run(addr)
}

func (s *PolicyServer) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"states":  s.table.NumStates(),
		"actions": s.table.NumActions(),
	})
}

func (s *PolicyServer) policy(ctx *gin.Context) {
	row, errRow := strconv.Atoi(ctx.Param("row"))
	col, errCol := strconv.Atoi(ctx.Param("col"))
	if errRow != nil || errCol != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "row and col must be integers"})
		return
	}
	if row < 0 || row >= s.board.Rows() || col < 0 || col >= s.board.Cols() {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "cell outside the board"})
		return
	}
	state := s.board.StateIndex(row, col)
	values := make(map[string]float32, s.table.NumActions())
	for a, v := range s.table.ValuesForState(state) {
		values[engine.Action(a).String()] = v
	}
	ctx.JSON(http.StatusOK, PolicyResponse{
		Row:     row,
		Col:     col,
		State:   state,
		Action:  s.table.BestAction(state).String(),
		Highest: s.table.HighestValue(state),
		Values:  values,
	})
}

// TableResponse is the JSON form of the whole table, one row per state.
type TableResponse struct {
	Columns int         `json:"columns"`
	Actions []string    `json:"actions"`
	Values  [][]float64 `json:"values"`
}

func (s *PolicyServer) dump(ctx *gin.Context) {
	switch ctx.DefaultQuery("format", "csv") {
	case "csv":
	case "json":
		s.dumpJSON(ctx)
		return
	default:
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or json"})
		return
	}
	var buf bytes.Buffer
	if err := s.table.Save(&buf); err != nil {
		s.log.WithError(err).Error("encode table")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "could not encode table"})
		return
	}
	ctx.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *PolicyServer) summary(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, report.Summarize(s.table))
}

func (s *PolicyServer) dumpJSON(ctx *gin.Context) {
	resp := TableResponse{Columns: s.table.Columns(), Values: [][]float64{}}
	for _, a := range engine.Actions(s.table.NumActions()) {
		resp.Actions = append(resp.Actions, a.String())
	}
	if m := report.ValueMatrix(s.table); m != nil {
		rows, _ := m.Dims()
		for r := 0; r < rows; r++ {
			resp.Values = append(resp.Values, append([]float64(nil), m.RawRowView(r)...))
		}
	}
	ctx.JSON(http.StatusOK, resp)
}
