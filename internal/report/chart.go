package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"qgrid/internal/engine"
)

// Chart records sampled progress events and renders them as an HTML page of
// line charts.
type Chart struct {
	title    string
	every    int
	episodes []string
	maxQ     []opts.LineData
	totalQ   []opts.LineData
	epsilon  []opts.LineData
}

// NewChart samples every n-th episode, plus the last one.
func NewChart(title string, every int) *Chart {
	if every <= 0 {
		every = 1
	}
	return &Chart{title: title, every: every}
}

func (c *Chart) Episode(p engine.Progress) {
	if p.Episode%c.every != 0 && p.Fraction < 1 {
		return
	}
	c.episodes = append(c.episodes, strconv.Itoa(p.Episode))
	c.maxQ = append(c.maxQ, opts.LineData{Value: p.MaxQ})
	c.totalQ = append(c.totalQ, opts.LineData{Value: p.TotalQ})
	c.epsilon = append(c.epsilon, opts.LineData{Value: p.Epsilon})
}

// Len returns the number of sampled episodes.
func (c *Chart) Len() int { return len(c.episodes) }

func (c *Chart) line(title, series string, data []opts.LineData) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithInitializationOpts(opts.Initialization{Theme: "shine"}),
	)
	line.SetXAxis(c.episodes).AddSeries(series, data)
	return line
}

func (c *Chart) Render(w io.Writer) error {
	page := components.NewPage()
	page.PageTitle = c.title
	page.AddCharts(
		c.line(c.title+": max Q", "maxQ", c.maxQ),
		c.line(c.title+": total Q", "totalQ", c.totalQ),
		c.line(c.title+": epsilon", "epsilon", c.epsilon),
	)
	return page.Render(w)
}

// RenderFile writes the page to path, creating parent directories.
func (c *Chart) RenderFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create chart dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart: %w", err)
	}
	if err := c.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("render chart: %w", err)
	}
	return f.Close()
}
