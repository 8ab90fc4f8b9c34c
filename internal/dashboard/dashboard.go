// Package dashboard renders a live terminal view of a swarm run.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/swarmfire/internal/metrics"
	"github.com/torosent/swarmfire/internal/user"
)

// RunConfig holds the swarm parameters shown in the summary panel.
type RunConfig struct {
	TargetURL  string
	Users      int
	SpawnRate  float64       // 0 = all at once
	Duration   time.Duration // 0 = until interrupted
	ThinkMin   time.Duration
	ThinkMax   time.Duration
	Catalog    string
	Timeout    time.Duration
	Retries    int
	ConfigFile string
}

// AgentCounts reports how many agents are in each lifecycle state.
type AgentCounts func() map[user.State]int

const historySize = 100

// Dashboard renders a live terminal UI for swarm metrics.
type Dashboard struct {
	collector    *metrics.Collector
	agents       AgentCounts
	cfg          RunConfig
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	rpsGauge       *widgets.Gauge
	metricsPara    *widgets.Paragraph
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	agentChart     *widgets.BarChart
	routeList      *widgets.List
	errorList      *widgets.List
	latencyHistory []float64
}

// New initialises the terminal and builds the widgets. shutdownFunc is called
// when the user presses q or Ctrl-C.
func New(collector *metrics.Collector, agents AgentCounts, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		collector:      collector,
		agents:         agents,
		cfg:            cfg,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, historySize),
	}
	d.initWidgets()
	d.setupGrid()
	return d, nil
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Swarm"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.rpsGauge = widgets.NewGauge()
	d.rpsGauge.Title = "Requests Per Second"
	d.rpsGauge.BarColor = ui.ColorBlue
	d.rpsGauge.BorderStyle.Fg = ui.ColorCyan
	d.rpsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Requests"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan

	sparkline := widgets.NewSparkline()
	sparkline.Title = "Mean latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}
	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Real-time Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.agentChart = widgets.NewBarChart()
	d.agentChart.Title = "Agents by State"
	d.agentChart.Labels = stateLabels()
	d.agentChart.Data = make([]float64, len(user.States))
	d.agentChart.BarWidth = 6
	d.agentChart.BarColors = []ui.Color{ui.ColorBlue}
	d.agentChart.NumStyles = []ui.Style{ui.NewStyle(ui.ColorWhite)}
	d.agentChart.BorderStyle.Fg = ui.ColorCyan

	d.routeList = widgets.NewList()
	d.routeList.Title = "Routes"
	d.routeList.Rows = []string{"Awaiting data"}
	d.routeList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.routeList.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Failure Buckets"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)
	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.2,
			ui.NewCol(0.35, d.rpsGauge),
			ui.NewCol(0.3, d.metricsPara),
			ui.NewCol(0.35, d.agentChart),
		),
		ui.NewRow(0.26,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.4,
			ui.NewCol(0.6, d.routeList),
			ui.NewCol(0.4, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop cancels the context once the run has drained.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := d.collector.Elapsed()
	stats := d.collector.Stats(elapsed)
	var counts map[user.State]int
	if d.agents != nil {
		counts = d.agents()
	}

	if stats.Total > 0 {
		d.latencyHistory = appendHistory(d.latencyHistory, stats.MeanLatencyMs)
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Real-time Latency | Current: %.2fms | Min: %.2fms | Max: %.2fms",
			stats.MeanLatencyMs,
			stats.MinLatencyMs,
			stats.MaxLatencyMs,
		)
	}

	d.rpsGauge.Percent = gaugePercent(stats.RequestsPerSec)
	d.rpsGauge.Label = fmt.Sprintf("%.1f RPS", stats.RequestsPerSec)

	d.summaryPara.Text = fmt.Sprintf(
		"Target: %s\n%s\nElapsed: %s | Active users: %d/%d | Success Rate: %.1f%%",
		d.cfg.TargetURL,
		formatRunConfig(d.cfg),
		elapsed.Round(time.Second),
		counts[user.StateActive],
		d.cfg.Users,
		successRate(stats),
	)

	d.metricsPara.Text = fmt.Sprintf(
		"Total:      %d\nSuccessful: %d\nFailed:     %d\nSkipped:    %d\nRPS:        %.2f",
		stats.Total,
		stats.Successes,
		stats.Failures,
		stats.Skipped,
		stats.RequestsPerSec,
	)

	d.latencyPara.Text = fmt.Sprintf(
		"Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP95:  %.2fms\nP99:  %.2fms",
		stats.MinLatencyMs,
		stats.MeanLatencyMs,
		stats.P50LatencyMs,
		stats.P90LatencyMs,
		stats.P95LatencyMs,
		stats.P99LatencyMs,
	)

	d.agentChart.Data = stateData(counts)
	d.routeList.Rows = formatRouteRows(stats)
	d.errorList.Rows = formatStatusListRows(stats.RouteStatusBuckets())
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func appendHistory(history []float64, v float64) []float64 {
	history = append(history, v)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func gaugePercent(rps float64) int {
	maxRPS := 100.0
	if rps > maxRPS {
		maxRPS = rps
	}
	return int((rps / maxRPS) * 100)
}

func successRate(stats metrics.Stats) float64 {
	if stats.Total == 0 {
		return 0
	}
	return (float64(stats.Successes) / float64(stats.Total)) * 100
}

func stateLabels() []string {
	labels := make([]string, len(user.States))
	for i, s := range user.States {
		labels[i] = s.String()[:4]
	}
	return labels
}

func stateData(counts map[user.State]int) []float64 {
	data := make([]float64, len(user.States))
	for i, s := range user.States {
		data[i] = float64(counts[s])
	}
	return data
}

func formatRouteRows(stats metrics.Stats) []string {
	if len(stats.Routes) == 0 {
		return []string{"[No route data](fg:green)"}
	}
	keys := make([]string, 0, len(stats.Routes))
	for key := range stats.Routes {
		keys = append(keys, key)
	}
	sortByVolume(keys, stats.Routes)

	all := stats.Total + stats.Skipped
	rows := make([]string, 0, len(keys))
	for _, key := range keys {
		rs := stats.Routes[key]
		share := 0.0
		if all > 0 {
			share = (float64(rs.Total+rs.Skipped) / float64(all)) * 100
		}
		rows = append(rows, fmt.Sprintf("[%s](fg:cyan) | %5.1f%% | RPS %5.1f | P99 %6.1fms | Err %d | Skip %d",
			key,
			share,
			rs.RequestsPerSec,
			rs.P99LatencyMs,
			rs.Failures,
			rs.Skipped,
		))
	}
	return rows
}

func sortByVolume(keys []string, routes map[string]metrics.RouteStats) {
	volume := func(k string) int64 { return routes[k].Total + routes[k].Skipped }
	sort.Slice(keys, func(i, j int) bool {
		if volume(keys[i]) == volume(keys[j]) {
			return keys[i] < keys[j]
		}
		return volume(keys[i]) > volume(keys[j])
	})
}

func formatStatusListRows(buckets map[string]map[string]int) []string {
	rows := metrics.FlattenStatusBuckets(buckets)
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	if len(rows) > 10 {
		rows = rows[:10]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, fmt.Sprintf("[%s %s](fg:red) %d", row.Route, row.Code, row.Count))
	}
	return formatted
}

func formatRunConfig(cfg RunConfig) string {
	parts := []string{fmt.Sprintf("Users: %d", cfg.Users)}

	if cfg.SpawnRate > 0 {
		parts = append(parts, fmt.Sprintf("Spawn: %.1f/s", cfg.SpawnRate))
	} else {
		parts = append(parts, "Spawn: all at once")
	}
	if cfg.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", cfg.Duration))
	}
	if cfg.ThinkMax > 0 {
		parts = append(parts, fmt.Sprintf("Think: %s-%s", cfg.ThinkMin, cfg.ThinkMax))
	}
	if cfg.Catalog != "" {
		parts = append(parts, fmt.Sprintf("Catalog: %s", cfg.Catalog))
	}
	if cfg.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", cfg.Timeout))
	}
	if cfg.Retries > 0 {
		parts = append(parts, fmt.Sprintf("Retries: %d", cfg.Retries))
	}
	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}
	return strings.Join(parts, " | ")
}
