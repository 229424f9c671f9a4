package monitor

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/banshee-data/skyfollow/internal/tracking"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// stateLevel maps a state onto a step-chart level, most certain highest.
func stateLevel(s tracking.TrackState) int {
	switch s {
	case tracking.StateIDMatch, tracking.StateAppearanceMatch:
		return 4
	case tracking.StateSpatialMatch:
		return 3
	case tracking.StatePredicted:
		return 2
	case tracking.StateLost:
		return 1
	default:
		return 0
	}
}

// handleChart renders recent confidence and state as an HTML page.
// Query params:
//   - limit (optional; default 900)
func (ws *WebServer) handleChart(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, DefaultHistory)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	samples := ws.recorder.History(limit)
	if len(samples) == 0 {
		writeJSONError(w, http.StatusNotFound, "no frames recorded yet")
		return
	}

	x := make([]int64, 0, len(samples))
	conf := make([]opts.LineData, 0, len(samples))
	state := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		x = append(x, s.FrameIndex)
		conf = append(conf, opts.LineData{Value: s.Confidence})
		state = append(state, opts.LineData{Value: stateLevel(s.State)})
	}

	info := ws.recorder.Info()
	confChart := charts.NewLine()
	confChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tracking", Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Target confidence", Subtitle: fmt.Sprintf("stable=%d state=%s frames=%d", info.StableTrackID, info.State, len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "confidence"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	confChart.SetXAxis(x).AddSeries("confidence", conf, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	stateChart := charts.NewLine()
	stateChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "240px"}),
		charts.WithTitleOpts(opts.Title{Title: "State", Subtitle: "0 idle, 1 lost, 2 predicted, 3 spatial, 4 id"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 4}),
	)
	stateChart.SetXAxis(x).AddSeries("state", state, charts.WithLineChartOpts(opts.LineChart{Step: "end", ShowSymbol: opts.Bool(false)}))

	page := components.NewPage()
	page.AddCharts(confChart, stateChart)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
