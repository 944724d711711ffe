package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/cartonguide/internal/httputil"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// AttachDebugRoutes mounts the cycle chart on the tsweb debug index.
func (s *Server) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("cycles", "Cycle latency, hole counts and publishes", http.HandlerFunc(s.handleCycleChart))
}

// handleCycleChart renders recent cycle latency and hole counts with
// go-echarts. Published cycles are marked on a separate series.
func (s *Server) handleCycleChart(w http.ResponseWriter, r *http.Request) {
	recent := s.stats.Recent()

	x := make([]string, len(recent))
	latency := make([]opts.LineData, len(recent))
	holes := make([]opts.BarData, len(recent))
	published := make([]opts.LineData, len(recent))
	for i, c := range recent {
		x[i] = c.Started.Format("15:04:05.000")
		latency[i] = opts.LineData{Value: float64(c.Duration) / float64(time.Millisecond)}
		holes[i] = opts.BarData{Value: c.Holes}
		if c.Published {
			published[i] = opts.LineData{Value: 1}
		} else {
			published[i] = opts.LineData{Value: 0}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Cycle latency (ms)", Subtitle: fmt.Sprintf("%d cycles", len(recent))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).
		AddSeries("latency", latency).
		AddSeries("published", published)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Accepted holes per cycle"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("holes", holes)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(line, bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "render error: %v", err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
