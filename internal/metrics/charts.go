package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const defaultChartPoints = 500

func chartLimit(r *http.Request) int {
	limit := defaultChartPoints
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 10 && v <= 10000 {
			limit = v
		}
	}
	return limit
}

// handleCongestionChart renders an HTML line chart of the congestion
// average per road over simulated time. Debugging-only endpoint; the
// data also lives under /debug/tailsql/ for ad-hoc queries.
// Query params:
//   - road_id (optional; defaults to every recorded road)
//   - max_points (optional; default 500)
func (s *Store) handleCongestionChart(w http.ResponseWriter, r *http.Request) {
	limit := chartLimit(r)

	roadIDs := []string{r.URL.Query().Get("road_id")}
	if roadIDs[0] == "" {
		all, err := s.RoadIDs()
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to list roads: %v", err), http.StatusInternalServerError)
			return
		}
		roadIDs = all
	}
	if len(roadIDs) == 0 {
		http.Error(w, "no road samples recorded yet", http.StatusNotFound)
		return
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Road congestion (vehicles, smoothed)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	first := true
	for _, roadID := range roadIDs {
		points, err := s.RoadHistory(roadID, limit)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to load history for %s: %v", roadID, err), http.StatusInternalServerError)
			return
		}
		if first {
			labels := make([]string, 0, len(points))
			for _, p := range points {
				labels = append(labels, p.SimTime.Truncate(time.Second).String())
			}
			line.SetXAxis(labels)
			first = false
		}
		data := make([]opts.LineData, 0, len(points))
		for _, p := range points {
			data = append(data, opts.LineData{Value: p.Congestion})
		}
		line.AddSeries(roadID, data)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := line.Render(w); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
	}
}

// handleSpeedChart renders an HTML line chart of fleet mean and 85th
// percentile speed over simulated time.
func (s *Store) handleSpeedChart(w http.ResponseWriter, r *http.Request) {
	limit := chartLimit(r)

	samples, err := s.RecentSamples(limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load samples: %v", err), http.StatusInternalServerError)
		return
	}
	if len(samples) == 0 {
		http.Error(w, "no samples recorded yet", http.StatusNotFound)
		return
	}
	// RecentSamples is newest first; charts read left to right.
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}

	labels := make([]string, 0, len(samples))
	mean := make([]opts.LineData, 0, len(samples))
	p85 := make([]opts.LineData, 0, len(samples))
	for _, smp := range samples {
		labels = append(labels, smp.SimTime.Truncate(time.Second).String())
		mean = append(mean, opts.LineData{Value: smp.MeanSpeed})
		p85 = append(p85, opts.LineData{Value: smp.P85Speed})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Fleet speed"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(labels)
	line.AddSeries("mean", mean)
	line.AddSeries("p85", p85)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := line.Render(w); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
	}
}
