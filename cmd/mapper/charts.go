package main

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleOccupancyChart renders a quick top-down scatter (HTML) of the
// occupied point cloud using go-echarts. This is a debugging-only endpoint
// (no auth) to eyeball the map without an external viewer. Points are
// coloured by height.
func (s *Server) handleOccupancyChart(w http.ResponseWriter, r *http.Request) {
	points := s.world.OccupiedPointCloud()
	if len(points) == 0 {
		http.Error(w, "map is empty", http.StatusNotFound)
		return
	}

	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}
	stride := 1
	if len(points) > maxPoints {
		stride = int(math.Ceil(float64(len(points)) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, len(points)/stride+1)
	maxAbs := 0.0
	minZ, maxZ := math.Inf(1), math.Inf(-1)
	for i := 0; i < len(points); i += stride {
		p := points[i]
		if math.Abs(p.X) > maxAbs {
			maxAbs = math.Abs(p.X)
		}
		if math.Abs(p.Y) > maxAbs {
			maxAbs = math.Abs(p.Y)
		}
		if p.Z < minZ {
			minZ = p.Z
		}
		if p.Z > maxZ {
			maxZ = p.Z
		}
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, p.Z}})
	}

	// Add a small padding so points at the edges are visible
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	if maxZ <= minZ {
		maxZ = minZ + 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Occupancy Map (Top Down)", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Occupied Voxels", Subtitle: fmt.Sprintf("points=%d stride=%d res=%.2fm", len(data), stride, s.world.Resolution())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minZ),
			Max:        float32(maxZ),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#3e4989", "#26828e", "#35b779", "#b5de2b", "#fde725"}},
		}),
	)
	scatter.AddSeries("occupied", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleExplorationChart renders recorded exploration progress as a line
// chart over sample time.
func (s *Server) handleExplorationChart(w http.ResponseWriter, r *http.Request) {
	samples, err := s.db.RecentExplorationSamples(1000)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get samples: %v", err), http.StatusInternalServerError)
		return
	}
	if len(samples) == 0 {
		http.Error(w, "no exploration samples recorded", http.StatusNotFound)
		return
	}

	// Samples come back newest first.
	x := make([]string, len(samples))
	fraction := make([]opts.LineData, len(samples))
	rate := make([]opts.LineData, len(samples))
	for i, sm := range samples {
		j := len(samples) - 1 - i
		x[j] = sm.CreatedAt.Format(time.TimeOnly)
		fraction[j] = opts.LineData{Value: sm.ExploredFraction}
		rate[j] = opts.LineData{Value: sm.ExplorationRate}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Exploration Progress", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Exploration Progress", Subtitle: fmt.Sprintf("samples=%d", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).
		AddSeries("explored fraction", fraction).
		AddSeries("exploration rate", rate)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
