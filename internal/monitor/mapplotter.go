// Package monitor renders debug visualizations of the occupancy map:
// horizontal occupancy slices as heatmaps and exploration progress over
// time. Plots are written as PNG files after a run.
package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/saliency.world/internal/mapdb"
	"github.com/banshee-data/saliency.world/internal/mapping"
)

// maxSliceCells caps the heatmap grid per axis so a huge map cannot produce
// an unreasonable image.
const maxSliceCells = 512

// occupancySlice is a horizontal cut through the map at a fixed z,
// implementing plotter.GridXYZ. Unknown cells carry probability 0.5 so they
// render between free (0) and occupied (1).
type occupancySlice struct {
	minX, minY float64
	res        float64
	cols, rows int
	probs      []float64
}

func (s *occupancySlice) Dims() (c, r int)   { return s.cols, s.rows }
func (s *occupancySlice) X(c int) float64    { return s.minX + (float64(c)+0.5)*s.res }
func (s *occupancySlice) Y(r int) float64    { return s.minY + (float64(r)+0.5)*s.res }
func (s *occupancySlice) Z(c, r int) float64 { return s.probs[r*s.cols+c] }

// sampleSlice probes the world on a resolution grid across its bounds at
// height z.
func sampleSlice(w *mapping.World, z float64) (*occupancySlice, error) {
	min, max, ok := w.MapBounds()
	if !ok {
		return nil, fmt.Errorf("map is empty")
	}
	res := w.Resolution()
	cols := int((max.X - min.X) / res)
	rows := int((max.Y - min.Y) / res)
	if cols < 1 || rows < 1 {
		return nil, fmt.Errorf("map too small to slice")
	}
	if cols > maxSliceCells {
		cols = maxSliceCells
	}
	if rows > maxSliceCells {
		rows = maxSliceCells
	}

	s := &occupancySlice{
		minX:  min.X,
		minY:  min.Y,
		res:   res,
		cols:  cols,
		rows:  rows,
		probs: make([]float64, cols*rows),
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			status, p := w.CellProbabilityPoint(r3.Vec{X: s.X(c), Y: s.Y(r), Z: z})
			if status == mapping.CellUnknown {
				p = 0.5
			}
			s.probs[r*cols+c] = p
		}
	}
	return s, nil
}

// MapPlotter writes map visualizations into an output directory.
type MapPlotter struct {
	outputDir string
}

// NewMapPlotter creates the output directory if needed.
func NewMapPlotter(outputDir string) (*MapPlotter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &MapPlotter{outputDir: outputDir}, nil
}

// OutputDir returns the directory plots are written to.
func (mp *MapPlotter) OutputDir() string { return mp.outputDir }

// RenderOccupancySlice writes a heatmap of the occupancy probabilities at
// height z and returns the file path. The height is clamped into the map's
// visualization z clip.
func (mp *MapPlotter) RenderOccupancySlice(w *mapping.World, z float64) (string, error) {
	params := w.Params()
	if params.VisualizeMinZ < params.VisualizeMaxZ {
		if z < params.VisualizeMinZ {
			z = params.VisualizeMinZ
		}
		if z > params.VisualizeMaxZ {
			z = params.VisualizeMaxZ
		}
	}
	slice, err := sampleSlice(w, z)
	if err != nil {
		return "", err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Occupancy at z=%.2fm", z)
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	heat := plotter.NewHeatMap(slice, palette.Heat(16, 1))
	heat.Min = 0
	heat.Max = 1
	p.Add(heat)

	file := filepath.Join(mp.outputDir, fmt.Sprintf("slice_z%+.2f.png", z))
	if err := p.Save(8*vg.Inch, 8*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save slice plot: %w", err)
	}
	return file, nil
}

// RenderExploration writes a line plot of the explored fraction over time
// from the recorded samples (newest first, as mapdb returns them) and
// returns the file path.
func (mp *MapPlotter) RenderExploration(samples []mapdb.ExplorationSample) (string, error) {
	if len(samples) == 0 {
		return "", fmt.Errorf("no exploration samples")
	}

	p := plot.New()
	p.Title.Text = "Exploration Progress"
	p.X.Label.Text = "Elapsed (s)"
	p.Y.Label.Text = "Explored Fraction"
	p.Y.Min, p.Y.Max = 0, 1

	pts := make(plotter.XYs, 0, len(samples))
	for i := len(samples) - 1; i >= 0; i-- {
		s := samples[i]
		pts = append(pts, plotter.XY{X: s.ElapsedSeconds, Y: s.ExploredFraction})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", err
	}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("explored", line)
	p.Legend.Top = true

	file := filepath.Join(mp.outputDir, "exploration.png")
	if err := p.Save(10*vg.Inch, 5*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save exploration plot: %w", err)
	}
	return file, nil
}

// RenderProjection writes a scatter plot of the latest saliency projection
// endpoints in the xy plane and returns the file path. The first endpoint
// is the sensor origin.
func (mp *MapPlotter) RenderProjection(w *mapping.World) (string, error) {
	endpoints := w.LastProjection()
	if len(endpoints) == 0 {
		return "", fmt.Errorf("no saliency projection recorded")
	}

	p := plot.New()
	p.Title.Text = "Saliency Projection"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	pts := make(plotter.XYs, 0, len(endpoints))
	for _, e := range endpoints {
		pts = append(pts, plotter.XY{X: e.X, Y: e.Y})
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return "", err
	}
	p.Add(scatter)

	file := filepath.Join(mp.outputDir, "projection.png")
	if err := p.Save(8*vg.Inch, 8*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save projection plot: %w", err)
	}
	return file, nil
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir builds a timestamped output directory for plots.
// For replayed logs: plots/<log_basename>/<timestamp>
// For live data: plots/live_<timestamp>
func MakePlotOutputDir(baseDir, logFile string) string {
	ts := FormatTimestamp(time.Now())
	if logFile != "" {
		base := filepath.Base(logFile)
		ext := filepath.Ext(base)
		name := base[:len(base)-len(ext)]
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "live_"+ts)
}
