package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/saliency.world/internal/mapping"
)

// cloudRow is one parsed line of a cloud log: sensor origin, world-frame
// return, and an optional saliency intensity (0 when the column is absent).
type cloudRow struct {
	origin    r3.Vec
	point     r3.Vec
	intensity uint8
	salient   bool
}

func parseCloudRow(record []string) (cloudRow, error) {
	var row cloudRow
	if len(record) != 6 && len(record) != 7 {
		return row, fmt.Errorf("expected 6 or 7 columns, got %d", len(record))
	}
	vals := make([]float64, len(record))
	for i, field := range record {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return row, fmt.Errorf("column %d: %w", i+1, err)
		}
		vals[i] = v
	}
	row.origin = r3.Vec{X: vals[0], Y: vals[1], Z: vals[2]}
	row.point = r3.Vec{X: vals[3], Y: vals[4], Z: vals[5]}
	if len(record) == 7 {
		if vals[6] < 0 || vals[6] > 255 {
			return row, fmt.Errorf("intensity %f out of range", vals[6])
		}
		row.intensity = uint8(vals[6])
		row.salient = true
	}
	return row, nil
}

// replayCloudLog streams a CSV cloud log into the map. Consecutive rows
// sharing a sensor origin form one frame; each frame is integrated as a
// point cloud, and frames carrying an intensity column are also projected
// as a saliency cloud. Returns the frame and point counts.
func replayCloudLog(world *mapping.World, path string) (frames, points int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var (
		origin   r3.Vec
		cloud    []r3.Vec
		salCloud []mapping.SaliencyPoint
		open     bool
	)
	flush := func() {
		if !open {
			return
		}
		world.InsertPointCloud(origin, mapping.FilterInvalid(cloud))
		if len(salCloud) > 0 {
			world.InsertSaliencyCloud(origin, salCloud)
		}
		frames++
		points += len(cloud)
		cloud = cloud[:0]
		salCloud = salCloud[:0]
		open = false
	}

	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return frames, points, err
		}
		line++
		row, err := parseCloudRow(record)
		if err != nil {
			return frames, points, fmt.Errorf("line %d: %w", line, err)
		}
		if open && row.origin != origin {
			flush()
		}
		if !open {
			origin = row.origin
			open = true
		}
		cloud = append(cloud, row.point)
		if row.salient {
			salCloud = append(salCloud, mapping.SaliencyPoint{Pos: row.point, Intensity: row.intensity})
		}
	}
	flush()
	return frames, points, nil
}
