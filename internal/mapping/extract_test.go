package mapping

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestAllBoxes(t *testing.T) {
	w := corridorWorld(t, testParams(1.0))

	occupied := w.AllOccupiedBoxes()
	if len(occupied) != 1 {
		t.Fatalf("occupied boxes = %d, want 1", len(occupied))
	}
	want := r3.Vec{X: 5.5, Y: 0.5, Z: 0.5}
	if occupied[0].Center != want {
		t.Errorf("occupied box centre = %v, want %v", occupied[0].Center, want)
	}
	if occupied[0].Size != 1.0 {
		t.Errorf("occupied box size = %v, want 1.0", occupied[0].Size)
	}

	free := w.AllFreeBoxes()
	if len(free) != 5 {
		t.Errorf("free boxes = %d, want 5", len(free))
	}
}

func TestOccupiedPointCloud(t *testing.T) {
	w := corridorWorld(t, testParams(1.0))

	cloud := w.OccupiedPointCloud()
	if len(cloud) != 1 {
		t.Fatalf("cloud size = %d, want 1", len(cloud))
	}
	if cloud[0] != (r3.Vec{X: 5.5, Y: 0.5, Z: 0.5}) {
		t.Errorf("cloud point = %v", cloud[0])
	}

	// A pruned 2x2x2 occupied block still reports every fine voxel.
	w.SetOccupied(r3.Vec{X: 11, Y: 1, Z: 1}, r3.Vec{X: 1.99, Y: 1.99, Z: 1.99})
	w.Prune()
	cloud = w.OccupiedPointCloud()
	if len(cloud) != 9 {
		t.Errorf("cloud size after block = %d, want 9", len(cloud))
	}
}

func TestOccupiedPointsInBox(t *testing.T) {
	w := corridorWorld(t, testParams(1.0))

	points := w.OccupiedPointsInBox(r3.Vec{X: 5.7, Y: 0.6, Z: 0.4}, r3.Vec{X: 2, Y: 2, Z: 2})
	if len(points) != 1 {
		t.Fatalf("points in box = %d, want 1", len(points))
	}
	if points[0] != (r3.Vec{X: 5.5, Y: 0.5, Z: 0.5}) {
		t.Errorf("sampled point = %v, want the occupied voxel centre", points[0])
	}

	if pts := w.OccupiedPointsInBox(r3.Vec{X: 1.5, Y: 0.5, Z: 0.5}, r3.Vec{X: 1, Y: 1, Z: 1}); len(pts) != 0 {
		t.Errorf("free-region box returned %d points", len(pts))
	}
}

func TestMapBounds(t *testing.T) {
	params := testParams(1.0)
	w, err := NewWorld(params, DefaultSaliencyConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, ok := w.MapBounds(); ok {
		t.Error("empty map must report no bounds")
	}
	if c := w.MapCenter(); c != (r3.Vec{}) {
		t.Errorf("empty map centre = %v, want origin", c)
	}

	w.SetOccupied(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, oneVoxel)
	w.SetOccupied(r3.Vec{X: 4.5, Y: 2.5, Z: 0.5}, oneVoxel)

	min, max, ok := w.MapBounds()
	if !ok {
		t.Fatal("bounds missing for populated map")
	}
	if min != (r3.Vec{X: 0, Y: 0, Z: 0}) || max != (r3.Vec{X: 5, Y: 3, Z: 1}) {
		t.Errorf("bounds = %v..%v", min, max)
	}
	if size := w.MapSize(); size != (r3.Vec{X: 5, Y: 3, Z: 1}) {
		t.Errorf("size = %v", size)
	}
	if c := w.MapCenter(); c != (r3.Vec{X: 2.5, Y: 1.5, Z: 0.5}) {
		t.Errorf("centre = %v", c)
	}
}

func TestSetFreeAndSetOccupied(t *testing.T) {
	w, err := NewWorld(testParams(1.0), DefaultSaliencyConfig())
	if err != nil {
		t.Fatal(err)
	}

	w.SetOccupied(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, r3.Vec{X: 3, Y: 1, Z: 1})
	for x := -0.5; x <= 1.5; x++ {
		if got := w.CellStatusPoint(r3.Vec{X: x, Y: 0.5, Z: 0.5}); got != CellOccupied {
			t.Errorf("voxel at x=%v is %v, want occupied", x, got)
		}
	}

	// Carving the same region free overrides the stored clamp.
	w.SetFree(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, r3.Vec{X: 3, Y: 1, Z: 1}, r3.Vec{})
	for x := -0.5; x <= 1.5; x++ {
		if got := w.CellStatusPoint(r3.Vec{X: x, Y: 0.5, Z: 0.5}); got != CellFree {
			t.Errorf("voxel at x=%v is %v, want free", x, got)
		}
	}

	// The offset shifts the carved region.
	w.SetOccupied(r3.Vec{X: 10.5, Y: 0.5, Z: 0.5}, r3.Vec{X: 1, Y: 1, Z: 1})
	w.SetFree(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{X: 10})
	if got := w.CellStatusPoint(r3.Vec{X: 10.5, Y: 0.5, Z: 0.5}); got != CellFree {
		t.Errorf("offset carve left voxel %v, want free", got)
	}
}

func TestClearBox(t *testing.T) {
	w, err := NewWorld(testParams(1.0), DefaultSaliencyConfig())
	if err != nil {
		t.Fatal(err)
	}
	w.SetOccupied(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, oneVoxel)
	before := w.NumVoxels()

	w.ClearBox(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, r3.Vec{X: 5, Y: 5, Z: 5})

	if got := w.CellStatusPoint(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}); got != CellFree {
		t.Errorf("cleared voxel = %v, want free", got)
	}
	// Clearing never creates voxels: unknown stays unknown.
	if got := w.CellStatusPoint(r3.Vec{X: 1.5, Y: 1.5, Z: 1.5}); got != CellUnknown {
		t.Errorf("unseen voxel in cleared box = %v, want unknown", got)
	}
	if w.NumVoxels() != before {
		t.Errorf("voxel count changed %d -> %d", before, w.NumVoxels())
	}
}
