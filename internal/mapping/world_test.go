package mapping

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewWorldRejectsBadParams(t *testing.T) {
	bad := DefaultParams()
	bad.Resolution = 0
	if _, err := NewWorld(bad, DefaultSaliencyConfig()); err == nil {
		t.Error("zero resolution must be rejected")
	}

	badSal := DefaultSaliencyConfig()
	badSal.Alpha = 2
	if _, err := NewWorld(DefaultParams(), badSal); err == nil {
		t.Error("alpha outside [0,1] must be rejected")
	}
}

func TestSetParamsResolutionChangeResetsMap(t *testing.T) {
	params := testParams(1.0)
	w, err := NewWorld(params, DefaultSaliencyConfig())
	if err != nil {
		t.Fatal(err)
	}
	w.InsertPointCloud(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, []r3.Vec{{X: 3.5, Y: 0.5, Z: 0.5}})
	if w.NumVoxels() == 0 {
		t.Fatal("setup: expected stored voxels")
	}

	params.Resolution = 0.5
	if err := w.SetParams(params); err != nil {
		t.Fatal(err)
	}
	if w.NumVoxels() != 0 {
		t.Error("resolution change must discard the store")
	}
	if w.Resolution() != 0.5 {
		t.Errorf("resolution = %v, want 0.5", w.Resolution())
	}

	// Same-resolution updates apply in place.
	params.FilterSpeckles = true
	w.InsertPointCloud(r3.Vec{X: 0.25, Y: 0.25, Z: 0.25}, []r3.Vec{{X: 2.25, Y: 0.25, Z: 0.25}})
	before := w.NumVoxels()
	if err := w.SetParams(params); err != nil {
		t.Fatal(err)
	}
	if w.NumVoxels() != before {
		t.Error("same-resolution parameter update must keep the store")
	}
}

func TestSetSaliencyConfigPreservesEpoch(t *testing.T) {
	w, err := NewWorld(testParams(1.0), DefaultSaliencyConfig())
	if err != nil {
		t.Fatal(err)
	}
	w.InsertSaliencyCloud(r3.Vec{}, nil) // advances the epoch
	epoch := w.SaliencyConfig().Epoch
	if epoch == 0 {
		t.Fatal("setup: epoch did not advance")
	}

	cfg := DefaultSaliencyConfig()
	cfg.Alpha = 0.25
	cfg.Epoch = 999 // caller-supplied epoch is ignored
	if err := w.SetSaliencyConfig(cfg); err != nil {
		t.Fatal(err)
	}
	got := w.SaliencyConfig()
	if got.Epoch != epoch {
		t.Errorf("epoch = %d, want preserved %d", got.Epoch, epoch)
	}
	if got.Alpha != 0.25 {
		t.Errorf("alpha = %v, want 0.25", got.Alpha)
	}
}

func TestResetMap(t *testing.T) {
	w := corridorWorld(t, testParams(1.0))
	w.ResetMap()
	if w.NumVoxels() != 0 {
		t.Error("reset must drop all voxels")
	}
	if got := w.CellStatusPoint(r3.Vec{X: 5.5, Y: 0.5, Z: 0.5}); got != CellUnknown {
		t.Errorf("former wall voxel = %v, want unknown after reset", got)
	}
}

func TestInsertPointCloudWithPose(t *testing.T) {
	w, err := NewWorld(testParams(1.0), DefaultSaliencyConfig())
	if err != nil {
		t.Fatal(err)
	}
	// Rotate 90 degrees about z and translate: sensor x becomes world y.
	pose := [16]float64{
		0, -1, 0, 0.5,
		1, 0, 0, 0.5,
		0, 0, 1, 0.5,
		0, 0, 0, 1,
	}
	w.InsertPointCloudWithPose([]r3.Vec{{X: 4, Y: 0, Z: 0}}, pose)

	if got := w.CellStatusPoint(r3.Vec{X: 0.5, Y: 4.5, Z: 0.5}); got != CellOccupied {
		t.Errorf("transformed endpoint = %v, want occupied", got)
	}
	if got := w.CellStatusPoint(r3.Vec{X: 0.5, Y: 2.5, Z: 0.5}); got != CellFree {
		t.Errorf("transformed ray voxel = %v, want free", got)
	}
}

func TestApplyPose(t *testing.T) {
	identity := [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	p := r3.Vec{X: 1, Y: 2, Z: 3}
	if got := ApplyPose(p, identity); got != p {
		t.Errorf("identity pose moved the point: %v", got)
	}

	translate := identity
	translate[3], translate[7], translate[11] = 10, 20, 30
	want := r3.Vec{X: 11, Y: 22, Z: 33}
	if got := ApplyPose(p, translate); got != want {
		t.Errorf("translated point = %v, want %v", got, want)
	}
}

func TestFilterInvalid(t *testing.T) {
	points := []r3.Vec{
		{X: 1, Y: 2, Z: 3},
		{X: math.NaN(), Y: 0, Z: 0},
		{X: 0, Y: math.Inf(1), Z: 0},
		{X: 4, Y: 5, Z: 6},
	}
	got := FilterInvalid(points)
	if len(got) != 2 {
		t.Fatalf("kept %d points, want 2", len(got))
	}
	if got[0] != (r3.Vec{X: 1, Y: 2, Z: 3}) || got[1] != (r3.Vec{X: 4, Y: 5, Z: 6}) {
		t.Errorf("kept wrong points: %v", got)
	}
}

func TestExploredFraction(t *testing.T) {
	params := testParams(1.0)
	params.EvalMin = r3.Vec{X: 0, Y: 0, Z: 0}
	params.EvalMax = r3.Vec{X: 10, Y: 1, Z: 1}
	w, err := NewWorld(params, DefaultSaliencyConfig())
	if err != nil {
		t.Fatal(err)
	}
	if w.ExploredFraction() != 0 {
		t.Error("fresh map must report zero explored fraction")
	}

	// A ray along the evaluation corridor makes 5 of its 10 voxels known.
	w.InsertPointCloud(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, []r3.Vec{{X: 4.5, Y: 0.5, Z: 0.5}})
	if got := w.ExploredFraction(); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("explored fraction = %v, want 0.5", got)
	}
}

func TestExplorationRate(t *testing.T) {
	params := testParams(1.0)
	params.EvalMin = r3.Vec{X: 0, Y: 0, Z: 0}
	params.EvalMax = r3.Vec{X: 10, Y: 1, Z: 1}
	w, err := NewWorld(params, DefaultSaliencyConfig())
	if err != nil {
		t.Fatal(err)
	}
	clock := time.Unix(1000, 0)
	w.now = func() time.Time { return clock }

	w.ExplorationRate() // establishes the baseline sample

	w.InsertPointCloud(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, []r3.Vec{{X: 4.5, Y: 0.5, Z: 0.5}})
	clock = clock.Add(2 * time.Second)
	fraction, rate, elapsed := w.ExplorationRate()

	if math.Abs(fraction-0.5) > 1e-9 {
		t.Errorf("fraction = %v, want 0.5", fraction)
	}
	if math.Abs(rate-0.25) > 1e-9 {
		t.Errorf("rate = %v, want 0.25 per second", rate)
	}
	if math.Abs(elapsed-2) > 1e-9 {
		t.Errorf("elapsed = %v, want 2", elapsed)
	}
}
