package main

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/saliency.world/internal/config"
	"github.com/banshee-data/saliency.world/internal/mapping"
)

func TestWorldParamsCarriesEvalVolume(t *testing.T) {
	params, _ := worldParams(config.DefaultTuningConfig())

	def := mapping.DefaultParams()
	if params.EvalMin != def.EvalMin || params.EvalMax != def.EvalMax {
		t.Errorf("eval volume = [%v, %v], want [%v, %v]",
			params.EvalMin, params.EvalMax, def.EvalMin, def.EvalMax)
	}

	world, err := mapping.NewWorld(params, mapping.DefaultSaliencyConfig())
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	world.InsertPointCloud(r3.Vec{Z: 1}, []r3.Vec{{X: 3, Z: 1}})
	if got := world.ExploredFraction(); got <= 0 {
		t.Errorf("explored fraction after insert = %f, want > 0", got)
	}
}

func TestWorldParamsCarriesVisualizeClip(t *testing.T) {
	cfg := config.EmptyTuningConfig()
	lo, hi := 0.2, 1.8
	cfg.VisualizeMinZ = &lo
	cfg.VisualizeMaxZ = &hi

	params, _ := worldParams(cfg)
	if params.VisualizeMinZ != lo || params.VisualizeMaxZ != hi {
		t.Errorf("visualize clip = [%f, %f], want [%f, %f]",
			params.VisualizeMinZ, params.VisualizeMaxZ, lo, hi)
	}
}
