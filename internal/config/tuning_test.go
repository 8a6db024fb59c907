package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	if cfg.Resolution == nil || *cfg.Resolution != 0.15 {
		t.Errorf("Expected Resolution 0.15, got %v", cfg.Resolution)
	}
	if cfg.TreatUnknownAsOccupied == nil || *cfg.TreatUnknownAsOccupied != true {
		t.Errorf("Expected TreatUnknownAsOccupied true, got %v", cfg.TreatUnknownAsOccupied)
	}
	if cfg.SaliencyBeta == nil || *cfg.SaliencyBeta != -0.01 {
		t.Errorf("Expected SaliencyBeta -0.01, got %v", cfg.SaliencyBeta)
	}
	if cfg.SnapshotInterval == nil || *cfg.SnapshotInterval != "60s" {
		t.Errorf("Expected SnapshotInterval '60s', got %v", cfg.SnapshotInterval)
	}

	if cfg.GetResolution() != 0.15 {
		t.Errorf("GetResolution() = %f, want 0.15", cfg.GetResolution())
	}
	if cfg.GetSaliencyThreshold() != 128 {
		t.Errorf("GetSaliencyThreshold() = %f, want 128", cfg.GetSaliencyThreshold())
	}
	if cfg.GetSnapshotInterval() != 60*time.Second {
		t.Errorf("GetSnapshotInterval() = %v, want 60s", cfg.GetSnapshotInterval())
	}
	x, y, z := cfg.GetRobotSize()
	if x != 0.5 || y != 0.5 || z != 0.3 {
		t.Errorf("GetRobotSize() = (%f, %f, %f), want (0.5, 0.5, 0.3)", x, y, z)
	}
	minX, minY, minZ := cfg.GetEvalMin()
	maxX, maxY, maxZ := cfg.GetEvalMax()
	if minX != -10 || minY != -10 || minZ != 0 || maxX != 10 || maxY != 10 || maxZ != 3 {
		t.Errorf("eval volume = (%f, %f, %f)..(%f, %f, %f), want (-10, -10, 0)..(10, 10, 3)",
			minX, minY, minZ, maxX, maxY, maxZ)
	}
}

func TestEmptyConfigDefaults(t *testing.T) {
	// An empty config answers every getter with the documented default.
	cfg := EmptyTuningConfig()

	if cfg.GetProbabilityHit() != 0.65 {
		t.Errorf("GetProbabilityHit() = %f, want 0.65", cfg.GetProbabilityHit())
	}
	if cfg.GetSensorMaxRange() != 5.0 {
		t.Errorf("GetSensorMaxRange() = %f, want 5.0", cfg.GetSensorMaxRange())
	}
	if !cfg.GetTreatUnknownAsOccupied() {
		t.Error("GetTreatUnknownAsOccupied() = false, want true")
	}
	if cfg.GetFilterSpeckles() {
		t.Error("GetFilterSpeckles() = true, want false")
	}
	if cfg.GetProjectionLimit() != 7.0 {
		t.Errorf("GetProjectionLimit() = %f, want 7.0", cfg.GetProjectionLimit())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()

	// Partial config: unspecified fields fall back to defaults.
	path := filepath.Join(tmpDir, "tuning.json")
	content := `{"resolution": 0.05, "saliency_alpha": 0.5, "filter_speckles": true}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}
	if cfg.GetResolution() != 0.05 {
		t.Errorf("GetResolution() = %f, want 0.05", cfg.GetResolution())
	}
	if cfg.GetSaliencyAlpha() != 0.5 {
		t.Errorf("GetSaliencyAlpha() = %f, want 0.5", cfg.GetSaliencyAlpha())
	}
	if !cfg.GetFilterSpeckles() {
		t.Error("GetFilterSpeckles() = false, want true")
	}
	if cfg.GetProbabilityHit() != 0.65 {
		t.Errorf("unset field GetProbabilityHit() = %f, want default 0.65", cfg.GetProbabilityHit())
	}
}

func TestLoadTuningConfigRejectsBadValues(t *testing.T) {
	tmpDir := t.TempDir()

	cases := []struct {
		name    string
		content string
	}{
		{"bad resolution", `{"resolution": -1}`},
		{"bad alpha", `{"saliency_alpha": 2.0}`},
		{"bad threshold", `{"saliency_threshold": 300}`},
		{"bad interval", `{"snapshot_interval": "soon"}`},
		{"empty eval volume", `{"eval_min_y": 5, "eval_max_y": 5}`},
		{"inverted visualize clip", `{"visualize_min_z": 2, "visualize_max_z": 1}`},
		{"malformed json", `{"resolution": `},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, "bad.json")
			if err := os.WriteFile(path, []byte(tc.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadTuningConfig(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadTuningConfigRejectsNonJSONExtension(t *testing.T) {
	if _, err := LoadTuningConfig("tuning.yaml"); err == nil {
		t.Error("expected extension error")
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	// The shipped defaults and DefaultTuningConfig must agree.
	want := DefaultTuningConfig()
	if cfg.GetResolution() != want.GetResolution() {
		t.Errorf("defaults file resolution %f != %f", cfg.GetResolution(), want.GetResolution())
	}
	if cfg.GetSaliencyBeta() != want.GetSaliencyBeta() {
		t.Errorf("defaults file saliency_beta %f != %f", cfg.GetSaliencyBeta(), want.GetSaliencyBeta())
	}
	if cfg.GetSnapshotInterval() != want.GetSnapshotInterval() {
		t.Errorf("defaults file snapshot_interval %v != %v", cfg.GetSnapshotInterval(), want.GetSnapshotInterval())
	}
}
