package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/saliency.world/internal/config"
	"github.com/banshee-data/saliency.world/internal/mapdb"
	"github.com/banshee-data/saliency.world/internal/mapping"
)

func testServer(t *testing.T) (*Server, *mapping.World) {
	t.Helper()
	params, sal := worldParams(config.DefaultTuningConfig())
	world, err := mapping.NewWorld(params, sal)
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	db, err := mapdb.NewMapDB(filepath.Join(t.TempDir(), "map.db"))
	if err != nil {
		t.Fatalf("NewMapDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewServer(world, db), world
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status": "ok"`) {
		t.Errorf("body missing status ok: %s", rec.Body.String())
	}
}

func TestInsertThenCellQuery(t *testing.T) {
	s, _ := testServer(t)
	mux := s.ServeMux()

	body, _ := json.Marshal(insertRequest{
		Origin: vec3{0, 0, 1},
		Points: []vec3{{3, 0, 1}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/map/insert", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("insert status = %d: %s", rec.Code, rec.Body.String())
	}
	var ins struct {
		Inserted int `json:"inserted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ins); err != nil {
		t.Fatalf("decode insert response: %v", err)
	}
	if ins.Inserted != 1 {
		t.Errorf("inserted = %d, want 1", ins.Inserted)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/map/cell?x=3&y=0&z=1", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cell status = %d: %s", rec.Code, rec.Body.String())
	}
	var cell struct {
		Status      string  `json:"status"`
		Probability float64 `json:"probability"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &cell); err != nil {
		t.Fatalf("decode cell response: %v", err)
	}
	if cell.Status != "occupied" {
		t.Errorf("status = %q, want occupied", cell.Status)
	}
	if cell.Probability <= 0.5 {
		t.Errorf("probability = %f, want > 0.5", cell.Probability)
	}
}

func TestCellQueryRejectsBadInput(t *testing.T) {
	s, _ := testServer(t)
	mux := s.ServeMux()

	req := httptest.NewRequest(http.MethodGet, "/api/map/cell?x=abc&y=0&z=0", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad input status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/map/cell?x=1&y=0&z=0", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method status = %d, want 405", rec.Code)
	}
}

func TestCollisionEndpoint(t *testing.T) {
	s, w := testServer(t)
	mux := s.ServeMux()

	// Free corridor with a wall at the far end.
	w.InsertPointCloud(r3.Vec{Z: 1}, []r3.Vec{{X: 3, Z: 1}})

	body, _ := json.Marshal(collisionRequest{
		Positions: []vec3{{1, 0, 1}, {2, 0, 1}, {3, 0, 1}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/map/collision", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Collision bool `json:"collision"`
		Index     int  `json:"index"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Collision {
		t.Fatal("expected a collision on the wall voxel")
	}
	if resp.Index != 2 {
		t.Errorf("index = %d, want 2", resp.Index)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	s, w := testServer(t)
	mux := s.ServeMux()

	w.InsertPointCloud(r3.Vec{Z: 1}, []r3.Vec{{X: 2, Z: 1}})

	req := httptest.NewRequest(http.MethodPost, "/api/map/snapshot?label=test", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d: %s", rec.Code, rec.Body.String())
	}
	var saved struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("decode save response: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected a snapshot id")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/map/snapshot", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", rec.Code, rec.Body.String())
	}
	var listed struct {
		Snapshots []mapdb.SnapshotMeta `json:"snapshots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listed.Snapshots) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(listed.Snapshots))
	}
	if listed.Snapshots[0].ID != saved.ID {
		t.Errorf("listed id = %q, want %q", listed.Snapshots[0].ID, saved.ID)
	}
}

func TestParamsEndpoint(t *testing.T) {
	s, w := testServer(t)
	mux := s.ServeMux()

	req := httptest.NewRequest(http.MethodGet, "/api/map/params", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d: %s", rec.Code, rec.Body.String())
	}

	body := []byte(`{"resolution": 0.5}`)
	req = httptest.NewRequest(http.MethodPost, "/api/map/params", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("post status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := w.Resolution(); got != 0.5 {
		t.Errorf("resolution = %f, want 0.5", got)
	}

	body = []byte(`{"resolution": -1}`)
	req = httptest.NewRequest(http.MethodPost, "/api/map/params", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid tuning status = %d, want 400", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s, w := testServer(t)
	mux := s.ServeMux()

	w.InsertPointCloud(r3.Vec{Z: 1}, []r3.Vec{{X: 2, Z: 1}})

	req := httptest.NewRequest(http.MethodGet, "/api/map/stats", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var stats struct {
		Voxels           int     `json:"voxels"`
		Resolution       float64 `json:"resolution"`
		ExploredFraction float64 `json:"explored_fraction"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.Voxels == 0 {
		t.Error("expected a non-empty map")
	}
	if stats.Resolution != 0.15 {
		t.Errorf("resolution = %f, want 0.15", stats.Resolution)
	}
	// The default evaluation volume covers the inserted ray, so the insert
	// must register as explored space.
	if stats.ExploredFraction <= 0 {
		t.Errorf("explored_fraction = %f, want > 0", stats.ExploredFraction)
	}
}
