package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/saliency.world/internal/config"
	"github.com/banshee-data/saliency.world/internal/mapdb"
	"github.com/banshee-data/saliency.world/internal/mapping"
	"github.com/banshee-data/saliency.world/internal/version"
)

// Server exposes the occupancy map over a JSON HTTP API.
type Server struct {
	world *mapping.World
	db    *mapdb.MapDB
}

func NewServer(world *mapping.World, db *mapdb.MapDB) *Server {
	return &Server{
		world: world,
		db:    db,
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/map/insert", s.insertHandler)
	mux.HandleFunc("/api/map/saliency", s.saliencyHandler)
	mux.HandleFunc("/api/map/cell", s.cellHandler)
	mux.HandleFunc("/api/map/box", s.boxHandler)
	mux.HandleFunc("/api/map/line", s.lineHandler)
	mux.HandleFunc("/api/map/gain", s.gainHandler)
	mux.HandleFunc("/api/map/collision", s.collisionHandler)
	mux.HandleFunc("/api/map/changes", s.changesHandler)
	mux.HandleFunc("/api/map/stats", s.statsHandler)
	mux.HandleFunc("/api/map/params", s.paramsHandler)
	mux.HandleFunc("/api/map/snapshot", s.snapshotHandler)
	mux.HandleFunc("/debug/occupancy", s.handleOccupancyChart)
	mux.HandleFunc("/debug/exploration", s.handleExplorationChart)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Write([]byte("Welcome to the Saliency Map Server!"))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "mapper", "version": "%s", "timestamp": "%s"}`,
		version.Version, time.Now().UTC().Format(time.RFC3339))
}

// vec3 is the JSON wire form of a point, [x, y, z] metres.
type vec3 [3]float64

func (v vec3) r3() r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

func fromR3(p r3.Vec) vec3 { return vec3{p.X, p.Y, p.Z} }

type insertRequest struct {
	Origin vec3   `json:"origin"`
	Points []vec3 `json:"points"`
	// Pose, when present, overrides Origin: points are sensor-frame and
	// transformed by this 4x4 row-major matrix.
	Pose *[16]float64 `json:"pose,omitempty"`
}

func (s *Server) insertHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req insertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	points := make([]r3.Vec, len(req.Points))
	for i, p := range req.Points {
		points[i] = p.r3()
	}
	points = mapping.FilterInvalid(points)
	if req.Pose != nil {
		s.world.InsertPointCloudWithPose(points, *req.Pose)
	} else {
		s.world.InsertPointCloud(req.Origin.r3(), points)
	}
	writeJSON(w, map[string]interface{}{
		"inserted": len(points),
		"voxels":   s.world.NumVoxels(),
	})
}

type saliencyRequest struct {
	Origin vec3 `json:"origin"`
	Points []struct {
		Pos       vec3  `json:"pos"`
		Intensity uint8 `json:"intensity"`
	} `json:"points"`
}

func (s *Server) saliencyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req saliencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	points := make([]mapping.SaliencyPoint, len(req.Points))
	for i, p := range req.Points {
		points[i] = mapping.SaliencyPoint{Pos: p.Pos.r3(), Intensity: p.Intensity}
	}
	endpoints := s.world.InsertSaliencyCloud(req.Origin.r3(), points)
	writeJSON(w, map[string]interface{}{
		"projected": len(endpoints) - 1, // first endpoint is the origin
		"epoch":     s.world.SaliencyConfig().Epoch,
	})
}

func parsePointQuery(r *http.Request) (r3.Vec, error) {
	var p r3.Vec
	if _, err := fmt.Sscanf(r.URL.Query().Get("x"), "%f", &p.X); err != nil {
		return p, fmt.Errorf("invalid x")
	}
	if _, err := fmt.Sscanf(r.URL.Query().Get("y"), "%f", &p.Y); err != nil {
		return p, fmt.Errorf("invalid y")
	}
	if _, err := fmt.Sscanf(r.URL.Query().Get("z"), "%f", &p.Z); err != nil {
		return p, fmt.Errorf("invalid z")
	}
	return p, nil
}

func (s *Server) cellHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, err := parsePointQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	status, prob := s.world.CellProbabilityPoint(p)
	writeJSON(w, map[string]interface{}{
		"status":      status.String(),
		"probability": prob,
	})
}

type boxRequest struct {
	Center vec3 `json:"center"`
	Size   vec3 `json:"size"`
}

func (s *Server) boxHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req boxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	status := s.world.CellStatusBoundingBox(req.Center.r3(), req.Size.r3())
	writeJSON(w, map[string]string{"status": status.String()})
}

type lineRequest struct {
	Start vec3  `json:"start"`
	End   vec3  `json:"end"`
	Size  *vec3 `json:"size,omitempty"` // swept box; point query when absent
}

func (s *Server) lineHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req lineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	var status mapping.CellStatus
	if req.Size != nil {
		status = s.world.LineStatusBoundingBox(req.Start.r3(), req.End.r3(), req.Size.r3())
	} else {
		status = s.world.LineStatus(req.Start.r3(), req.End.r3())
	}
	writeJSON(w, map[string]string{"status": status.String()})
}

func (s *Server) gainHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, err := parsePointQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	status, gain := s.world.CuriousGain(p)
	writeJSON(w, map[string]interface{}{
		"status": status.String(),
		"gain":   gain,
	})
}

type collisionRequest struct {
	Positions []vec3 `json:"positions"`
}

func (s *Server) collisionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req collisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	positions := make([]r3.Vec, len(req.Positions))
	for i, p := range req.Positions {
		positions[i] = p.r3()
	}
	idx, hit := s.world.CheckPathCollision(positions)
	resp := map[string]interface{}{"collision": hit}
	if hit {
		resp["index"] = idx
	}
	writeJSON(w, resp)
}

func (s *Server) changesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	changes := s.world.ChangedVoxels()
	out := make([]map[string]interface{}, len(changes))
	for i, c := range changes {
		out[i] = map[string]interface{}{
			"position": fromR3(c.Position),
			"occupied": c.Occupied,
		}
	}
	writeJSON(w, map[string]interface{}{"changes": out})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fraction, rate, elapsed := s.world.ExplorationRate()
	writeJSON(w, map[string]interface{}{
		"voxels":            s.world.NumVoxels(),
		"resolution":        s.world.Resolution(),
		"explored_fraction": fraction,
		"exploration_rate":  rate,
		"elapsed_seconds":   elapsed,
		"map_size":          fromR3(s.world.MapSize()),
		"map_center":        fromR3(s.world.MapCenter()),
	})
}

// paramsHandler returns the live tuning on GET. A POSTed tuning config is
// validated and applied in full; fields left unset fall back to defaults,
// and a resolution change discards the current map.
func (s *Server) paramsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		params := s.world.Params()
		sal := s.world.SaliencyConfig()
		writeJSON(w, map[string]interface{}{
			"occupancy": params,
			"saliency":  sal,
		})
	case http.MethodPost:
		var cfg config.TuningConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		if err := cfg.Validate(); err != nil {
			http.Error(w, fmt.Sprintf("Invalid tuning: %v", err), http.StatusBadRequest)
			return
		}
		params, sal := worldParams(&cfg)
		if err := s.world.SetParams(params); err != nil {
			http.Error(w, fmt.Sprintf("Failed to apply params: %v", err), http.StatusBadRequest)
			return
		}
		if err := s.world.SetSaliencyConfig(sal); err != nil {
			http.Error(w, fmt.Sprintf("Failed to apply saliency config: %v", err), http.StatusBadRequest)
			return
		}
		rx, ry, rz := cfg.GetRobotSize()
		s.world.SetRobotSize(r3.Vec{X: rx, Y: ry, Z: rz})
		writeJSON(w, map[string]string{"status": "applied"})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// snapshotHandler stores a snapshot on POST and lists stored snapshots on
// GET. Snapshots go to the database, not the filesystem.
func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		label := r.FormValue("label")
		id, err := s.saveSnapshot(label)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to save snapshot: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"id": id})
	case http.MethodGet:
		metas, err := s.db.ListSnapshots()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to list snapshots: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"snapshots": metas})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) saveSnapshot(label string) (string, error) {
	blob, err := s.world.SnapshotBlob()
	if err != nil {
		return "", err
	}
	return s.db.InsertSnapshot(label, s.world.Resolution(), s.world.NumVoxels(),
		s.world.ExploredFraction(), blob)
}
