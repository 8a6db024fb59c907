package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/saliency.world/internal/config"
	"github.com/banshee-data/saliency.world/internal/mapdb"
	"github.com/banshee-data/saliency.world/internal/mapping"
	"github.com/banshee-data/saliency.world/internal/monitor"
)

var (
	listen     = flag.String("listen", ":8081", "HTTP listen address")
	dbFile     = flag.String("db", "map_data.db", "Path to the SQLite database file")
	configFile = flag.String("config", "", "Path to a tuning config JSON file (default: embedded defaults)")
	replayFile = flag.String("replay", "", "CSV cloud log to replay into the map on startup")
	plotDir    = flag.String("plot-dir", "", "Directory for debug plot output (disabled when empty)")
	restore    = flag.Bool("restore", false, "Restore the latest snapshot from the database on startup")
	sliceZ     = flag.Float64("slice-z", 0.5, "Height of the occupancy slice rendered to the plot directory")
)

// worldParams maps the tuning file onto the map's parameter structs.
func worldParams(cfg *config.TuningConfig) (mapping.Params, mapping.SaliencyConfig) {
	evalMinX, evalMinY, evalMinZ := cfg.GetEvalMin()
	evalMaxX, evalMaxY, evalMaxZ := cfg.GetEvalMax()
	params := mapping.Params{
		Resolution:             cfg.GetResolution(),
		ProbabilityHit:         cfg.GetProbabilityHit(),
		ProbabilityMiss:        cfg.GetProbabilityMiss(),
		ThresholdMin:           cfg.GetThresholdMin(),
		ThresholdMax:           cfg.GetThresholdMax(),
		ThresholdOccupancy:     cfg.GetThresholdOccupancy(),
		FilterSpeckles:         cfg.GetFilterSpeckles(),
		SensorMaxRange:         cfg.GetSensorMaxRange(),
		MaxFreeSpace:           cfg.GetMaxFreeSpace(),
		MinHeightFreeSpace:     cfg.GetMinHeightFreeSpace(),
		TreatUnknownAsOccupied: cfg.GetTreatUnknownAsOccupied(),
		ChangeDetectionEnabled: cfg.GetChangeDetection(),
		VisualizeMinZ:          cfg.GetVisualizeMinZ(),
		VisualizeMaxZ:          cfg.GetVisualizeMaxZ(),
		GroundZ:                cfg.GetGroundZ(),
		EvalMin:                r3.Vec{X: evalMinX, Y: evalMinY, Z: evalMinZ},
		EvalMax:                r3.Vec{X: evalMaxX, Y: evalMaxY, Z: evalMaxZ},
	}
	sal := mapping.SaliencyConfig{
		Alpha:             cfg.GetSaliencyAlpha(),
		Beta:              cfg.GetSaliencyBeta(),
		SaliencyThreshold: cfg.GetSaliencyThreshold(),
		ProjectionLimit:   cfg.GetProjectionLimit(),
	}
	return params, sal
}

// snapshotLoop periodically persists the map and an exploration sample to
// the database, and refreshes the debug plots when a plot directory is set.
func snapshotLoop(ctx context.Context, world *mapping.World, db *mapdb.MapDB,
	plotter *monitor.MapPlotter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fraction, rate, elapsed := world.ExplorationRate()
			if err := db.RecordExplorationSample(fraction, rate, elapsed, world.NumVoxels()); err != nil {
				log.Printf("Failed to record exploration sample: %v", err)
			}
			blob, err := world.SnapshotBlob()
			if err != nil {
				log.Printf("Failed to serialise map snapshot: %v", err)
				continue
			}
			id, err := db.InsertSnapshot("periodic", world.Resolution(),
				world.NumVoxels(), fraction, blob)
			if err != nil {
				log.Printf("Failed to store map snapshot: %v", err)
				continue
			}
			log.Printf("Stored snapshot %s (%d voxels, %.1f%% explored)",
				id, world.NumVoxels(), fraction*100)

			if plotter != nil {
				if _, err := plotter.RenderOccupancySlice(world, *sliceZ); err != nil {
					log.Printf("Failed to render occupancy slice: %v", err)
				}
				if samples, err := db.RecentExplorationSamples(500); err == nil && len(samples) > 1 {
					if _, err := plotter.RenderExploration(samples); err != nil {
						log.Printf("Failed to render exploration plot: %v", err)
					}
				}
				if len(world.LastProjection()) > 0 {
					if _, err := plotter.RenderProjection(world); err != nil {
						log.Printf("Failed to render projection plot: %v", err)
					}
				}
			}
		}
	}
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	var cfg *config.TuningConfig
	if *configFile != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	} else {
		cfg = config.MustLoadDefaultConfig()
	}

	params, sal := worldParams(cfg)
	world, err := mapping.NewWorld(params, sal)
	if err != nil {
		log.Fatalf("Failed to create map: %v", err)
	}
	rx, ry, rz := cfg.GetRobotSize()
	world.SetRobotSize(r3.Vec{X: rx, Y: ry, Z: rz})

	// Initialize database
	db, err := mapdb.NewMapDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to map database: %v", err)
	}
	defer db.Close()

	if *restore {
		id, blob, err := db.LatestSnapshot()
		if err != nil {
			log.Fatalf("Failed to load latest snapshot: %v", err)
		}
		if err := world.RestoreBlob(blob); err != nil {
			log.Fatalf("Failed to restore snapshot %s: %v", id, err)
		}
		log.Printf("Restored snapshot %s (%d voxels)", id, world.NumVoxels())
	}

	if *replayFile != "" {
		frames, points, err := replayCloudLog(world, *replayFile)
		if err != nil {
			log.Fatalf("Failed to replay cloud log: %v", err)
		}
		log.Printf("Replayed %d frames (%d points) from %s", frames, points, *replayFile)
	}

	var plotter *monitor.MapPlotter
	if *plotDir != "" {
		outDir := monitor.MakePlotOutputDir(*plotDir, *replayFile)
		plotter, err = monitor.NewMapPlotter(outDir)
		if err != nil {
			log.Fatalf("Failed to create plot directory: %v", err)
		}
		log.Printf("Writing debug plots to %s", outDir)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Periodic snapshot routine
	if !cfg.GetSnapshotDisable() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshotLoop(ctx, world, db, plotter, cfg.GetSnapshotInterval())
			log.Print("Snapshot routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: NewServer(world, db).ServeMux(),
		}

		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Print("HTTP server terminated")
	}()

	wg.Wait()
}
