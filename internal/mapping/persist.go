package mapping

import (
	"bufio"
	"fmt"
	"os"

	"github.com/banshee-data/saliency.world/internal/monitoring"
	"github.com/banshee-data/saliency.world/internal/octree"
)

// Save writes two files: a text voxel log at <path>.txt with one line per
// occupied voxel (x,y,z,state,value,viewpoints,density) and the compressed
// octree snapshot at <path>.snap. Saliency state lives only in the log; the
// snapshot round-trips occupancy alone.
func (w *World) Save(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	logPath := path + ".txt"
	f, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("create voxel log: %w", err)
	}
	bw := bufio.NewWriter(f)
	w.tree.EachLeaf(func(l octree.Leaf) bool {
		if !w.tree.Occupied(l) {
			return true
		}
		rec, _ := w.saliency.Record(l.Key)
		fmt.Fprintf(bw, "%g,%g,%g,%d,%d,%d,%d\n",
			l.Center.X, l.Center.Y, l.Center.Z,
			rec.State, int(rec.Value), rec.ViewpointCount, rec.DensityAccum)
		return true
	})
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write voxel log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close voxel log: %w", err)
	}
	monitoring.Logf("saved voxel log to %s", logPath)

	snapPath := path + ".snap"
	if err := w.tree.WriteSnapshotFile(snapPath); err != nil {
		return err
	}
	monitoring.Logf("saved map snapshot to %s", snapPath)
	return nil
}

// Load replaces the map contents with the snapshot at <path>.snap. Saliency
// records are discarded: the snapshot carries occupancy only.
func (w *World) Load(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.tree.ReadSnapshotFile(path + ".snap"); err != nil {
		return err
	}
	w.params.Resolution = w.tree.Resolution()
	w.saliency.Reset(w.tree)
	w.updateExploredLocked()
	return nil
}

// SnapshotBlob serialises the current octree for database persistence.
func (w *World) SnapshotBlob() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tree.SnapshotBlob()
}

// RestoreBlob replaces the map contents from a database snapshot blob.
func (w *World) RestoreBlob(blob []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.tree.RestoreBlob(blob); err != nil {
		return err
	}
	w.params.Resolution = w.tree.Resolution()
	w.saliency.Reset(w.tree)
	w.updateExploredLocked()
	return nil
}
