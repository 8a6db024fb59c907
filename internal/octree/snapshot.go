package octree

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"
)

// snapshotLeaf is the serialised form of one stored leaf.
type snapshotLeaf struct {
	Key     Key
	Depth   int
	LogOdds float32
}

// snapshot is the gob payload of a tree. Saliency state is intentionally
// absent: only occupancy round-trips.
type snapshot struct {
	Resolution float64
	Leaves     []snapshotLeaf
}

// WriteSnapshot serialises the tree as a gzip-compressed gob stream.
func (t *Tree) WriteSnapshot(w io.Writer) error {
	snap := snapshot{Resolution: t.resolution}
	t.EachLeaf(func(l Leaf) bool {
		snap.Leaves = append(snap.Leaves, snapshotLeaf{Key: l.Key, Depth: l.Depth, LogOdds: l.LogOdds})
		return true
	})

	gz := gzip.NewWriter(w)
	if err := gob.NewEncoder(gz).Encode(snap); err != nil {
		gz.Close()
		return fmt.Errorf("encode octree snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip writer: %w", err)
	}
	return nil
}

// ReadSnapshot replaces the tree contents with a previously written
// snapshot. The tree adopts the snapshot's resolution.
func (t *Tree) ReadSnapshot(r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip reader: %w", err)
	}
	defer gz.Close()

	var snap snapshot
	if err := gob.NewDecoder(gz).Decode(&snap); err != nil {
		return fmt.Errorf("decode octree snapshot: %w", err)
	}
	if snap.Resolution <= 0 {
		return fmt.Errorf("snapshot has invalid resolution %v", snap.Resolution)
	}

	t.resolution = snap.Resolution
	t.Clear()
	for _, l := range snap.Leaves {
		t.restoreLeaf(l)
	}
	t.PropagateInnerOccupancy()
	return nil
}

// restoreLeaf recreates a stored leaf at its original depth without applying
// the clamping of SetNodeLogOdds (the snapshot is already clamped).
func (t *Tree) restoreLeaf(l snapshotLeaf) {
	if t.root == nil {
		t.root = &Node{}
	}
	n := t.root
	for depth := 0; depth < l.Depth; depth++ {
		n = n.ensureChild(childIndex(l.Key, depth))
	}
	n.logOdds = l.LogOdds
}

// WriteSnapshotFile writes the snapshot to path, creating or truncating it.
func (t *Tree) WriteSnapshotFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	if err := t.WriteSnapshot(f); err != nil {
		f.Close()
		return err
	}
	// Close errors matter here: the snapshot is not durable until the file
	// is flushed.
	return f.Close()
}

// ReadSnapshotFile loads a snapshot previously written by WriteSnapshotFile.
func (t *Tree) ReadSnapshotFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()
	return t.ReadSnapshot(f)
}

// SnapshotBlob serialises the tree to an in-memory blob, for persistence
// layers that store snapshots as database rows.
func (t *Tree) SnapshotBlob() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.WriteSnapshot(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RestoreBlob replaces the tree contents from a blob produced by
// SnapshotBlob.
func (t *Tree) RestoreBlob(blob []byte) error {
	if len(blob) == 0 {
		return fmt.Errorf("empty snapshot blob")
	}
	return t.ReadSnapshot(bytes.NewReader(blob))
}
