package octree

import (
	"bytes"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func buildSampleTree() *Tree {
	tree := New(0.2)
	occupied := []r3.Vec{
		{X: 1.1, Y: 2.2, Z: 0.3},
		{X: -3.0, Y: 0.5, Z: 1.7},
		{X: 4.4, Y: -4.4, Z: 2.2},
	}
	for _, p := range occupied {
		k := tree.CoordToKey(p)
		for i := 0; i < 10; i++ {
			tree.UpdateNode(k, true)
		}
	}
	for x := 0.0; x < 2.0; x += 0.2 {
		tree.UpdateNode(tree.CoordToKey(r3.Vec{X: x, Y: 0.1, Z: 0.1}), false)
	}
	tree.PropagateInnerOccupancy()
	return tree
}

func TestSnapshotRoundTrip(t *testing.T) {
	orig := buildSampleTree()

	var buf bytes.Buffer
	if err := orig.WriteSnapshot(&buf); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	restored := New(0.05) // resolution adopted from the snapshot
	if err := restored.ReadSnapshot(&buf); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if restored.Resolution() != orig.Resolution() {
		t.Errorf("resolution %v, want %v", restored.Resolution(), orig.Resolution())
	}

	// Occupancy classification must match for every original leaf.
	orig.EachLeaf(func(l Leaf) bool {
		n := restored.Search(l.Key)
		if n == nil {
			t.Errorf("leaf %v missing after round trip", l.Key)
			return true
		}
		if orig.Occupied(l) != restored.IsOccupied(n) {
			t.Errorf("leaf %v classification changed after round trip", l.Key)
		}
		return true
	})
	if restored.NumLeaves() != orig.NumLeaves() {
		t.Errorf("leaf count %d, want %d", restored.NumLeaves(), orig.NumLeaves())
	}
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	orig := buildSampleTree()
	path := filepath.Join(t.TempDir(), "map.snap")

	if err := orig.WriteSnapshotFile(path); err != nil {
		t.Fatalf("write snapshot file: %v", err)
	}
	restored := New(0.2)
	if err := restored.ReadSnapshotFile(path); err != nil {
		t.Fatalf("read snapshot file: %v", err)
	}
	if restored.NumLeaves() != orig.NumLeaves() {
		t.Errorf("leaf count %d, want %d", restored.NumLeaves(), orig.NumLeaves())
	}
}

func TestRestoreBlobEmpty(t *testing.T) {
	tree := New(0.2)
	if err := tree.RestoreBlob(nil); err == nil {
		t.Error("expected error for empty blob")
	}
}
