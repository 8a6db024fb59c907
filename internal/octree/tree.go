// Package octree implements the sparse probabilistic voxel store backing the
// saliency map: a pointer octree with 16-bit per-axis keys, per-leaf
// occupancy log-odds, ray traversal, bounded iteration, change tracking and
// snapshot persistence.
package octree

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Params are the sensor-model and clamping parameters of the store. All
// probabilities are in (0, 1).
type Params struct {
	ProbHit            float64 // evidence added per occupied observation
	ProbMiss           float64 // evidence added per free observation
	ThresholdMin       float64 // log-odds clamp floor (as probability)
	ThresholdMax       float64 // log-odds clamp ceiling (as probability)
	ThresholdOccupancy float64 // decision threshold for "occupied"
}

// DefaultParams mirrors the usual sensor model for indoor range sensors.
func DefaultParams() Params {
	return Params{
		ProbHit:            0.65,
		ProbMiss:           0.4,
		ThresholdMin:       0.12,
		ThresholdMax:       0.97,
		ThresholdOccupancy: 0.5,
	}
}

// Tree is a sparse occupancy octree. It is not safe for concurrent use; the
// owning layer serialises access.
type Tree struct {
	resolution float64
	root       *Node

	probHitLog  float32
	probMissLog float32
	clampMin    float32
	clampMax    float32
	occThresLog float32

	changeDetection bool
	changes         map[Key]bool
}

// New creates an empty tree at the given voxel edge length in metres.
func New(resolution float64) *Tree {
	t := &Tree{
		resolution: resolution,
		changes:    make(map[Key]bool),
	}
	t.SetParams(DefaultParams())
	return t
}

// SetParams installs the sensor model. It does not touch stored evidence.
func (t *Tree) SetParams(p Params) {
	t.probHitLog = logOdds(p.ProbHit)
	t.probMissLog = logOdds(p.ProbMiss)
	t.clampMin = logOdds(p.ThresholdMin)
	t.clampMax = logOdds(p.ThresholdMax)
	t.occThresLog = logOdds(p.ThresholdOccupancy)
}

// Resolution returns the voxel edge length in metres.
func (t *Tree) Resolution() float64 { return t.resolution }

// Depth returns the maximum subdivision depth.
func (t *Tree) Depth() int { return TreeDepth }

// Clear discards all stored evidence and the change set.
func (t *Tree) Clear() {
	t.root = nil
	t.changes = make(map[Key]bool)
}

// EnableChangeDetection toggles recording of voxels whose occupancy
// classification flips.
func (t *Tree) EnableChangeDetection(enabled bool) {
	t.changeDetection = enabled
}

// IsOccupied reports whether the node's log-odds is at or above the
// occupancy decision threshold. A nil node is not occupied.
func (t *Tree) IsOccupied(n *Node) bool {
	return n != nil && n.logOdds >= t.occThresLog
}

// Search returns the node covering the key, or nil when the cell is unknown.
// A pruned coarse leaf covering the key satisfies the lookup.
func (t *Tree) Search(k Key) *Node {
	n := t.root
	if n == nil {
		return nil
	}
	for depth := 0; depth < TreeDepth; depth++ {
		if !n.hasChildren() {
			// Coarse leaf covering the whole key range below it.
			return n
		}
		n = n.child(childIndex(k, depth))
		if n == nil {
			return nil
		}
	}
	return n
}

// SearchPoint is Search keyed by a world coordinate. Out-of-range points
// resolve to nil (unknown).
func (t *Tree) SearchPoint(p r3.Vec) *Node {
	k, ok := t.CoordToKeyChecked(p)
	if !ok {
		return nil
	}
	return t.Search(k)
}

// UpdateNode folds one hit or miss observation into the voxel at k. The
// update is lazy: inner nodes are refreshed by PropagateInnerOccupancy.
func (t *Tree) UpdateNode(k Key, occupied bool) {
	node, existed := t.ensureLeaf(k)
	wasOccupied := node.logOdds >= t.occThresLog

	if occupied {
		node.logOdds += t.probHitLog
	} else {
		node.logOdds += t.probMissLog
	}
	if node.logOdds > t.clampMax {
		node.logOdds = t.clampMax
	}
	if node.logOdds < t.clampMin {
		node.logOdds = t.clampMin
	}

	if t.changeDetection {
		nowOccupied := node.logOdds >= t.occThresLog
		if !existed || wasOccupied != nowOccupied {
			t.changes[k] = true
		}
	}
}

// SetNodeLogOdds overwrites the stored log-odds of the voxel at k, clamped
// to the configured thresholds.
func (t *Tree) SetNodeLogOdds(k Key, l float32) {
	node, existed := t.ensureLeaf(k)
	wasOccupied := node.logOdds >= t.occThresLog

	if l > t.clampMax {
		l = t.clampMax
	}
	if l < t.clampMin {
		l = t.clampMin
	}
	node.logOdds = l

	if t.changeDetection {
		nowOccupied := l >= t.occThresLog
		if !existed || wasOccupied != nowOccupied {
			t.changes[k] = true
		}
	}
}

// ClampMinLogOdds returns the log-odds clamp floor.
func (t *Tree) ClampMinLogOdds() float32 { return t.clampMin }

// ClampMaxLogOdds returns the log-odds clamp ceiling.
func (t *Tree) ClampMaxLogOdds() float32 { return t.clampMax }

// PropagateInnerOccupancy refreshes every inner node from its children so
// coarse queries see aggregated child occupancy.
func (t *Tree) PropagateInnerOccupancy() {
	if t.root != nil {
		propagate(t.root)
	}
}

func propagate(n *Node) {
	if !n.hasChildren() {
		return
	}
	for i := 0; i < 8; i++ {
		if c := n.child(i); c != nil {
			propagate(c)
		}
	}
	n.logOdds = n.maxChildLogOdds()
}

// Prune collapses inner nodes whose eight children are identical leaves.
func (t *Tree) Prune() {
	if t.root != nil {
		prune(t.root)
	}
}

func prune(n *Node) {
	if !n.hasChildren() {
		return
	}
	for i := 0; i < 8; i++ {
		if c := n.child(i); c != nil {
			prune(c)
		}
	}
	first := n.children[0]
	if first == nil || first.hasChildren() {
		return
	}
	for i := 1; i < 8; i++ {
		c := n.children[i]
		if c == nil || c.hasChildren() || c.logOdds != first.logOdds {
			return
		}
	}
	n.logOdds = first.logOdds
	n.children = nil
}

// Changes returns the keys whose classification flipped since the last
// reset. The returned map is the live change set; callers must copy before
// mutating the tree further.
func (t *Tree) Changes() map[Key]bool { return t.changes }

// ResetChangeDetection clears the change set.
func (t *Tree) ResetChangeDetection() {
	t.changes = make(map[Key]bool)
}

// MetricBounds returns the axis-aligned bounds of all stored leaves. ok is
// false for an empty tree.
func (t *Tree) MetricBounds() (min, max r3.Vec, ok bool) {
	min = r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max = r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	t.EachLeaf(func(l Leaf) bool {
		ok = true
		h := l.Size / 2
		min.X = math.Min(min.X, l.Center.X-h)
		min.Y = math.Min(min.Y, l.Center.Y-h)
		min.Z = math.Min(min.Z, l.Center.Z-h)
		max.X = math.Max(max.X, l.Center.X+h)
		max.Y = math.Max(max.Y, l.Center.Y+h)
		max.Z = math.Max(max.Z, l.Center.Z+h)
		return true
	})
	return min, max, ok
}

// NumLeaves counts the stored leaves.
func (t *Tree) NumLeaves() int {
	n := 0
	t.EachLeaf(func(Leaf) bool {
		n++
		return true
	})
	return n
}

// ensureLeaf walks to the max-depth leaf for k, creating the path as needed.
// existed reports whether the full path was already present; expanding a
// pruned coarse leaf counts as creation.
func (t *Tree) ensureLeaf(k Key) (n *Node, existed bool) {
	if t.root == nil {
		t.root = &Node{}
	}
	n = t.root
	existed = true
	for depth := 0; depth < TreeDepth; depth++ {
		i := childIndex(k, depth)
		if n.children == nil || n.children[i] == nil {
			existed = false
		}
		n = n.ensureChild(i)
	}
	return n, existed
}
