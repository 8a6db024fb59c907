package octree

import "gonum.org/v1/gonum/spatial/r3"

// Leaf describes one stored cell during iteration. For pruned coarse leaves
// Key addresses the minimum-corner voxel of the covered cube and Size is the
// full edge length of the cube.
type Leaf struct {
	Key     Key
	Depth   int
	Center  r3.Vec
	Size    float64
	LogOdds float32
}

// Occupied reports the leaf's classification against the tree's occupancy
// threshold.
func (t *Tree) Occupied(l Leaf) bool { return l.LogOdds >= t.occThresLog }

// EachLeaf visits every stored leaf in depth-first order. Returning false
// from fn stops the walk.
func (t *Tree) EachLeaf(fn func(Leaf) bool) {
	if t.root == nil {
		return
	}
	t.walk(t.root, 0, Key{}, fn, nil, nil)
}

// EachLeafInBox visits every stored leaf whose cell intersects the
// axis-aligned box [min, max]. Returning false from fn stops the walk.
func (t *Tree) EachLeafInBox(min, max r3.Vec, fn func(Leaf) bool) {
	if t.root == nil {
		return
	}
	t.walk(t.root, 0, Key{}, fn, &min, &max)
}

// walk recurses through the tree carrying the minimum-corner key of the
// current cell. boxMin/boxMax of nil means unbounded iteration.
func (t *Tree) walk(n *Node, depth int, corner Key, fn func(Leaf) bool, boxMin, boxMax *r3.Vec) bool {
	cells := 1 << (TreeDepth - depth) // voxels per axis covered by this cell
	size := t.resolution * float64(cells)
	center := r3.Vec{
		X: float64(int(corner.X)-keyOffset)*t.resolution + size/2,
		Y: float64(int(corner.Y)-keyOffset)*t.resolution + size/2,
		Z: float64(int(corner.Z)-keyOffset)*t.resolution + size/2,
	}

	if boxMin != nil {
		h := size / 2
		if center.X+h < boxMin.X || center.X-h > boxMax.X ||
			center.Y+h < boxMin.Y || center.Y-h > boxMax.Y ||
			center.Z+h < boxMin.Z || center.Z-h > boxMax.Z {
			return true
		}
	}

	if !n.hasChildren() {
		return fn(Leaf{
			Key:     corner,
			Depth:   depth,
			Center:  center,
			Size:    size,
			LogOdds: n.logOdds,
		})
	}

	half := uint16(cells / 2)
	for i := 0; i < 8; i++ {
		c := n.child(i)
		if c == nil {
			continue
		}
		childCorner := corner
		if i&1 != 0 {
			childCorner.X += half
		}
		if i&2 != 0 {
			childCorner.Y += half
		}
		if i&4 != 0 {
			childCorner.Z += half
		}
		if !t.walk(c, depth+1, childCorner, fn, boxMin, boxMax) {
			return false
		}
	}
	return true
}
