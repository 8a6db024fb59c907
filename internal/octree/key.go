package octree

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// TreeDepth is the number of subdivision levels below the root. Keys address
// cells at this maximum depth.
const TreeDepth = 16

// keyOffset centres the key range on the map origin so negative coordinates
// stay representable.
const keyOffset = 1 << (TreeDepth - 1)

// Key identifies a single voxel at maximum depth. Each axis is an unsigned
// cell index with the map origin at keyOffset.
type Key struct {
	X, Y, Z uint16
}

// CoordToKey converts a world coordinate to the key of the voxel containing
// it. Coordinates outside the representable range wrap; use
// CoordToKeyChecked when out-of-range inputs are possible.
func (t *Tree) CoordToKey(p r3.Vec) Key {
	return Key{
		X: uint16(int(math.Floor(p.X/t.resolution)) + keyOffset),
		Y: uint16(int(math.Floor(p.Y/t.resolution)) + keyOffset),
		Z: uint16(int(math.Floor(p.Z/t.resolution)) + keyOffset),
	}
}

// CoordToKeyChecked converts a world coordinate to a voxel key, reporting
// false when any axis falls outside the representable key range.
func (t *Tree) CoordToKeyChecked(p r3.Vec) (Key, bool) {
	var k Key
	ix := int(math.Floor(p.X/t.resolution)) + keyOffset
	iy := int(math.Floor(p.Y/t.resolution)) + keyOffset
	iz := int(math.Floor(p.Z/t.resolution)) + keyOffset
	if ix < 0 || ix > math.MaxUint16 ||
		iy < 0 || iy > math.MaxUint16 ||
		iz < 0 || iz > math.MaxUint16 {
		return k, false
	}
	k.X, k.Y, k.Z = uint16(ix), uint16(iy), uint16(iz)
	return k, true
}

// KeyToCoord returns the centre of the voxel addressed by k.
func (t *Tree) KeyToCoord(k Key) r3.Vec {
	return r3.Vec{
		X: (float64(int(k.X)-keyOffset) + 0.5) * t.resolution,
		Y: (float64(int(k.Y)-keyOffset) + 0.5) * t.resolution,
		Z: (float64(int(k.Z)-keyOffset) + 0.5) * t.resolution,
	}
}

// childIndex selects which of the eight children of a node at the given
// depth contains k. Bit b of each axis contributes one bit of the index.
func childIndex(k Key, depth int) int {
	b := uint(TreeDepth - 1 - depth)
	idx := 0
	if k.X&(1<<b) != 0 {
		idx |= 1
	}
	if k.Y&(1<<b) != 0 {
		idx |= 2
	}
	if k.Z&(1<<b) != 0 {
		idx |= 4
	}
	return idx
}
