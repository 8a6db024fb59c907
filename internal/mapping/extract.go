package mapping

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/saliency.world/internal/octree"
)

// Box is one map cell reported by bulk extraction.
type Box struct {
	Center r3.Vec
	Size   float64
}

// AllOccupiedBoxes lists every occupied leaf as (center, size).
func (w *World) AllOccupiedBoxes() []Box {
	return w.allBoxes(true)
}

// AllFreeBoxes lists every known free leaf as (center, size).
func (w *World) AllFreeBoxes() []Box {
	return w.allBoxes(false)
}

func (w *World) allBoxes(occupied bool) []Box {
	w.mu.Lock()
	defer w.mu.Unlock()

	var boxes []Box
	w.tree.EachLeaf(func(l octree.Leaf) bool {
		if w.tree.Occupied(l) == occupied {
			boxes = append(boxes, Box{Center: l.Center, Size: l.Size})
		}
		return true
	})
	return boxes
}

// OccupiedPointCloud samples the occupied region: one point per max-depth
// occupied leaf, and a resolution-pitch tiling of coarser occupied leaves so
// their filled volume is represented.
func (w *World) OccupiedPointCloud() []r3.Vec {
	w.mu.Lock()
	defer w.mu.Unlock()

	res := w.tree.Resolution()
	maxDepth := w.tree.Depth()
	var cloud []r3.Vec
	w.tree.EachLeaf(func(l octree.Leaf) bool {
		if !w.tree.Occupied(l) {
			return true
		}
		if l.Depth == maxDepth {
			cloud = append(cloud, l.Center)
			return true
		}
		offset := l.Size/2 - res/2
		boxMin := r3.Sub(l.Center, r3.Vec{X: offset, Y: offset, Z: offset})
		boxMax := r3.Add(l.Center, r3.Vec{X: offset + 0.001, Y: offset + 0.001, Z: offset + 0.001})
		for x := boxMin.X; x <= boxMax.X; x += res {
			for y := boxMin.Y; y <= boxMax.Y; y += res {
				for z := boxMin.Z; z <= boxMax.Z; z += res {
					cloud = append(cloud, r3.Vec{X: x, Y: y, Z: z})
				}
			}
		}
		return true
	})
	return cloud
}

// OccupiedPointsInBox samples occupied voxel centres on a resolution grid
// across the box. The centre is first corrected onto the voxel grid so the
// samples align with stored cells.
func (w *World) OccupiedPointsInBox(center, boxSize r3.Vec) []r3.Vec {
	w.mu.Lock()
	defer w.mu.Unlock()

	res := w.tree.Resolution()
	const epsilon = 0.001 // avoid losing boundary cells to rounding
	corrected := r3.Vec{
		X: res*math.Floor(center.X/res) + res/2,
		Y: res*math.Floor(center.Y/res) + res/2,
		Z: res*math.Floor(center.Z/res) + res/2,
	}
	half := r3.Scale(0.5, boxSize)
	boxMin := r3.Sub(corrected, r3.Add(half, r3.Vec{X: epsilon, Y: epsilon, Z: epsilon}))
	boxMax := r3.Add(corrected, r3.Add(half, r3.Vec{X: epsilon, Y: epsilon, Z: epsilon}))

	var points []r3.Vec
	for x := boxMin.X; x <= boxMax.X; x += res {
		for y := boxMin.Y; y <= boxMax.Y; y += res {
			for z := boxMin.Z; z <= boxMax.Z; z += res {
				p := r3.Vec{X: x, Y: y, Z: z}
				if w.tree.IsOccupied(w.tree.SearchPoint(p)) {
					points = append(points, p)
				}
			}
		}
	}
	return points
}

// MapBounds returns the metric bounds of all stored voxels. ok is false for
// an empty map.
func (w *World) MapBounds() (min, max r3.Vec, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tree.MetricBounds()
}

// MapCenter returns the centre of the stored volume.
func (w *World) MapCenter() r3.Vec {
	min, max, ok := w.MapBounds()
	if !ok {
		return r3.Vec{}
	}
	return r3.Add(min, r3.Scale(0.5, r3.Sub(max, min)))
}

// MapSize returns the extent of the stored volume per axis.
func (w *World) MapSize() r3.Vec {
	min, max, ok := w.MapBounds()
	if !ok {
		return r3.Vec{}
	}
	return r3.Sub(max, min)
}

// SetFree clamps every voxel in the box (shifted by offset) to the minimum
// occupancy, carving known free space.
func (w *World) SetFree(position, boxSize, offset r3.Vec) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setLogOddsBoxLocked(r3.Add(position, offset), boxSize, w.tree.ClampMinLogOdds())
}

// SetOccupied clamps every voxel in the box to the maximum occupancy.
func (w *World) SetOccupied(position, boxSize r3.Vec) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setLogOddsBoxLocked(position, boxSize, w.tree.ClampMaxLogOdds())
}

// setLogOddsBoxLocked writes logOdds into every voxel on a resolution grid
// across the box, then propagates inner occupancy once.
func (w *World) setLogOddsBoxLocked(position, boxSize r3.Vec, logOdds float32) {
	res := w.tree.Resolution()
	const epsilon = 0.001
	half := r3.Scale(0.5, boxSize)
	boxMin := r3.Sub(position, r3.Add(half, r3.Vec{X: epsilon, Y: epsilon, Z: epsilon}))
	boxMax := r3.Add(position, r3.Add(half, r3.Vec{X: epsilon, Y: epsilon, Z: epsilon}))

	for x := boxMin.X; x <= boxMax.X; x += res {
		for y := boxMin.Y; y <= boxMax.Y; y += res {
			for z := boxMin.Z; z <= boxMax.Z; z += res {
				if k, ok := w.tree.CoordToKeyChecked(r3.Vec{X: x, Y: y, Z: z}); ok {
					w.tree.SetNodeLogOdds(k, logOdds)
				}
			}
		}
	}
	w.tree.PropagateInnerOccupancy()
}

// ClearBox forces every stored leaf intersecting the box to the minimum
// occupancy without creating new voxels.
func (w *World) ClearBox(center, boxSize r3.Vec) {
	w.mu.Lock()
	defer w.mu.Unlock()

	res := w.tree.Resolution()
	half := r3.Scale(0.5, boxSize)
	boxMin := r3.Sub(center, half)
	boxMax := r3.Add(center, half)

	minLog := w.tree.ClampMinLogOdds()
	for x := boxMin.X + res/2; x <= boxMax.X; x += res {
		for y := boxMin.Y + res/2; y <= boxMax.Y; y += res {
			for z := boxMin.Z + res/2; z <= boxMax.Z; z += res {
				p := r3.Vec{X: x, Y: y, Z: z}
				if w.tree.SearchPoint(p) == nil {
					continue
				}
				if k, ok := w.tree.CoordToKeyChecked(p); ok {
					w.tree.SetNodeLogOdds(k, minLog)
				}
			}
		}
	}
	w.tree.PropagateInnerOccupancy()
}

// Prune collapses uniform octree branches to coarser leaves.
func (w *World) Prune() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tree.Prune()
}
