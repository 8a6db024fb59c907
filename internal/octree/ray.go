package octree

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// rayState is the per-axis traversal state of an Amanatides–Woo walk.
type rayState struct {
	current Key
	step    [3]int
	tMax    [3]float64
	tDelta  [3]float64
}

func (t *Tree) initRay(origin r3.Vec, dir r3.Vec, start Key) rayState {
	s := rayState{current: start}
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}
	k := [3]uint16{start.X, start.Y, start.Z}
	for i := 0; i < 3; i++ {
		switch {
		case d[i] > 0:
			s.step[i] = 1
		case d[i] < 0:
			s.step[i] = -1
		}
		if s.step[i] == 0 {
			s.tMax[i] = math.Inf(1)
			s.tDelta[i] = math.Inf(1)
			continue
		}
		border := float64(int(k[i])-keyOffset) * t.resolution
		if s.step[i] > 0 {
			border += t.resolution
		}
		s.tMax[i] = (border - o[i]) / d[i]
		s.tDelta[i] = t.resolution / math.Abs(d[i])
	}
	return s
}

// advance steps into the next voxel and returns the ray parameter (metres
// along the unit direction) at which the boundary was crossed. ok is false
// when the step leaves the representable key range.
func (s *rayState) advance() (tCrossed float64, ok bool) {
	axis := 0
	if s.tMax[1] < s.tMax[0] {
		axis = 1
	}
	if s.tMax[2] < s.tMax[axis] {
		axis = 2
	}
	tCrossed = s.tMax[axis]
	s.tMax[axis] += s.tDelta[axis]

	k := [3]uint16{s.current.X, s.current.Y, s.current.Z}
	next := int(k[axis]) + s.step[axis]
	if next < 0 || next > math.MaxUint16 {
		return tCrossed, false
	}
	k[axis] = uint16(next)
	s.current = Key{X: k[0], Y: k[1], Z: k[2]}
	return tCrossed, true
}

// ComputeRayKeys enumerates the voxels crossed by the segment from origin to
// target, including the origin voxel and excluding the target voxel. ok is
// false when either endpoint is outside the representable key range.
func (t *Tree) ComputeRayKeys(origin, target r3.Vec) ([]Key, bool) {
	kOrigin, okO := t.CoordToKeyChecked(origin)
	kTarget, okT := t.CoordToKeyChecked(target)
	if !okO || !okT {
		return nil, false
	}
	if kOrigin == kTarget {
		return nil, true
	}

	dir := r3.Sub(target, origin)
	length := r3.Norm(dir)
	if length == 0 {
		return nil, true
	}
	dir = r3.Scale(1/length, dir)

	s := t.initRay(origin, dir, kOrigin)
	keys := make([]Key, 0, 64)
	for s.current != kTarget {
		keys = append(keys, s.current)
		tCrossed, ok := s.advance()
		if !ok {
			break
		}
		// Numerical guard: past the segment end means the target voxel
		// was missed by floating point error; stop rather than spin.
		if tCrossed > length+t.resolution {
			break
		}
	}
	return keys, true
}

// CastRay walks from origin along direction until it strikes an occupied
// voxel, returning that voxel's centre. Unknown cells stop the walk unless
// ignoreUnknown is set. maxRange <= 0 disables the range limit. The origin
// voxel itself counts when already occupied.
func (t *Tree) CastRay(origin, direction r3.Vec, maxRange float64, ignoreUnknown bool) (r3.Vec, bool) {
	norm := r3.Norm(direction)
	if norm == 0 {
		return r3.Vec{}, false
	}
	dir := r3.Scale(1/norm, direction)

	start, ok := t.CoordToKeyChecked(origin)
	if !ok {
		return r3.Vec{}, false
	}
	if n := t.Search(start); t.IsOccupied(n) {
		return t.KeyToCoord(start), true
	}

	s := t.initRay(origin, dir, start)
	for {
		tCrossed, ok := s.advance()
		if !ok {
			return r3.Vec{}, false
		}
		if maxRange > 0 && tCrossed > maxRange {
			return r3.Vec{}, false
		}
		n := t.Search(s.current)
		if n == nil {
			if !ignoreUnknown {
				return r3.Vec{}, false
			}
			continue
		}
		if t.IsOccupied(n) {
			return t.KeyToCoord(s.current), true
		}
	}
}
