package octree

import "math"

// Node is a single octree cell. A node with no children is a leaf; leaves at
// depths shallower than TreeDepth cover a cube of 2^(TreeDepth-depth) voxels
// per axis (produced by Prune).
type Node struct {
	children *[8]*Node
	logOdds  float32
}

// LogOdds returns the occupancy log-odds stored on the node.
func (n *Node) LogOdds() float32 { return n.logOdds }

// Occupancy returns the occupancy probability encoded by the log-odds.
func (n *Node) Occupancy() float64 { return probability(n.logOdds) }

func (n *Node) hasChildren() bool {
	if n.children == nil {
		return false
	}
	for _, c := range n.children {
		if c != nil {
			return true
		}
	}
	return false
}

func (n *Node) child(i int) *Node {
	if n.children == nil {
		return nil
	}
	return n.children[i]
}

func (n *Node) ensureChild(i int) *Node {
	if n.children == nil {
		n.children = new([8]*Node)
	}
	if n.children[i] == nil {
		n.children[i] = &Node{logOdds: n.logOdds}
	}
	return n.children[i]
}

// maxChildLogOdds is the inner-node update rule: a parent is as occupied as
// its most occupied child.
func (n *Node) maxChildLogOdds() float32 {
	max := float32(math.Inf(-1))
	for i := 0; i < 8; i++ {
		if c := n.child(i); c != nil && c.logOdds > max {
			max = c.logOdds
		}
	}
	return max
}

func logOdds(p float64) float32 {
	return float32(math.Log(p / (1.0 - p)))
}

func probability(l float32) float64 {
	return 1.0 / (1.0 + math.Exp(-float64(l)))
}
