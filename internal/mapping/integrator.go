package mapping

import "github.com/banshee-data/saliency.world/internal/octree"

// OccupancyIntegrator applies an evidence batch to the store exactly once
// per voxel per batch.
type OccupancyIntegrator struct {
	tree *octree.Tree
}

// NewOccupancyIntegrator binds an integrator to the store.
func NewOccupancyIntegrator(tree *octree.Tree) *OccupancyIntegrator {
	return &OccupancyIntegrator{tree: tree}
}

// Apply folds the batch into the store. Occupied evidence wins over free
// evidence for the same key within one batch: occupied keys are recorded
// first and removed from the free set, which is assumed to be far larger.
// Inner-node occupancy is propagated once after all point mutations.
func (oi *OccupancyIntegrator) Apply(batch *EvidenceBatch) {
	for k := range batch.Occupied {
		oi.tree.UpdateNode(k, true)
		delete(batch.Free, k)
	}
	for k := range batch.Free {
		oi.tree.UpdateNode(k, false)
	}
	oi.tree.PropagateInnerOccupancy()
}
