package nwrcde

import "math"

// NodeData describes a single node in a spatial tree.
type NodeData struct {
	IdxStart, IdxEnd int
	IsLeaf           bool
	Radius           float64 // bounding-ball radius around the node centroid
}

// Count returns the number of points owned by the node.
func (nd NodeData) Count() int { return nd.IdxEnd - nd.IdxStart }

// SpatialTree is the read interface the dual-tree engine needs from a
// space-partitioning tree. Nodes are addressed by index; internal nodes own
// exactly two children whose point ranges partition the parent's range.
// Slots in NodeDataArray that were never built have a zero IdxStart/IdxEnd
// range and are never reachable through ChildNodes of a built internal node.
type SpatialTree interface {
	// Data returns the flat row-major point data owned by the tree,
	// in the caller's original point order.
	Data() []float64

	// NumPoints returns the number of points in the tree.
	NumPoints() int

	// NumFeatures returns the dimensionality of each point.
	NumFeatures() int

	// IdxArray returns the permutation mapping tree-order positions back
	// to original point indices.
	IdxArray() []int

	// NodeDataArray returns the metadata for every node slot in the tree.
	NodeDataArray() []NodeData

	// NumNodes returns the number of node slots.
	NumNodes() int

	// ChildNodes returns the left and right child node indices.
	// Behavior is undefined for leaf nodes.
	ChildNodes(node int) (left, right int)

	// Centroid returns the center of the node's bounding ball.
	Centroid(node int) []float64

	// QueryKNN finds the k nearest neighbors for each row in queryData.
	// queryData is flat row-major with queryRows rows. Returns per-query
	// neighbor indices and distances, both sorted by distance.
	QueryKNN(queryData []float64, queryRows, k int) (indices [][]int, distances [][]float64)
}

// TreeBuilder constructs a spatial tree over flat row-major data with n
// points of dimensionality dims. leafSize controls the maximum number of
// points per leaf node.
type TreeBuilder func(data []float64, n, dims, leafSize int) SpatialTree

// nodeDistRange returns the minimum and maximum possible distance between
// any point in qnode's bounding ball and any point in rnode's bounding ball.
func nodeDistRange(qt SpatialTree, qnode int, rt SpatialTree, rnode int) (minDist, maxDist float64) {
	qn := qt.NodeDataArray()[qnode]
	rn := rt.NodeDataArray()[rnode]
	d := euclideanDist(qt.Centroid(qnode), rt.Centroid(rnode))
	minDist = d - qn.Radius - rn.Radius
	if minDist < 0 {
		minDist = 0
	}
	maxDist = d + qn.Radius + rn.Radius
	return minDist, maxDist
}

func euclideanSqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func euclideanDist(a, b []float64) float64 {
	return math.Sqrt(euclideanSqDist(a, b))
}
