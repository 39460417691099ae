package nwrcde

import (
	"container/heap"
	"math"
	"sort"
)

// BallTree is the default space-partitioning tree: a Euclidean metric tree
// where each node stores a centroid and the radius of the smallest enclosing
// ball for its points. It is stored as a binary tree in array form: node i
// has children at 2*i+1 and 2*i+2.
type BallTree struct {
	data     []float64 // flat row-major point data (n * dims)
	n        int
	dims     int
	leafSize int
	idxArray []int      // permutation: tree-order position → original index
	nodes    []NodeData // node slots; unbuilt slots have an empty range
	// centroids[node*dims : (node+1)*dims] = centroid of node
	centroids []float64
}

// NewBallTree builds a ball tree from flat row-major data with n points of
// dimensionality dims. leafSize controls the max points per leaf node.
// NewBallTree satisfies TreeBuilder.
func NewBallTree(data []float64, n, dims, leafSize int) SpatialTree {
	if leafSize < 1 {
		leafSize = 1
	}

	dataCopy := make([]float64, len(data))
	copy(dataCopy, data)
	idxArray := make([]int, n)
	for i := range idxArray {
		idxArray[i] = i
	}

	maxNodes := ballMaxNodes(n, leafSize)
	t := &BallTree{
		data:      dataCopy,
		n:         n,
		dims:      dims,
		leafSize:  leafSize,
		idxArray:  idxArray,
		nodes:     make([]NodeData, maxNodes),
		centroids: make([]float64, maxNodes*dims),
	}

	if n > 0 {
		t.buildNode(0, 0, n)
	}

	return t
}

// ballMaxNodes returns an upper bound on the number of node slots needed for
// a binary tree with n points and the given leaf size. A split hands at most
// ceil(count/2) points to a child, so the depth is bounded by repeated
// ceil-halving down to leafSize.
func ballMaxNodes(n, leafSize int) int {
	if n == 0 {
		return 1
	}
	depth := 0
	for size := n; size > leafSize; size = (size + 1) / 2 {
		depth++
	}
	return (1 << (depth + 1)) - 1
}

// buildNode recursively builds the ball tree for points in idxArray[start:end].
func (t *BallTree) buildNode(nodeID, start, end int) {
	for nodeID >= len(t.nodes) {
		t.nodes = append(t.nodes, NodeData{})
		t.centroids = append(t.centroids, make([]float64, t.dims)...)
	}

	t.computeCentroid(nodeID, start, end)

	// Radius: max distance from centroid to any point in this node.
	centroid := t.centroids[nodeID*t.dims : (nodeID+1)*t.dims]
	var radius float64
	for i := start; i < end; i++ {
		ptIdx := t.idxArray[i]
		pt := t.data[ptIdx*t.dims : (ptIdx+1)*t.dims]
		d := euclideanDist(centroid, pt)
		if d > radius {
			radius = d
		}
	}

	count := end - start
	if count <= t.leafSize {
		t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: true, Radius: radius}
		return
	}

	t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: false, Radius: radius}

	// Median split on the dimension with the greatest spread.
	splitDim := t.findSpreadDim(start, end)
	t.sortByDim(start, end, splitDim)
	mid := start + count/2

	t.buildNode(2*nodeID+1, start, mid)
	t.buildNode(2*nodeID+2, mid, end)
}

// computeCentroid computes the mean of points idxArray[start:end] and stores
// it in the centroids array.
func (t *BallTree) computeCentroid(nodeID, start, end int) {
	base := nodeID * t.dims
	count := float64(end - start)
	for d := 0; d < t.dims; d++ {
		t.centroids[base+d] = 0
	}
	for i := start; i < end; i++ {
		ptIdx := t.idxArray[i]
		for d := 0; d < t.dims; d++ {
			t.centroids[base+d] += t.data[ptIdx*t.dims+d]
		}
	}
	for d := 0; d < t.dims; d++ {
		t.centroids[base+d] /= count
	}
}

// findSpreadDim returns the dimension with the greatest spread among
// points in idxArray[start:end].
func (t *BallTree) findSpreadDim(start, end int) int {
	bestDim := 0
	bestSpread := -1.0
	for d := 0; d < t.dims; d++ {
		minVal := math.Inf(1)
		maxVal := math.Inf(-1)
		for i := start; i < end; i++ {
			v := t.data[t.idxArray[i]*t.dims+d]
			if v < minVal {
				minVal = v
			}
			if v > maxVal {
				maxVal = v
			}
		}
		spread := maxVal - minVal
		if spread > bestSpread {
			bestSpread = spread
			bestDim = d
		}
	}
	return bestDim
}

// sortByDim sorts idxArray[start:end] by the given dimension.
func (t *BallTree) sortByDim(start, end, dim int) {
	sub := t.idxArray[start:end]
	dims := t.dims
	data := t.data
	sort.Slice(sub, func(i, j int) bool {
		return data[sub[i]*dims+dim] < data[sub[j]*dims+dim]
	})
}

// --- SpatialTree interface ---

func (t *BallTree) Data() []float64           { return t.data }
func (t *BallTree) NumPoints() int            { return t.n }
func (t *BallTree) NumFeatures() int          { return t.dims }
func (t *BallTree) IdxArray() []int           { return t.idxArray }
func (t *BallTree) NodeDataArray() []NodeData { return t.nodes }
func (t *BallTree) NumNodes() int             { return len(t.nodes) }

func (t *BallTree) ChildNodes(node int) (left, right int) {
	return 2*node + 1, 2*node + 2
}

func (t *BallTree) Centroid(node int) []float64 {
	return t.centroids[node*t.dims : (node+1)*t.dims]
}

// QueryKNN finds the k nearest neighbors for each row in queryData.
func (t *BallTree) QueryKNN(queryData []float64, queryRows, k int) ([][]int, [][]float64) {
	indices := make([][]int, queryRows)
	distances := make([][]float64, queryRows)

	for q := 0; q < queryRows; q++ {
		query := queryData[q*t.dims : (q+1)*t.dims]
		h := &knnHeap{}
		heap.Init(h)
		t.knnSearch(0, query, k, h)

		nResults := h.Len()
		idx := make([]int, nResults)
		dist := make([]float64, nResults)
		for i := nResults - 1; i >= 0; i-- {
			item := heap.Pop(h).(knnItem)
			idx[i] = item.index
			dist[i] = item.dist
		}
		indices[q] = idx
		distances[q] = dist
	}

	return indices, distances
}

// knnSearch performs a single-tree KNN traversal.
func (t *BallTree) knnSearch(nodeID int, query []float64, k int, h *knnHeap) {
	if nodeID >= len(t.nodes) {
		return
	}
	node := t.nodes[nodeID]
	if node.IdxStart == node.IdxEnd && nodeID != 0 {
		return
	}

	if node.IsLeaf {
		for i := node.IdxStart; i < node.IdxEnd; i++ {
			ptIdx := t.idxArray[i]
			pt := t.data[ptIdx*t.dims : (ptIdx+1)*t.dims]
			d := euclideanDist(query, pt)
			if h.Len() < k {
				heap.Push(h, knnItem{index: ptIdx, dist: d})
			} else if d < (*h)[0].dist {
				(*h)[0] = knnItem{index: ptIdx, dist: d}
				heap.Fix(h, 0)
			}
		}
		return
	}

	left := 2*nodeID + 1
	right := 2*nodeID + 2

	// Centroid distance minus radius is a lower bound on the distance to
	// any point in the child.
	leftDist := euclideanDist(query, t.Centroid(left)) - t.nodes[left].Radius
	rightDist := euclideanDist(query, t.Centroid(right)) - t.nodes[right].Radius
	if leftDist < 0 {
		leftDist = 0
	}
	if rightDist < 0 {
		rightDist = 0
	}

	nearChild, farChild := left, right
	farDist := rightDist
	if rightDist < leftDist {
		nearChild, farChild = right, left
		farDist = leftDist
	}

	t.knnSearch(nearChild, query, k, h)

	if h.Len() < k || farDist < (*h)[0].dist {
		t.knnSearch(farChild, query, k, h)
	}
}

// --- max-heap for KNN queries ---

type knnItem struct {
	index int
	dist  float64
}

// knnHeap is a max-heap of knnItem (largest distance on top) used as a
// bounded priority queue for KNN queries.
type knnHeap []knnItem

func (h knnHeap) Len() int            { return len(h) }
func (h knnHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist } // max-heap
func (h knnHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *knnHeap) Push(x interface{}) { *h = append(*h, x.(knnItem)) }
func (h *knnHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
