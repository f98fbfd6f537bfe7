package pose

type corner struct {
	x        int
	y        int
	response float64
}

// Same as container/heap but typed, so no interface conversion on hot path.
// Min-heap by response: the root is the weakest kept corner.

type cornerHeap []corner

func (h cornerHeap) Len() int { return len(h) }
func (h cornerHeap) Less(i, j int) bool {
	if h[i].response != h[j].response {
		return h[i].response < h[j].response
	}
	// Later raster position is considered weaker
	if h[i].y != h[j].y {
		return h[i].y > h[j].y
	}
	return h[i].x > h[j].x
}
func (h cornerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push pushes the element x onto the heap.
// The complexity is O(log n) where n = h.Len().
func (h *cornerHeap) Push(x corner) {
	*h = append(*h, x)
	h.up(h.Len() - 1)
}

// Pop removes and returns the minimum element (according to Less) from the heap.
// The complexity is O(log n) where n = h.Len().
func (h *cornerHeap) Pop() corner {
	n := h.Len() - 1
	h.Swap(0, n)
	h.down(0, n)
	heapSize := len(*h)
	lastNode := (*h)[heapSize-1]
	*h = (*h)[0 : heapSize-1]
	return lastNode
}

// PushBounded keeps at most limit strongest corners
func (h *cornerHeap) PushBounded(x corner, limit int) {
	if h.Len() < limit {
		h.Push(x)
		return
	}
	root := (*h)[0]
	weaker := cornerHeap{x, root}
	if weaker.Less(0, 1) {
		return
	}
	(*h)[0] = x
	h.down(0, h.Len())
}

func (h cornerHeap) up(j int) {
	for {
		i := (j - 1) / 2
		if i == j || !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		j = i
	}
}

func (h cornerHeap) down(i0, n int) bool {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h.Less(j2, j1) {
			j = j2
		}
		if !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		i = j
	}
	return i > i0
}
