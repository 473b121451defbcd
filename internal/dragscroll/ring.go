package dragscroll

// ring is a fixed-depth moving average.
type ring struct {
	items []float64
	sum   float64
	size  int
	next  int
}

func newRing(depth int) ring {
	if depth < 1 {
		depth = 1
	}
	return ring{items: make([]float64, depth)}
}

func (r *ring) reset() {
	r.sum, r.size, r.next = 0, 0, 0
}

func (r *ring) push(v float64) {
	if r.size == len(r.items) {
		r.sum -= r.items[r.next]
	} else {
		r.size++
	}
	r.items[r.next] = v
	r.sum += v
	r.next = (r.next + 1) % len(r.items)
}

func (r *ring) mean() float64 {
	if r.size == 0 {
		return 0
	}
	return r.sum / float64(r.size)
}
