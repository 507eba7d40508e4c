package indicator

import "math"

// window is a fixed-size circular buffer with a running sum.
type window struct {
	buf   []float64
	idx   int // next write position
	count int // total values received
	sum   float64
}

func newWindow(size int) *window {
	if size < 1 {
		size = 1
	}
	return &window{buf: make([]float64, size)}
}

func (w *window) push(v float64) {
	if w.count >= len(w.buf) {
		w.sum -= w.buf[w.idx]
	}
	w.buf[w.idx] = v
	w.sum += v
	w.idx = (w.idx + 1) % len(w.buf)
	w.count++
}

func (w *window) full() bool { return w.count >= len(w.buf) }

func (w *window) size() int { return len(w.buf) }

func (w *window) max() float64 {
	m := math.Inf(-1)
	for _, v := range w.buf {
		if v > m {
			m = v
		}
	}
	return m
}

func (w *window) min() float64 {
	m := math.Inf(1)
	for _, v := range w.buf {
		if v < m {
			m = v
		}
	}
	return m
}
