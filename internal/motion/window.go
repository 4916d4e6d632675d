package motion

// window is a fixed-capacity FIFO ring of deviations.
type window struct {
	buf   []float32
	start int
	n     int
}

func newWindow(capacity int) window {
	return window{buf: make([]float32, capacity)}
}

func (w *window) push(v float32) {
	if w.n == len(w.buf) {
		// Overwrite the oldest slot.
		w.buf[w.start] = v
		w.start = (w.start + 1) % len(w.buf)
		return
	}
	w.buf[(w.start+w.n)%len(w.buf)] = v
	w.n++
}

func (w *window) full() bool { return w.n == len(w.buf) }

func (w *window) max() float32 {
	m := float32(-1)
	for i := 0; i < w.n; i++ {
		if v := w.buf[(w.start+i)%len(w.buf)]; v >= m {
			m = v
		}
	}
	return m
}

func (w *window) clear() {
	for i := range w.buf {
		w.buf[i] = 0
	}
	w.start = 0
	w.n = 0
}

func (w *window) values() []float32 {
	out := make([]float32, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}
