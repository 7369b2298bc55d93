package features

// window keeps, per key, the connections of the trailing interval in
// timestamp order. Entries must be pushed in non-decreasing timestamp order.
type window struct {
	span    float64
	buckets map[string]*bucket
}

type bucket struct {
	entries  []entry
	head     int
	noReply  int
	rejected int
}

type entry struct {
	ts    float64
	state string
}

func newWindow(span float64) *window {
	return &window{span: span, buckets: make(map[string]*bucket)}
}

// push adds a connection and evicts the ones older than ts-span. It returns
// the bucket as it stands, the new connection included.
func (w *window) push(key string, ts float64, state string) *bucket {
	b, ok := w.buckets[key]
	if !ok {
		b = &bucket{}
		w.buckets[key] = b
	}
	b.entries = append(b.entries, entry{ts: ts, state: state})
	b.count(state, 1)

	lower := ts - w.span
	for b.head < len(b.entries) && b.entries[b.head].ts < lower {
		b.count(b.entries[b.head].state, -1)
		b.head++
	}
	// Compact once the evicted prefix dominates the slice.
	if b.head > 64 && b.head*2 > len(b.entries) {
		b.entries = append(b.entries[:0], b.entries[b.head:]...)
		b.head = 0
	}
	return b
}

func (b *bucket) count(state string, delta int) {
	switch state {
	case StateNoReply:
		b.noReply += delta
	case StateRejected:
		b.rejected += delta
	}
}

func (b *bucket) size() int {
	return len(b.entries) - b.head
}

func (b *bucket) noReplyRate() float64 {
	return rate(b.noReply, b.size())
}

func (b *bucket) rejectedRate() float64 {
	return rate(b.rejected, b.size())
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(n) / float64(total)
}
