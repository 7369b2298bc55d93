package predictor

import (
	"sync"
	"time"

	"Go2NetKDD/internal/model"
)

const (
	LabelNormal = "NORMAL"
	LabelAttack = "ATTACK"
)

// Prediction is one classified feature vector.
type Prediction struct {
	Time       time.Time           `json:"time"`
	Label      string              `json:"label"`
	Class      int                 `json:"class"`
	Confidence float64             `json:"confidence"`
	Features   model.FeatureVector `json:"features"`
}

// Stats summarises the predictions currently held in the history.
type Stats struct {
	Total             int     `json:"total"`
	Attacks           int     `json:"attacks"`
	Normals           int     `json:"normals"`
	AttackRate        float64 `json:"attack_rate"`
	AverageConfidence float64 `json:"average_confidence"`
}

// History is a bounded ring of the most recent predictions. The oldest entry
// is evicted once capacity is reached.
type History struct {
	mu    sync.RWMutex
	buf   []Prediction
	start int
	n     int
}

// NewHistory returns an empty history holding at most capacity entries.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{buf: make([]Prediction, capacity)}
}

// Add appends p, evicting the oldest prediction when full.
func (h *History) Add(p Prediction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = p
		h.n++
		return
	}
	h.buf[h.start] = p
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of predictions held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.n
}

// Snapshot returns every held prediction, oldest first.
func (h *History) Snapshot() []Prediction {
	return h.Latest(0)
}

// Latest returns the newest n predictions, oldest first. n <= 0 returns all.
func (h *History) Latest(n int) []Prediction {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > h.n {
		n = h.n
	}
	out := make([]Prediction, 0, n)
	for i := h.n - n; i < h.n; i++ {
		out = append(out, h.buf[(h.start+i)%len(h.buf)])
	}
	return out
}

// Stats computes the summary over the held predictions.
func (h *History) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var s Stats
	var confidence float64
	for i := 0; i < h.n; i++ {
		p := h.buf[(h.start+i)%len(h.buf)]
		if p.Label == LabelAttack {
			s.Attacks++
		} else {
			s.Normals++
		}
		confidence += p.Confidence
	}
	s.Total = h.n
	if s.Total > 0 {
		s.AttackRate = float64(s.Attacks) / float64(s.Total)
		s.AverageConfidence = confidence / float64(s.Total)
	}
	return s
}
