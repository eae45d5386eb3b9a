package engine

import "github.com/freewebtopdf/filesentry/internal/domain"

// DefaultHistoryLimit is the number of recent matches kept when no limit is configured
const DefaultHistoryLimit = 100

// history is a fixed-capacity ring of recent matches; the oldest entry is
// overwritten once the ring is full. Callers hold the engine lock.
type history struct {
	buf  []domain.RuleMatch
	next int
	size int
}

func newHistory(limit int) *history {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &history{buf: make([]domain.RuleMatch, limit)}
}

func (h *history) push(m domain.RuleMatch) {
	h.buf[h.next] = m
	h.next = (h.next + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
}

// recent returns up to limit matches, newest first. limit <= 0 means all.
func (h *history) recent(limit int) []domain.RuleMatch {
	if limit <= 0 || limit > h.size {
		limit = h.size
	}
	out := make([]domain.RuleMatch, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + len(h.buf)) % len(h.buf)
		out = append(out, cloneMatch(h.buf[idx]))
	}
	return out
}

func (h *history) len() int { return h.size }

func (h *history) capacity() int { return len(h.buf) }

func cloneMatch(m domain.RuleMatch) domain.RuleMatch {
	if m.Count != nil {
		v := *m.Count
		m.Count = &v
	}
	if m.WindowSeconds != nil {
		v := *m.WindowSeconds
		m.WindowSeconds = &v
	}
	return m
}
