package watcher

import (
	"sort"
	"sync"
	"time"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

type pendingChange struct {
	eventType domain.EventType
	gen       uint64
	timer     *time.Timer
}

// debouncer collapses bursts of changes per path into a single event.
// The last change wins, except that created followed by modified stays
// created and created followed by deleted is dropped entirely.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	pending map[string]*pendingChange
	emit    func(path string, eventType domain.EventType)
}

func newDebouncer(delay time.Duration, emit func(string, domain.EventType)) *debouncer {
	return &debouncer{
		delay:   delay,
		pending: make(map[string]*pendingChange),
		emit:    emit,
	}
}

func (d *debouncer) submit(path string, eventType domain.EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, exists := d.pending[path]
	if !exists {
		p = &pendingChange{eventType: eventType}
		d.pending[path] = p
	} else {
		p.timer.Stop()
		switch {
		case p.eventType == domain.EventCreated && eventType == domain.EventModified:
		case p.eventType == domain.EventCreated && eventType == domain.EventDeleted:
			delete(d.pending, path)
			return
		default:
			p.eventType = eventType
		}
	}

	p.gen++
	gen := p.gen
	p.timer = time.AfterFunc(d.delay, func() { d.fire(path, gen) })
}

// fire emits the pending change for path if no newer change superseded it
func (d *debouncer) fire(path string, gen uint64) {
	d.mu.Lock()
	p, exists := d.pending[path]
	if !exists || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	d.mu.Unlock()

	d.emit(path, p.eventType)
}

// flushAll emits every pending change immediately, in path order
func (d *debouncer) flushAll() {
	d.mu.Lock()
	paths := make([]string, 0, len(d.pending))
	changes := make(map[string]domain.EventType, len(d.pending))
	for path, p := range d.pending {
		p.timer.Stop()
		paths = append(paths, path)
		changes[path] = p.eventType
	}
	d.pending = make(map[string]*pendingChange)
	d.mu.Unlock()

	sort.Strings(paths)
	for _, path := range paths {
		d.emit(path, changes[path])
	}
}

// stop discards pending changes without emitting them
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pending {
		p.timer.Stop()
	}
	d.pending = make(map[string]*pendingChange)
}

func (d *debouncer) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
