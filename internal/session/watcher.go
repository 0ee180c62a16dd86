package session

import (
	"context"
	"sync"
	"time"
)

// Watcher fans out viewer changes to subscribers. Auth sources that can
// push call Set directly; Poll exists as a fallback for sources that only
// expose a read.
type Watcher struct {
	mu      sync.Mutex
	current Session
	subs    map[chan Session]struct{}
	closed  bool
}

func NewWatcher() *Watcher {
	return &Watcher{subs: map[chan Session]struct{}{}}
}

func (w *Watcher) Current() Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Set publishes a new session state. Unchanged viewers are suppressed so
// a polling source firing every few seconds does not spam subscribers.
func (w *Watcher) Set(s Session) {
	w.mu.Lock()
	if w.closed || (s.UserID == w.current.UserID && s.Token == w.current.Token) {
		w.mu.Unlock()
		return
	}
	w.current = s
	subs := make([]chan Session, 0, len(w.subs))
	for ch := range w.subs {
		subs = append(subs, ch)
	}
	w.mu.Unlock()
	for _, ch := range subs {
		// Drop rather than block; a slow subscriber catches up via Current.
		select {
		case ch <- s:
		default:
		}
	}
}

// Changes returns a channel receiving session transitions. The caller
// stops it with the returned cancel func.
func (w *Watcher) Changes() (<-chan Session, func()) {
	ch := make(chan Session, 1)
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	w.subs[ch] = struct{}{}
	w.mu.Unlock()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, ch)
			w.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	subs := make([]chan Session, 0, len(w.subs))
	for ch := range w.subs {
		subs = append(subs, ch)
	}
	w.subs = map[chan Session]struct{}{}
	w.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}

// Poll drives the watcher from a read-only source until the context ends.
func (w *Watcher) Poll(ctx context.Context, interval time.Duration, read func(context.Context) (Session, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s, err := read(ctx)
			if err != nil {
				continue
			}
			w.Set(s)
		}
	}
}
