package reconcile

import (
	"sync"
	"sync/atomic"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

// Handle owns one attached change-feed listener. Close detaches exactly
// once; events and late fetch results arriving after Close are dropped so
// a stale reconciler never mutates a collection that is no longer shown.
type Handle struct {
	sub   gateway.Subscription
	alive atomic.Bool
	once  sync.Once
}

// Attach registers apply against the gateway's change feed. Events are
// delivered in feed order; the wrapper only filters out post-Close
// delivery.
func Attach(gw gateway.Subscriber, table string, f gateway.Filter, apply gateway.Handler) (*Handle, error) {
	h := &Handle{}
	h.alive.Store(true)
	sub, err := gw.Subscribe(table, f, func(ev gateway.Event) {
		if !h.alive.Load() {
			return
		}
		apply(ev)
	})
	if err != nil {
		return nil, err
	}
	h.sub = sub
	return h, nil
}

// Alive reports whether results may still be applied. In-flight fetches
// resolving after Close must check this before touching local state.
func (h *Handle) Alive() bool {
	return h.alive.Load()
}

func (h *Handle) Close() {
	h.once.Do(func() {
		h.alive.Store(false)
		if h.sub != nil {
			h.sub.Close()
		}
	})
}

// Terminal latches a one-time end state, such as "the entity you are
// viewing was deleted". Trip reports true only for the first caller, so a
// burst of queued notifications surfaces a single notice.
type Terminal struct {
	done atomic.Bool
}

func (t *Terminal) Trip() bool {
	return t.done.CompareAndSwap(false, true)
}

func (t *Terminal) Done() bool {
	return t.done.Load()
}
