package connections

import (
	"context"
	"log"
	"sync"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
	"github.com/vowels52/SyncUp-sub000/internal/reconcile"
)

// Reconciler maintains the viewer's three connection buckets (pending
// incoming, pending outgoing, accepted) from a single change feed scoped
// to edges touching the viewer. A status update moves a row between
// buckets; a delete drops it from all of them.
type Reconciler struct {
	gw       gateway.Gateway
	viewerID string

	mu       sync.Mutex
	incoming *reconcile.Collection[Connection]
	outgoing *reconcile.Collection[Connection]
	accepted *reconcile.Collection[Connection]

	handle *reconcile.Handle
}

func NewReconciler(gw gateway.Gateway, viewerID string) *Reconciler {
	newest := func(a, b Connection) bool { return a.CreatedAt.After(b.CreatedAt) }
	return &Reconciler{
		gw:       gw,
		viewerID: viewerID,
		incoming: reconcile.NewCollection[Connection](newest),
		outgoing: reconcile.NewCollection[Connection](newest),
		accepted: reconcile.NewCollection[Connection](newest),
	}
}

func (r *Reconciler) scope() gateway.Filter {
	return gateway.AnyOf(
		gateway.Eq("requester_id", r.viewerID),
		gateway.Eq("target_id", r.viewerID),
	)
}

func (r *Reconciler) Load(ctx context.Context) error {
	rows, err := r.gw.Query(ctx, "connections", gateway.Query{
		Filter:  r.scope(),
		OrderBy: "created_at",
		Desc:    true,
	})
	if err != nil {
		return err
	}
	conns := make([]Connection, len(rows))
	for i, row := range rows {
		conns[i] = connectionFromRow(row)
	}
	r.enrichPeers(ctx, conns)

	r.mu.Lock()
	r.incoming.Replace(nil)
	r.outgoing.Replace(nil)
	r.accepted.Replace(nil)
	for _, conn := range conns {
		r.bucketFor(conn).Upsert(conn)
	}
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) Attach(ctx context.Context) error {
	handle, err := reconcile.Attach(r.gw, "connections", r.scope(), func(ev gateway.Event) {
		r.apply(ctx, ev)
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.handle = handle
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) Close() {
	r.mu.Lock()
	handle := r.handle
	r.mu.Unlock()
	if handle != nil {
		handle.Close()
	}
}

func (r *Reconciler) Incoming() []Connection { return r.snapshot(r.incoming) }
func (r *Reconciler) Outgoing() []Connection { return r.snapshot(r.outgoing) }
func (r *Reconciler) Accepted() []Connection { return r.snapshot(r.accepted) }

func (r *Reconciler) snapshot(col *reconcile.Collection[Connection]) []Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return col.Items()
}

func (r *Reconciler) apply(ctx context.Context, ev gateway.Event) {
	switch ev.Action {
	case gateway.ActionInsert, gateway.ActionUpdate:
		conn := connectionFromRow(ev.Row)
		conns := []Connection{conn}
		r.enrichPeers(ctx, conns)
		conn = conns[0]
		r.mu.Lock()
		if r.handle != nil && !r.handle.Alive() {
			r.mu.Unlock()
			return
		}
		// A status change moves the edge between buckets, so clear it from
		// the ones it no longer belongs to first.
		for _, col := range r.buckets() {
			if col != r.bucketFor(conn) {
				col.Remove(conn.ID)
			}
		}
		if r.bucketFor(conn) != nil {
			r.bucketFor(conn).Upsert(conn)
		}
		r.mu.Unlock()
	case gateway.ActionDelete:
		id := ev.Row.String("id")
		r.mu.Lock()
		for _, col := range r.buckets() {
			col.Remove(id)
		}
		r.mu.Unlock()
	}
}

func (r *Reconciler) buckets() []*reconcile.Collection[Connection] {
	return []*reconcile.Collection[Connection]{r.incoming, r.outgoing, r.accepted}
}

// bucketFor places a connection: accepted edges in one bucket regardless
// of direction, pending ones split by direction, rejected ones nowhere.
func (r *Reconciler) bucketFor(conn Connection) *reconcile.Collection[Connection] {
	switch conn.Status {
	case StatusAccepted:
		return r.accepted
	case StatusPending:
		if conn.Incoming(r.viewerID) {
			return r.incoming
		}
		return r.outgoing
	}
	return nil
}

func (r *Reconciler) enrichPeers(ctx context.Context, conns []Connection) {
	ids := make([]string, len(conns))
	for i, conn := range conns {
		ids[i] = conn.PeerID(r.viewerID)
	}
	if len(ids) == 0 {
		return
	}
	rows, err := r.gw.Query(ctx, "profiles", gateway.Query{Filter: gateway.In("id", ids)})
	if err != nil {
		log.Printf("connections: peer lookup degraded: %v", err)
		return
	}
	peers := map[string]Peer{}
	for _, row := range rows {
		peers[row.String("id")] = Peer{
			ID:          row.String("id"),
			DisplayName: row.String("display_name"),
			AvatarURL:   row.String("avatar_url"),
		}
	}
	for i := range conns {
		if peer, ok := peers[conns[i].PeerID(r.viewerID)]; ok {
			conns[i].Peer = peer
		} else {
			conns[i].Peer = Peer{ID: conns[i].PeerID(r.viewerID), DisplayName: "Anonymous"}
		}
	}
}
