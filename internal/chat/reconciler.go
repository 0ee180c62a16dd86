package chat

import (
	"context"
	"log"
	"sync"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
	"github.com/vowels52/SyncUp-sub000/internal/reconcile"
)

// conversationFilter matches messages in either direction between the
// viewer and the peer.
func conversationFilter(viewerID, peerID string) gateway.Filter {
	return gateway.AnyOf(
		gateway.Eq("sender_id", viewerID).And("recipient_id", gateway.OpEq, peerID),
		gateway.Eq("sender_id", peerID).And("recipient_id", gateway.OpEq, viewerID),
	)
}

// Reconciler keeps one direct-message conversation in sync, ascending by
// send time regardless of delivery order.
type Reconciler struct {
	gw       gateway.Gateway
	viewerID string
	peerID   string

	mu  sync.Mutex
	col *reconcile.Collection[DirectMessage]

	handle *reconcile.Handle
}

func NewReconciler(gw gateway.Gateway, viewerID, peerID string) *Reconciler {
	return &Reconciler{
		gw:       gw,
		viewerID: viewerID,
		peerID:   peerID,
		col: reconcile.NewCollection[DirectMessage](func(a, b DirectMessage) bool {
			return a.CreatedAt.Before(b.CreatedAt)
		}),
	}
}

func (r *Reconciler) Load(ctx context.Context) error {
	rows, err := r.gw.Query(ctx, "direct_messages", gateway.Query{
		Filter:  conversationFilter(r.viewerID, r.peerID),
		OrderBy: "created_at",
	})
	if err != nil {
		return err
	}
	msgs := make([]DirectMessage, len(rows))
	for i, row := range rows {
		msgs[i] = messageFromRow(row)
	}
	r.enrich(ctx, msgs)
	r.mu.Lock()
	r.col.Replace(msgs)
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) Attach(ctx context.Context) error {
	handle, err := reconcile.Attach(r.gw, "direct_messages", conversationFilter(r.viewerID, r.peerID), func(ev gateway.Event) {
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

func (r *Reconciler) Messages() []DirectMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.col.Items()
}

func (r *Reconciler) apply(ctx context.Context, ev gateway.Event) {
	switch ev.Action {
	case gateway.ActionInsert:
		msgs := []DirectMessage{messageFromRow(ev.Row)}
		r.enrich(ctx, msgs)
		r.mu.Lock()
		if r.handle != nil && !r.handle.Alive() {
			r.mu.Unlock()
			return
		}
		r.col.Upsert(msgs[0])
		r.mu.Unlock()
	case gateway.ActionUpdate:
		r.mu.Lock()
		r.col.Patch(ev.Row.String("id"), func(m *DirectMessage) {
			if _, ok := ev.Row["body"]; ok {
				m.Body = ev.Row.String("body")
			}
		})
		r.mu.Unlock()
	case gateway.ActionDelete:
		r.mu.Lock()
		r.col.Remove(ev.Row.String("id"))
		r.mu.Unlock()
	}
}

func (r *Reconciler) enrich(ctx context.Context, msgs []DirectMessage) {
	if len(msgs) == 0 {
		return
	}
	ids := make([]string, 0, 2)
	seen := map[string]bool{}
	for _, m := range msgs {
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			ids = append(ids, m.SenderID)
		}
	}
	rows, err := r.gw.Query(ctx, "profiles", gateway.Query{
		Select: []string{"id", "display_name"},
		Filter: gateway.In("id", ids),
	})
	if err != nil {
		log.Printf("chat: sender lookup degraded: %v", err)
		return
	}
	names := map[string]string{}
	for _, row := range rows {
		names[row.String("id")] = row.String("display_name")
	}
	for i := range msgs {
		msgs[i].SenderName = names[msgs[i].SenderID]
	}
}

// Unread counts the peer's messages newer than the viewer's last-read
// watermark for this conversation.
func (r *Reconciler) Unread(ctx context.Context) int {
	rows, err := r.gw.Query(ctx, "dm_reads", gateway.Query{
		Filter: gateway.Eq("user_id", r.viewerID).And("peer_id", gateway.OpEq, r.peerID),
		Limit:  1,
	})
	if err != nil {
		return 0
	}
	lastRead := int64(0)
	if len(rows) > 0 {
		lastRead = rows[0].Time("last_read_at").UnixNano()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	unread := 0
	for _, m := range r.col.Items() {
		if m.SenderID == r.peerID && m.CreatedAt.UnixNano() > lastRead {
			unread++
		}
	}
	return unread
}
