package connections

import (
	"context"
	"testing"
	"time"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

func TestReconcilerBuckets(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()

	r := NewReconciler(gw, "me")
	if err := r.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := r.Attach(ctx); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer r.Close()

	// Incoming request targeting the viewer grows the pending bucket.
	row, err := gw.Insert(ctx, "connections", gateway.Row{
		"id": "c1", "requester_id": "alice", "target_id": "me", "status": StatusPending,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if got := r.Incoming(); len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("expected incoming [c1], got %+v", got)
	}
	if len(r.Accepted()) != 0 || len(r.Outgoing()) != 0 {
		t.Fatalf("other buckets must stay empty")
	}

	// Accepting moves the row from pending incoming to accepted.
	if _, err := gw.Update(ctx, "connections", gateway.Eq("id", row.String("id")), gateway.Row{"status": StatusAccepted}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(r.Incoming()) != 0 {
		t.Fatalf("accepted row still pending")
	}
	if got := r.Accepted(); len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("expected accepted [c1], got %+v", got)
	}

	// Edges not touching the viewer never appear.
	if _, err := gw.Insert(ctx, "connections", gateway.Row{
		"id": "c2", "requester_id": "alice", "target_id": "bob", "status": StatusPending,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(r.Incoming())+len(r.Outgoing())+len(r.Accepted()) != 1 {
		t.Fatalf("foreign edge leaked into viewer buckets")
	}
}

func TestReconcilerOutgoingAndDelete(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()

	r := NewReconciler(gw, "me")
	if err := r.Attach(ctx); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer r.Close()

	if _, err := gw.Insert(ctx, "connections", gateway.Row{
		"id": "c1", "requester_id": "me", "target_id": "bob", "status": StatusPending,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if got := r.Outgoing(); len(got) != 1 || !got[0].Incoming("bob") {
		t.Fatalf("expected outgoing request, got %+v", got)
	}

	if _, err := gw.Delete(ctx, "connections", gateway.Eq("id", "c1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(r.Outgoing()) != 0 {
		t.Fatalf("deleted edge still present")
	}
	// Replayed delete is a no-op.
	r.apply(ctx, gateway.Event{Action: gateway.ActionDelete, Table: "connections", Row: gateway.Row{"id": "c1"}})
	if len(r.Outgoing()) != 0 {
		t.Fatalf("replayed delete changed state")
	}
}

func TestReconcilerRejectedDropsOut(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()

	r := NewReconciler(gw, "me")
	if err := r.Attach(ctx); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer r.Close()

	if _, err := gw.Insert(ctx, "connections", gateway.Row{
		"id": "c1", "requester_id": "alice", "target_id": "me", "status": StatusPending,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := gw.Update(ctx, "connections", gateway.Eq("id", "c1"), gateway.Row{"status": StatusRejected}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(r.Incoming())+len(r.Outgoing())+len(r.Accepted()) != 0 {
		t.Fatalf("rejected edge must leave all buckets")
	}
}

func TestReconcilerPeerEnrichment(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()
	if _, err := gw.Insert(ctx, "profiles", gateway.Row{"id": "alice", "display_name": "Alice"}); err != nil {
		t.Fatalf("profile: %v", err)
	}
	if _, err := gw.Insert(ctx, "connections", gateway.Row{
		"id": "c1", "requester_id": "alice", "target_id": "me", "status": StatusPending, "created_at": time.Now().UTC(),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	r := NewReconciler(gw, "me")
	if err := r.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	got := r.Incoming()
	if len(got) != 1 || got[0].Peer.DisplayName != "Alice" {
		t.Fatalf("expected enriched peer, got %+v", got)
	}
}
