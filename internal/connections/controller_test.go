package connections

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

func TestSendRequest(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()

	c := NewController(gw, "me", time.Second)
	if err := c.SendRequest(ctx, "bob"); err != nil {
		t.Fatalf("send: %v", err)
	}
	rows, err := gw.Query(ctx, "connections", gateway.Query{Filter: gateway.Eq("requester_id", "me")})
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected one request, got %d (%v)", len(rows), err)
	}
	if rows[0].String("status") != StatusPending {
		t.Fatalf("expected pending status")
	}

	// The pair already has an edge, in either direction.
	if err := c.SendRequest(ctx, "bob"); err == nil {
		t.Fatalf("expected duplicate-pair rejection")
	}
	other := NewController(gw, "bob", time.Second)
	if err := other.SendRequest(ctx, "me"); err == nil {
		t.Fatalf("expected reverse-direction rejection")
	}
}

func TestSendRequestValidation(t *testing.T) {
	c := NewController(gateway.NewMemory(), "me", time.Second)
	if err := c.SendRequest(context.Background(), "me"); err == nil {
		t.Fatalf("expected self-connection rejection")
	}
	c = NewController(gateway.NewMemory(), "", time.Second)
	if err := c.SendRequest(context.Background(), "bob"); err == nil {
		t.Fatalf("expected signed-out rejection")
	}
}

func TestRespond(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()
	if _, err := gw.Insert(ctx, "connections", gateway.Row{
		"id": "c1", "requester_id": "alice", "target_id": "me", "status": StatusPending,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Only the recipient may respond.
	wrongSide := NewController(gw, "alice", time.Second)
	err := wrongSide.Respond(ctx, "c1", true)
	var fault *gateway.Fault
	if !errors.As(err, &fault) || fault.Kind != gateway.FaultDenied {
		t.Fatalf("expected denied fault, got %v", err)
	}

	c := NewController(gw, "me", time.Second)
	if err := c.Respond(ctx, "c1", true); err != nil {
		t.Fatalf("respond: %v", err)
	}
	rows, _ := gw.Query(ctx, "connections", gateway.Query{Filter: gateway.Eq("id", "c1")})
	if rows[0].String("status") != StatusAccepted {
		t.Fatalf("expected accepted status")
	}

	if err := c.Respond(ctx, "c1", false); err == nil {
		t.Fatalf("expected already-resolved rejection")
	}
	if err := c.Respond(ctx, "missing", true); !gateway.IsVanished(err) {
		t.Fatalf("expected vanished fault, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()
	if _, err := gw.Insert(ctx, "connections", gateway.Row{
		"id": "c1", "requester_id": "me", "target_id": "bob", "status": StatusAccepted,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stranger := NewController(gw, "carol", time.Second)
	if err := stranger.Remove(ctx, "c1"); err == nil {
		t.Fatalf("expected denied fault")
	}

	c := NewController(gw, "me", time.Second)
	if err := c.Remove(ctx, "c1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n, _ := gw.Count(ctx, "connections", gateway.Filter{}); n != 0 {
		t.Fatalf("edge not removed")
	}
	// Removing a gone edge is not an error.
	if err := c.Remove(ctx, "c1"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}
