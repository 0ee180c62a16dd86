package gateway

import (
	"context"
	"testing"
	"time"
)

func TestMemoryInsertDefaults(t *testing.T) {
	gw := NewMemory()
	ctx := context.Background()

	row, err := gw.Insert(ctx, "posts", Row{"title": "hello"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if row.String("id") == "" {
		t.Fatalf("id not defaulted")
	}
	if row.Time("created_at").IsZero() {
		t.Fatalf("created_at not defaulted")
	}

	// Caller-provided values win.
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	row, err = gw.Insert(ctx, "posts", Row{"id": "p1", "created_at": at})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if row.String("id") != "p1" || !row.Time("created_at").Equal(at) {
		t.Fatalf("provided values overwritten: %v", row)
	}
}

func TestMemoryQueryOrderLimitSelect(t *testing.T) {
	gw := NewMemory()
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		if _, err := gw.Insert(ctx, "posts", Row{
			"id": id, "rank": i, "title": "t-" + id,
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	rows, err := gw.Query(ctx, "posts", Query{OrderBy: "rank", Desc: true, Limit: 2, Select: []string{"id"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 || rows[0].String("id") != "c" || rows[1].String("id") != "b" {
		t.Fatalf("wrong rows: %v", rows)
	}
	if _, ok := rows[0]["title"]; ok {
		t.Fatalf("select did not trim columns")
	}
}

func TestMemoryFilterOps(t *testing.T) {
	gw := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []Row{
		{"id": "a", "n": 1, "at": base},
		{"id": "b", "n": 2, "at": base.Add(time.Hour)},
		{"id": "c", "n": 3, "at": base.Add(2 * time.Hour)},
	}
	for _, row := range seed {
		if _, err := gw.Insert(ctx, "t", row); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	cases := []struct {
		name string
		f    Filter
		want int
	}{
		{"eq", Eq("id", "b"), 1},
		{"in", In("id", []string{"a", "c"}), 2},
		{"gte number", Where("n", OpGte, 2), 2},
		{"lte time", Where("at", OpLte, base.Add(time.Hour)), 2},
		{"and", Eq("id", "b").And("n", OpGte, 2), 1},
		{"any of", AnyOf(Eq("id", "a"), Eq("id", "b")), 2},
		{"missing column", Eq("nope", "x"), 0},
	}
	for _, tc := range cases {
		n, err := gw.Count(ctx, "t", tc.f)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if n != tc.want {
			t.Fatalf("%s: expected %d rows, got %d", tc.name, tc.want, n)
		}
	}
}

func TestMemorySubscribeFiltering(t *testing.T) {
	gw := NewMemory()
	ctx := context.Background()

	var got []Event
	sub, err := gw.Subscribe("posts", Eq("author_id", "ana"), func(ev Event) {
		got = append(got, ev)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if _, err := gw.Insert(ctx, "posts", Row{"id": "p1", "author_id": "ana"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := gw.Insert(ctx, "posts", Row{"id": "p2", "author_id": "ben"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(got) != 1 || got[0].Row.String("id") != "p1" {
		t.Fatalf("filter not applied to inserts: %v", got)
	}

	// Deletes bypass the filter, since the payload is key-only.
	if _, err := gw.Delete(ctx, "posts", Eq("id", "p2")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(got) != 2 || got[1].Action != ActionDelete {
		t.Fatalf("delete not delivered: %v", got)
	}
	if len(got[1].Row) != 1 || got[1].Row.String("id") != "p2" {
		t.Fatalf("delete payload not key-only: %v", got[1].Row)
	}
}

func TestMemorySubscribeCloseStopsDelivery(t *testing.T) {
	gw := NewMemory()
	ctx := context.Background()

	count := 0
	sub, err := gw.Subscribe("posts", Filter{}, func(Event) { count++ })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := gw.Insert(ctx, "posts", Row{"id": "p1"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	sub.Close()
	sub.Close()
	if _, err := gw.Insert(ctx, "posts", Row{"id": "p2"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 delivery, got %d", count)
	}
}

func TestMemoryUpdatePublishesPerRow(t *testing.T) {
	gw := NewMemory()
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if _, err := gw.Insert(ctx, "t", Row{"id": id, "k": "x"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	var updates int
	sub, _ := gw.Subscribe("t", Filter{}, func(ev Event) {
		if ev.Action == ActionUpdate {
			updates++
		}
	})
	defer sub.Close()

	changed, err := gw.Update(ctx, "t", Eq("k", "x"), Row{"k": "y"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(changed) != 2 || updates != 2 {
		t.Fatalf("expected 2 changed rows and 2 events, got %d/%d", len(changed), updates)
	}
}

func TestMemoryCanceledContext(t *testing.T) {
	gw := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := gw.Query(ctx, "t", Query{}); err == nil {
		t.Fatalf("expected context error")
	}
	if _, err := gw.Insert(ctx, "t", Row{}); err == nil {
		t.Fatalf("expected context error")
	}
}
