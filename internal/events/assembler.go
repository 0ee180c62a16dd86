package events

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

// Assembler merges event rows with attendee counts and the viewer's own
// RSVP, each facet one batched IN-query.
type Assembler struct {
	gw gateway.Gateway
}

func NewAssembler(gw gateway.Gateway) *Assembler {
	return &Assembler{gw: gw}
}

// Upcoming fetches events starting at or after the given time, soonest
// first, fully assembled.
func (a *Assembler) Upcoming(ctx context.Context, viewerID string, from time.Time) ([]Event, error) {
	rows, err := a.gw.Query(ctx, "events", gateway.Query{
		Filter:  gateway.Where("starts_at", gateway.OpGte, from.UTC()),
		OrderBy: "starts_at",
	})
	if err != nil {
		return nil, err
	}
	return a.AssembleEvents(ctx, viewerID, rows), nil
}

func (a *Assembler) AssembleEvents(ctx context.Context, viewerID string, rows []gateway.Row) []Event {
	out := make([]Event, len(rows))
	ids := make([]string, len(rows))
	for i, row := range rows {
		out[i] = eventFromRow(row)
		ids[i] = out[i].ID
	}
	if len(out) == 0 {
		return out
	}

	var counts map[string]int
	var going map[string]bool
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		counts = a.fetchAttendeeCounts(ctx, ids)
	}()
	go func() {
		defer wg.Done()
		going = a.fetchViewerRSVPs(ctx, viewerID, ids)
	}()
	wg.Wait()

	for i := range out {
		out[i].AttendeeCount = counts[out[i].ID]
		out[i].IsGoing = going[out[i].ID]
	}
	return out
}

func (a *Assembler) AssembleEvent(ctx context.Context, viewerID string, row gateway.Row) Event {
	return a.AssembleEvents(ctx, viewerID, []gateway.Row{row})[0]
}

// fetchAttendeeCounts counts only "going" rows; other statuses stay out
// of the headline number.
func (a *Assembler) fetchAttendeeCounts(ctx context.Context, ids []string) map[string]int {
	rows, err := a.gw.Query(ctx, "event_attendees", gateway.Query{
		Select: []string{"event_id"},
		Filter: gateway.In("event_id", ids).And("status", gateway.OpEq, StatusGoing),
	})
	if err != nil {
		log.Printf("events: attendee count lookup degraded: %v", err)
		return nil
	}
	counts := map[string]int{}
	for _, row := range rows {
		counts[row.String("event_id")]++
	}
	return counts
}

// fetchViewerRSVPs is the viewer-relative second query.
func (a *Assembler) fetchViewerRSVPs(ctx context.Context, viewerID string, ids []string) map[string]bool {
	if viewerID == "" {
		return nil
	}
	rows, err := a.gw.Query(ctx, "event_attendees", gateway.Query{
		Select: []string{"event_id"},
		Filter: gateway.In("event_id", ids).
			And("user_id", gateway.OpEq, viewerID).
			And("status", gateway.OpEq, StatusGoing),
	})
	if err != nil {
		log.Printf("events: viewer rsvp lookup degraded: %v", err)
		return nil
	}
	going := map[string]bool{}
	for _, row := range rows {
		going[row.String("event_id")] = true
	}
	return going
}
