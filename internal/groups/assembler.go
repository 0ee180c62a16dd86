package groups

import (
	"context"
	"log"
	"sync"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

// Assembler merges group rows with member counts and the viewer's own
// membership, each facet one batched IN-query.
type Assembler struct {
	gw gateway.Gateway
}

func NewAssembler(gw gateway.Gateway) *Assembler {
	return &Assembler{gw: gw}
}

func (a *Assembler) AssembleGroups(ctx context.Context, viewerID string, rows []gateway.Row) []Group {
	out := make([]Group, len(rows))
	ids := make([]string, len(rows))
	for i, row := range rows {
		out[i] = groupFromRow(row)
		ids[i] = out[i].ID
	}
	if len(out) == 0 {
		return out
	}

	var counts map[string]int
	var mine map[string]string
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		counts = a.fetchMemberCounts(ctx, ids)
	}()
	go func() {
		defer wg.Done()
		mine = a.fetchViewerMemberships(ctx, viewerID, ids)
	}()
	wg.Wait()

	for i := range out {
		out[i].MemberCount = counts[out[i].ID]
		if role, ok := mine[out[i].ID]; ok {
			out[i].IsMember = true
			out[i].Role = role
		}
	}
	return out
}

func (a *Assembler) AssembleGroup(ctx context.Context, viewerID string, row gateway.Row) Group {
	return a.AssembleGroups(ctx, viewerID, []gateway.Row{row})[0]
}

func (a *Assembler) fetchMemberCounts(ctx context.Context, ids []string) map[string]int {
	rows, err := a.gw.Query(ctx, "group_members", gateway.Query{
		Select: []string{"group_id"},
		Filter: gateway.In("group_id", ids),
	})
	if err != nil {
		log.Printf("groups: member count lookup degraded: %v", err)
		return nil
	}
	counts := map[string]int{}
	for _, row := range rows {
		counts[row.String("group_id")]++
	}
	return counts
}

// fetchViewerMemberships is the viewer-relative second query; the result
// maps group id to the viewer's role.
func (a *Assembler) fetchViewerMemberships(ctx context.Context, viewerID string, ids []string) map[string]string {
	if viewerID == "" {
		return nil
	}
	rows, err := a.gw.Query(ctx, "group_members", gateway.Query{
		Filter: gateway.In("group_id", ids).And("user_id", gateway.OpEq, viewerID),
	})
	if err != nil {
		log.Printf("groups: viewer membership lookup degraded: %v", err)
		return nil
	}
	mine := map[string]string{}
	for _, row := range rows {
		role := row.String("role")
		if role == "" {
			role = RoleMember
		}
		mine[row.String("group_id")] = role
	}
	return mine
}

func (a *Assembler) fetchSenderNames(ctx context.Context, ids []string) map[string]string {
	rows, err := a.gw.Query(ctx, "profiles", gateway.Query{
		Select: []string{"id", "display_name"},
		Filter: gateway.In("id", ids),
	})
	if err != nil {
		log.Printf("groups: sender lookup degraded: %v", err)
		return nil
	}
	names := map[string]string{}
	for _, row := range rows {
		names[row.String("id")] = row.String("display_name")
	}
	return names
}
