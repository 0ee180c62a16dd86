package groups

import (
	"context"
	"sync"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
	"github.com/vowels52/SyncUp-sub000/internal/reconcile"
)

// Reconciler keeps the group directory in sync, folding membership
// notifications into the derived member counts and the viewer's own
// membership flags.
type Reconciler struct {
	gw       gateway.Gateway
	asm      *Assembler
	viewerID string

	mu  sync.Mutex
	col *reconcile.Collection[Group]

	groups  *reconcile.Handle
	members *reconcile.Handle
}

func NewReconciler(gw gateway.Gateway, viewerID string) *Reconciler {
	return &Reconciler{
		gw:       gw,
		asm:      NewAssembler(gw),
		viewerID: viewerID,
		col: reconcile.NewCollection[Group](func(a, b Group) bool {
			return a.CreatedAt.After(b.CreatedAt)
		}),
	}
}

func (r *Reconciler) Load(ctx context.Context) error {
	rows, err := r.gw.Query(ctx, "groups", gateway.Query{OrderBy: "created_at", Desc: true})
	if err != nil {
		return err
	}
	assembled := r.asm.AssembleGroups(ctx, r.viewerID, rows)
	r.mu.Lock()
	r.col.Replace(assembled)
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) Attach(ctx context.Context) error {
	groups, err := reconcile.Attach(r.gw, "groups", gateway.Filter{}, func(ev gateway.Event) {
		r.applyGroup(ctx, ev)
	})
	if err != nil {
		return err
	}
	members, err := reconcile.Attach(r.gw, "group_members", gateway.Filter{}, func(ev gateway.Event) {
		r.applyMember(ctx, ev)
	})
	if err != nil {
		groups.Close()
		return err
	}
	r.mu.Lock()
	r.groups = groups
	r.members = members
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) Close() {
	r.mu.Lock()
	groups, members := r.groups, r.members
	r.mu.Unlock()
	if groups != nil {
		groups.Close()
	}
	if members != nil {
		members.Close()
	}
}

func (r *Reconciler) Groups() []Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.col.Items()
}

func (r *Reconciler) applyGroup(ctx context.Context, ev gateway.Event) {
	switch ev.Action {
	case gateway.ActionInsert:
		group := r.asm.AssembleGroup(ctx, r.viewerID, ev.Row)
		r.mu.Lock()
		if r.groups != nil && !r.groups.Alive() {
			r.mu.Unlock()
			return
		}
		r.col.Upsert(group)
		r.mu.Unlock()
	case gateway.ActionUpdate:
		r.mu.Lock()
		r.col.Patch(ev.Row.String("id"), func(g *Group) {
			if _, ok := ev.Row["name"]; ok {
				g.Name = ev.Row.String("name")
			}
			if _, ok := ev.Row["description"]; ok {
				g.Description = ev.Row.String("description")
			}
			if _, ok := ev.Row["category"]; ok {
				g.Category = ev.Row.String("category")
			}
		})
		r.mu.Unlock()
	case gateway.ActionDelete:
		r.mu.Lock()
		r.col.Remove(ev.Row.String("id"))
		r.mu.Unlock()
	}
}

func (r *Reconciler) applyMember(ctx context.Context, ev gateway.Event) {
	switch ev.Action {
	case gateway.ActionInsert:
		groupID := ev.Row.String("group_id")
		userID := ev.Row.String("user_id")
		r.mu.Lock()
		r.col.Patch(groupID, func(g *Group) {
			g.MemberCount++
			if userID == r.viewerID {
				g.IsMember = true
				g.Role = ev.Row.String("role")
				if g.Role == "" {
					g.Role = RoleMember
				}
			}
		})
		r.mu.Unlock()
	case gateway.ActionDelete:
		// Membership deletes carry the join row's key only; refetch the
		// derived membership state for the groups on screen.
		r.refetchMembership(ctx)
	}
}

func (r *Reconciler) refetchMembership(ctx context.Context) {
	r.mu.Lock()
	items := r.col.Items()
	r.mu.Unlock()
	ids := make([]string, len(items))
	for i, g := range items {
		ids[i] = g.ID
	}
	if len(ids) == 0 {
		return
	}
	counts := r.asm.fetchMemberCounts(ctx, ids)
	mine := r.asm.fetchViewerMemberships(ctx, r.viewerID, ids)
	r.mu.Lock()
	if r.members != nil && !r.members.Alive() {
		r.mu.Unlock()
		return
	}
	r.col.PatchAll(func(g *Group) {
		g.MemberCount = counts[g.ID]
		role, ok := mine[g.ID]
		g.IsMember = ok
		g.Role = role
	})
	r.mu.Unlock()
}

// ChatReconciler keeps one group's message stream in sync and watches the
// group row itself: when another member deletes the group mid-chat, the
// terminal state trips exactly once and later queued notifications are
// dropped, so the viewer gets a single notice instead of a silent stall.
type ChatReconciler struct {
	gw      gateway.Gateway
	asm     *Assembler
	groupID string
	viewer  string

	mu  sync.Mutex
	col *reconcile.Collection[Message]

	messages *reconcile.Handle
	group    *reconcile.Handle

	GroupDeleted reconcile.Terminal
}

func NewChatReconciler(gw gateway.Gateway, viewerID, groupID string) *ChatReconciler {
	return &ChatReconciler{
		gw:      gw,
		asm:     NewAssembler(gw),
		groupID: groupID,
		viewer:  viewerID,
		col: reconcile.NewCollection[Message](func(a, b Message) bool {
			return a.CreatedAt.Before(b.CreatedAt)
		}),
	}
}

func (r *ChatReconciler) Load(ctx context.Context) error {
	rows, err := r.gw.Query(ctx, "group_messages", gateway.Query{
		Filter:  gateway.Eq("group_id", r.groupID),
		OrderBy: "created_at",
	})
	if err != nil {
		return err
	}
	messages := make([]Message, len(rows))
	senderIDs := make([]string, len(rows))
	for i, row := range rows {
		messages[i] = messageFromRow(row)
		senderIDs[i] = messages[i].SenderID
	}
	names := r.asm.fetchSenderNames(ctx, senderIDs)
	for i := range messages {
		messages[i].SenderName = names[messages[i].SenderID]
	}
	r.mu.Lock()
	r.col.Replace(messages)
	r.mu.Unlock()
	return nil
}

func (r *ChatReconciler) Attach(ctx context.Context) error {
	messages, err := reconcile.Attach(r.gw, "group_messages", gateway.Eq("group_id", r.groupID), func(ev gateway.Event) {
		r.applyMessage(ctx, ev)
	})
	if err != nil {
		return err
	}
	group, err := reconcile.Attach(r.gw, "groups", gateway.Eq("id", r.groupID), func(ev gateway.Event) {
		if ev.Action == gateway.ActionDelete && ev.Row.String("id") == r.groupID {
			r.GroupDeleted.Trip()
		}
	})
	if err != nil {
		messages.Close()
		return err
	}
	r.mu.Lock()
	r.messages = messages
	r.group = group
	r.mu.Unlock()
	return nil
}

func (r *ChatReconciler) Close() {
	r.mu.Lock()
	messages, group := r.messages, r.group
	r.mu.Unlock()
	if messages != nil {
		messages.Close()
	}
	if group != nil {
		group.Close()
	}
}

func (r *ChatReconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.col.Items()
}

func (r *ChatReconciler) applyMessage(ctx context.Context, ev gateway.Event) {
	if r.GroupDeleted.Done() {
		return
	}
	switch ev.Action {
	case gateway.ActionInsert:
		msg := messageFromRow(ev.Row)
		if names := r.asm.fetchSenderNames(ctx, []string{msg.SenderID}); names != nil {
			msg.SenderName = names[msg.SenderID]
		}
		r.mu.Lock()
		if r.messages != nil && !r.messages.Alive() {
			r.mu.Unlock()
			return
		}
		r.col.Upsert(msg)
		r.mu.Unlock()
	case gateway.ActionUpdate:
		r.mu.Lock()
		r.col.Patch(ev.Row.String("id"), func(m *Message) {
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

// Unread counts messages from other members newer than the viewer's
// last-read timestamp.
func (r *ChatReconciler) Unread(ctx context.Context) int {
	rows, err := r.gw.Query(ctx, "group_reads", gateway.Query{
		Filter: gateway.Eq("group_id", r.groupID).And("user_id", gateway.OpEq, r.viewer),
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
	for _, msg := range r.col.Items() {
		if msg.SenderID != r.viewer && msg.CreatedAt.UnixNano() > lastRead {
			unread++
		}
	}
	return unread
}
