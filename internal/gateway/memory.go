package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is the gateway used in tests and by the devserver. Tables live in
// process memory and every mutation fans out change events to matching
// subscribers, in mutation order.
type Memory struct {
	mu     sync.RWMutex
	tables map[string][]Row

	subMu sync.RWMutex
	subs  map[string]map[*memorySub]struct{}

	// dispatchMu serializes event delivery so subscribers observe changes
	// strictly in mutation order.
	dispatchMu sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		tables: map[string][]Row{},
		subs:   map[string]map[*memorySub]struct{}{},
	}
}

type memorySub struct {
	gw     *Memory
	table  string
	filter Filter
	h      Handler
	once   sync.Once
}

func (s *memorySub) Close() {
	s.once.Do(func() {
		s.gw.subMu.Lock()
		defer s.gw.subMu.Unlock()
		if set, ok := s.gw.subs[s.table]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.gw.subs, s.table)
			}
		}
	})
}

func (m *Memory) Subscribe(table string, f Filter, h Handler) (Subscription, error) {
	sub := &memorySub{gw: m, table: table, filter: f, h: h}
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if m.subs[table] == nil {
		m.subs[table] = map[*memorySub]struct{}{}
	}
	m.subs[table][sub] = struct{}{}
	return sub, nil
}

func (m *Memory) Query(ctx context.Context, table string, q Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	var out []Row
	for _, row := range m.tables[table] {
		if q.Filter.Match(row) {
			out = append(out, row.Clone())
		}
	}
	m.mu.RUnlock()

	if q.OrderBy != "" {
		col, desc := q.OrderBy, q.Desc
		sort.SliceStable(out, func(i, j int) bool {
			cmp, ok := compareValues(out[i][col], out[j][col])
			if !ok {
				return false
			}
			if desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	if len(q.Select) > 0 {
		for i, row := range out {
			trimmed := Row{}
			for _, col := range q.Select {
				if v, ok := row[col]; ok {
					trimmed[col] = v
				}
			}
			out[i] = trimmed
		}
	}
	return out, nil
}

func (m *Memory) Count(ctx context.Context, table string, f Filter) (int, error) {
	rows, err := m.Query(ctx, table, Query{Filter: f})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (m *Memory) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := row.Clone()
	if stored.String("id") == "" {
		stored["id"] = uuid.NewString()
	}
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = time.Now().UTC()
	}
	m.mu.Lock()
	m.tables[table] = append(m.tables[table], stored)
	m.mu.Unlock()

	m.publish(Event{Action: ActionInsert, Table: table, Row: stored.Clone()})
	return stored.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, table string, f Filter, patch Row) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	var changed []Row
	for _, row := range m.tables[table] {
		if !f.Match(row) {
			continue
		}
		for k, v := range patch {
			row[k] = v
		}
		changed = append(changed, row.Clone())
	}
	m.mu.Unlock()

	for _, row := range changed {
		m.publish(Event{Action: ActionUpdate, Table: table, Row: row.Clone()})
	}
	return changed, nil
}

func (m *Memory) Delete(ctx context.Context, table string, f Filter) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	var kept []Row
	var removed []Row
	for _, row := range m.tables[table] {
		if f.Match(row) {
			removed = append(removed, row.Clone())
			continue
		}
		kept = append(kept, row)
	}
	m.tables[table] = kept
	m.mu.Unlock()

	for _, row := range removed {
		// Delete payloads carry the primary key only, matching the hosted
		// backend's documented limitation.
		m.publish(Event{Action: ActionDelete, Table: table, Row: Row{"id": row["id"]}})
	}
	return removed, nil
}

func (m *Memory) publish(ev Event) {
	m.subMu.RLock()
	subs := make([]*memorySub, 0, len(m.subs[ev.Table]))
	for sub := range m.subs[ev.Table] {
		subs = append(subs, sub)
	}
	m.subMu.RUnlock()

	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	for _, sub := range subs {
		// Filters cannot be evaluated against key-only delete payloads, so
		// deletes go to every table subscriber; reconcilers drop unknown ids.
		if ev.Action != ActionDelete && !sub.filter.Match(ev.Row) {
			continue
		}
		sub.h(ev)
	}
}
