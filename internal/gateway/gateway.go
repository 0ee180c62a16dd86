package gateway

import (
	"context"
	"time"
)

// Row is the wire shape of a single table record. Mapping into typed
// view-models happens at the edge of each feature package.
type Row map[string]any

// Gateway is the minimal surface of the hosted backend used by the client
// core: filtered queries, single-statement mutations and a row-level change
// feed. Satisfied by Memory, Postgres and Realtime-backed compositions.
type Gateway interface {
	Query(ctx context.Context, table string, q Query) ([]Row, error)
	Count(ctx context.Context, table string, f Filter) (int, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table string, f Filter, patch Row) ([]Row, error)
	Delete(ctx context.Context, table string, f Filter) ([]Row, error)
	Subscribe(table string, f Filter, h Handler) (Subscription, error)
}

type Query struct {
	Select  []string `json:"select,omitempty"`
	Filter  Filter   `json:"filter,omitempty"`
	OrderBy string   `json:"order_by,omitempty"`
	Desc    bool     `json:"desc,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (r Row) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

func (r Row) Bool(key string) bool {
	v, _ := r[key].(bool)
	return v
}

func (r Row) Int(key string) int {
	switch v := r[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Time reads a timestamp column. JSON transports deliver times as RFC3339
// strings, pgx delivers time.Time; both are accepted.
func (r Row) Time(key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			return t
		}
	}
	return time.Time{}
}
