package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// Querier represents the minimal database operations used by the Postgres
// gateway. Both *pgxpool.Pool and pgxmock pools satisfy this interface.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres serves queries and mutations from a Postgres pool and bridges
// change notifications over redis pub/sub, one channel per table.
type Postgres struct {
	db  Querier
	rdb *redis.Client
}

func NewPostgres(db Querier, rdb *redis.Client) *Postgres {
	return &Postgres{db: db, rdb: rdb}
}

func (p *Postgres) Query(ctx context.Context, table string, q Query) ([]Row, error) {
	cols := "*"
	if len(q.Select) > 0 {
		cols = strings.Join(q.Select, ", ")
	}
	sql := "SELECT " + cols + " FROM " + table
	where, args := buildWhere(q.Filter, nil)
	if where != "" {
		sql += " WHERE " + where
	}
	if q.OrderBy != "" {
		sql += " ORDER BY " + q.OrderBy
		if q.Desc {
			sql += " DESC"
		}
	}
	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

func (p *Postgres) Count(ctx context.Context, table string, f Filter) (int, error) {
	sql := "SELECT COUNT(*) FROM " + table
	where, args := buildWhere(f, nil)
	if where != "" {
		sql += " WHERE " + where
	}
	var n int
	if err := p.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Postgres) Insert(ctx context.Context, table string, row Row) (Row, error) {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[col]
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	inserted, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	if len(inserted) == 0 {
		return nil, ErrNotFound
	}
	p.publish(ctx, Event{Action: ActionInsert, Table: table, Row: inserted[0]})
	return inserted[0], nil
}

func (p *Postgres) Update(ctx context.Context, table string, f Filter, patch Row) ([]Row, error) {
	cols := make([]string, 0, len(patch))
	for col := range patch {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	sets := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s=$%d", col, i+1)
		args[i] = patch[col]
	}
	sql := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", "))
	where, args := buildWhere(f, args)
	if where != "" {
		sql += " WHERE " + where
	}
	sql += " RETURNING *"
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	changed, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	for _, row := range changed {
		p.publish(ctx, Event{Action: ActionUpdate, Table: table, Row: row})
	}
	return changed, nil
}

func (p *Postgres) Delete(ctx context.Context, table string, f Filter) ([]Row, error) {
	sql := "DELETE FROM " + table
	where, args := buildWhere(f, nil)
	if where != "" {
		sql += " WHERE " + where
	}
	sql += " RETURNING *"
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	removed, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	for _, row := range removed {
		p.publish(ctx, Event{Action: ActionDelete, Table: table, Row: Row{"id": row["id"]}})
	}
	return removed, nil
}

func (p *Postgres) Subscribe(table string, f Filter, h Handler) (Subscription, error) {
	if p.rdb == nil {
		return nil, errors.New("change feed requires a redis client")
	}
	pubsub := p.rdb.Subscribe(context.Background(), changeChannel(table))
	sub := &redisSub{pubsub: pubsub}
	go func() {
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("gateway: bad change payload on %s: %v", msg.Channel, err)
				continue
			}
			if ev.Action != ActionDelete && !f.Match(ev.Row) {
				continue
			}
			h(ev)
		}
	}()
	return sub, nil
}

type redisSub struct {
	pubsub *redis.PubSub
	once   sync.Once
}

func (s *redisSub) Close() {
	s.once.Do(func() {
		_ = s.pubsub.Close()
	})
}

func (p *Postgres) publish(ctx context.Context, ev Event) {
	if p.rdb == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("gateway: marshal change event: %v", err)
		return
	}
	if err := p.rdb.Publish(ctx, changeChannel(ev.Table), payload).Err(); err != nil {
		log.Printf("gateway: redis publish error: %v", err)
	}
}

func changeChannel(table string) string {
	return "changes:" + table
}

// buildWhere renders a filter as a WHERE clause, appending to args so the
// placeholder numbering continues from any SET clause arguments.
func buildWhere(f Filter, args []any) (string, []any) {
	var parts []string
	for _, c := range f.Conds {
		switch c.Op {
		case OpEq:
			args = append(args, c.Value)
			parts = append(parts, fmt.Sprintf("%s=$%d", c.Column, len(args)))
		case OpIn:
			args = append(args, c.Value)
			parts = append(parts, fmt.Sprintf("%s = ANY($%d)", c.Column, len(args)))
		case OpGte:
			args = append(args, c.Value)
			parts = append(parts, fmt.Sprintf("%s>=$%d", c.Column, len(args)))
		case OpLte:
			args = append(args, c.Value)
			parts = append(parts, fmt.Sprintf("%s<=$%d", c.Column, len(args)))
		}
	}
	if len(f.Or) > 0 {
		var branches []string
		for _, branch := range f.Or {
			clause, nextArgs := buildWhere(branch, args)
			args = nextArgs
			branches = append(branches, "("+clause+")")
		}
		parts = append(parts, "("+strings.Join(branches, " OR ")+")")
	}
	return strings.Join(parts, " AND "), args
}

func collectRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()
	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := Row{}
		for i, fd := range rows.FieldDescriptions() {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
