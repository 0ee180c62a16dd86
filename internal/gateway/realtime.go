package gateway

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Realtime attaches change-feed subscriptions over a websocket connection
// to the backend's realtime endpoint, one connection per watched table.
// Queries and mutations still go through another Gateway implementation;
// Realtime only covers the notification side.
type Realtime struct {
	baseURL string
	dial    func(url string) (realtimeConn, error)
}

type realtimeConn interface {
	ReadMessage() (int, []byte, error)
	Close() error
}

func NewRealtime(baseURL string) *Realtime {
	return &Realtime{
		baseURL: baseURL,
		dial: func(url string) (realtimeConn, error) {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			return conn, err
		},
	}
}

func (r *Realtime) Subscribe(table string, f Filter, h Handler) (Subscription, error) {
	conn, err := r.dial(r.baseURL + "/realtime/" + table)
	if err != nil {
		return nil, err
	}
	sub := &realtimeSub{conn: conn}
	go func() {
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev Event
			if err := json.Unmarshal(payload, &ev); err != nil {
				log.Printf("gateway: bad realtime payload for %s: %v", table, err)
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

type realtimeSub struct {
	conn realtimeConn
	once sync.Once
}

func (s *realtimeSub) Close() {
	s.once.Do(func() {
		_ = s.conn.Close()
	})
}

// WithRealtime composes a full gateway: queries and mutations go to base,
// subscriptions over the websocket feed. Used when the backend's change
// notifications arrive over the realtime endpoint rather than redis.
func WithRealtime(base Gateway, rt *Realtime) Gateway {
	return &realtimeGateway{Gateway: base, rt: rt}
}

type realtimeGateway struct {
	Gateway
	rt *Realtime
}

func (g *realtimeGateway) Subscribe(table string, f Filter, h Handler) (Subscription, error) {
	return g.rt.Subscribe(table, f, h)
}
