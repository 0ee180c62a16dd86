package gateway

type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event is one row-level change. Delete events carry only the primary key
// column; reconcilers must not rely on other fields being present there.
type Event struct {
	Action Action `json:"action"`
	Table  string `json:"table"`
	Row    Row    `json:"row"`
}

type Handler func(Event)

// Subscription detaches a change-feed listener. Close is idempotent and
// safe to call from any goroutine.
type Subscription interface {
	Close()
}

// Subscriber is the notification half of the gateway contract. Realtime
// implements only this; full Gateway implementations satisfy it too.
type Subscriber interface {
	Subscribe(table string, f Filter, h Handler) (Subscription, error)
}
