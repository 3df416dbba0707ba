package ledger

import (
	"github.com/roach88/reqsync/internal/request"
)

// Subscriber receives every event a layer appends, after it is committed.
// Subscribers cannot veto or roll back an event and must not call back into
// the layer's submit methods.
type Subscriber func(request.Event)

// Subscribe registers fn for future events.
func (l *Layer) Subscribe(fn Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, fn)
}

// notify must be called with mu held.
func (l *Layer) notify(ev request.Event) {
	for _, fn := range l.subscribers {
		fn(ev)
	}
}
