package client

import (
	"sync"

	"github.com/HsiangNianian/AMonItor/sdk/protocol"
)

// Handler receives an inbound envelope. Handlers run on the session's
// reader goroutine, one at a time, in arrival order.
type Handler func(env *protocol.Envelope)

type subscription struct {
	handler Handler
}

type channels struct {
	mu   sync.RWMutex
	subs map[string]*subscription
}

func newChannels() *channels {
	return &channels{subs: make(map[string]*subscription)}
}

// set replaces any existing subscription on channel.
func (r *channels) set(channel string, h Handler) *subscription {
	sub := &subscription{handler: h}
	r.mu.Lock()
	r.subs[channel] = sub
	r.mu.Unlock()
	return sub
}

func (r *channels) get(channel string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[channel]
	if !ok {
		return nil, false
	}
	return sub.handler, true
}

func (r *channels) remove(channel string) {
	r.mu.Lock()
	delete(r.subs, channel)
	r.mu.Unlock()
}

// revert drops sub only if it is still the one registered on channel.
func (r *channels) revert(channel string, sub *subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.subs[channel]; !ok || cur != sub {
		return false
	}
	delete(r.subs, channel)
	return true
}

func (r *channels) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.subs))
	for name := range r.subs {
		out = append(out, name)
	}
	return out
}

type handlers struct {
	mu sync.RWMutex
	by map[protocol.Action]Handler
}

func newHandlers() *handlers {
	return &handlers{by: make(map[protocol.Action]Handler)}
}

func (r *handlers) set(action protocol.Action, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil {
		delete(r.by, action)
		return
	}
	r.by[action] = h
}

func (r *handlers) get(action protocol.Action) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.by[action]
	return h, ok
}
