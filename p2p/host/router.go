package host

import (
	"net"
	"sync"
)

// StreamHandler processes one accepted, protocol-negotiated stream.
type StreamHandler func(stream net.Conn, protocol string)

// Predicate matches a negotiated protocol name against a dynamic rule
// (e.g. a prefix), for handlers registered without an exact name.
type Predicate func(protocol string) bool

type predicateEntry struct {
	match   Predicate
	handler StreamHandler
}

// Router holds the exact-match and predicate-match protocol handler
// tables of spec.md §4.8: exact wins over predicate; among predicates,
// first-registered wins.
type Router struct {
	mu         sync.RWMutex
	exact      map[string]StreamHandler
	predicates []predicateEntry
}

// NewRouter constructs an empty Router.
func NewRouter() *Router {
	return &Router{exact: make(map[string]StreamHandler)}
}

// Handle registers handler for an exact protocol name, replacing any
// existing registration for that name.
func (r *Router) Handle(protocol string, handler StreamHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact[protocol] = handler
}

// HandlePredicate registers handler for every protocol name match
// matches, in order; first-registered predicate wins ties.
func (r *Router) HandlePredicate(match Predicate, handler StreamHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicates = append(r.predicates, predicateEntry{match: match, handler: handler})
}

// Unregister removes the exact-match handler for protocol, if any.
func (r *Router) Unregister(protocol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.exact, protocol)
}

// Lookup resolves the handler for a negotiated protocol: exact match
// first, then the first matching predicate in registration order.
func (r *Router) Lookup(protocol string) (StreamHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.exact[protocol]; ok {
		return h, true
	}
	for _, e := range r.predicates {
		if e.match(protocol) {
			return e.handler, true
		}
	}
	return nil, false
}

// Protocols returns the exactly-registered protocol names, for
// responding to a multistream-select "ls" request.
func (r *Router) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.exact))
	for name := range r.exact {
		out = append(out, name)
	}
	return out
}
