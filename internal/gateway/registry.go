package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// HandlerFunc runs one interaction event. It may be long-running: handlers
// that present a modal typically block on Correlator.Wait for the
// submission.
type HandlerFunc func(ctx context.Context, ev *Event) error

// Handler describes one registered handler: its kind, its key (command
// name or component custom-ID prefix), and its run function. OwnerOnly
// restricts buttons and selects to the user who initiated the message the
// component is attached to (the "public: false" case).
type Handler struct {
	Kind      Kind
	Key       string
	OwnerOnly bool
	Run       HandlerFunc
}

// Registry holds the static handler table, populated once at startup.
// Buttons, selects and modals resolve by exact key first and then by the
// longest registered key that prefixes the event's custom ID; commands and
// autocomplete resolve by exact name only.
type Registry struct {
	byKind map[Kind]map[string]Handler
	keys   map[Kind][]string // sorted, for prefix resolution
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byKind: make(map[Kind]map[string]Handler),
		keys:   make(map[Kind][]string),
	}
}

// Register adds a handler. Registering a second handler with the same kind
// and key is a startup error: resolution between duplicate keys would be
// undefined.
func (r *Registry) Register(h Handler) error {
	switch h.Kind {
	case KindCommand, KindButton, KindSelect, KindModal, KindAutocomplete:
	default:
		return fmt.Errorf("gateway: register: unknown kind %q", h.Kind)
	}
	if h.Key == "" {
		return fmt.Errorf("gateway: register: key is required")
	}
	if h.Run == nil {
		return fmt.Errorf("gateway: register %s %q: run func is required", h.Kind, h.Key)
	}

	m, ok := r.byKind[h.Kind]
	if !ok {
		m = make(map[string]Handler)
		r.byKind[h.Kind] = m
	}
	if _, exists := m[h.Key]; exists {
		return fmt.Errorf("gateway: register: duplicate %s key %q", h.Kind, h.Key)
	}
	m[h.Key] = h

	keys := append(r.keys[h.Kind], h.Key)
	sort.Strings(keys)
	r.keys[h.Kind] = keys
	return nil
}

// MustRegister registers each handler and panics on error. Registration
// happens once at startup, before any event is dispatched, so a bad table
// is a programming error.
func (r *Registry) MustRegister(handlers ...Handler) {
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
}

// Resolve finds the handler for an event key. Component kinds fall back to
// the longest registered key that is a prefix of the event key; commands
// and autocomplete never prefix-match.
func (r *Registry) Resolve(kind Kind, key string) (Handler, bool) {
	m, ok := r.byKind[kind]
	if !ok {
		return Handler{}, false
	}
	if h, ok := m[key]; ok {
		return h, true
	}
	if kind == KindCommand || kind == KindAutocomplete {
		return Handler{}, false
	}

	// Longest-prefix fallback. Keys are few (a static table), so a linear
	// scan over the sorted slice is fine.
	best := ""
	for _, k := range r.keys[kind] {
		if strings.HasPrefix(key, k) && len(k) > len(best) {
			best = k
		}
	}
	if best == "" {
		return Handler{}, false
	}
	return m[best], true
}

// Len returns the total number of registered handlers.
func (r *Registry) Len() int {
	n := 0
	for _, m := range r.byKind {
		n += len(m)
	}
	return n
}
