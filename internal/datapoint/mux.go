package datapoint

import (
	"context"
	"strings"
)

// Mux routes datapoint ids of the form "scheme:rest" to the store registered
// for scheme, and everything else to a default store. The routed store sees
// only the part after the colon.
type Mux struct {
	def    Store
	routes map[string]Store
}

// NewMux creates a Mux with the given default store.
func NewMux(def Store) *Mux {
	return &Mux{def: def, routes: make(map[string]Store)}
}

// Handle registers s for ids prefixed with "scheme:". Not safe to call
// concurrently with Read or Write.
func (m *Mux) Handle(scheme string, s Store) {
	m.routes[scheme] = s
}

// Read reads id from the store it routes to.
func (m *Mux) Read(ctx context.Context, id string) (Value, error) {
	s, rest := m.route(id)
	return s.Read(ctx, rest)
}

// Write writes id to the store it routes to.
func (m *Mux) Write(ctx context.Context, id string, val any, ack bool) error {
	s, rest := m.route(id)
	return s.Write(ctx, rest, val, ack)
}

func (m *Mux) route(id string) (Store, string) {
	scheme, rest, ok := strings.Cut(id, ":")
	if !ok || scheme == "" {
		return m.def, id
	}
	if s, found := m.routes[scheme]; found {
		return s, rest
	}
	return m.def, id
}
