package route

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
)

var (
	ErrEmptyRoute  = errors.New("route: empty route")
	ErrNilHandler  = errors.New("route: nil handler")
	ErrRouteLength = errors.New("route: route longer than 255 bytes")
)

// Session is the connection view handed to handlers.
type Session interface {
	ID() string
	RemoteAddr() net.Addr
	// NextReqID increments and returns the per-connection request counter.
	NextReqID() int64
	Push(route string, body any) error
	Set(key string, value any)
	Get(key string) (any, bool)
}

// HandlerFunc serves one request route. A returned error is reported to
// the client as a 500 response.
type HandlerFunc func(s Session, body map[string]any) (map[string]any, error)

// Registry maps exact route strings to handlers. Lookups only take the
// read lock and may run concurrently with late registration.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry initializes an empty route registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds fn to route, replacing any previous binding.
func (r *Registry) Register(route string, fn HandlerFunc) error {
	if strings.TrimSpace(route) == "" {
		return ErrEmptyRoute
	}
	if len(route) > 255 {
		return fmt.Errorf("%w: %q", ErrRouteLength, route)
	}
	if fn == nil {
		return fmt.Errorf("%w: %q", ErrNilHandler, route)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[route] = fn
	return nil
}

// MustRegister is Register for startup wiring; it panics on error.
func (r *Registry) MustRegister(route string, fn HandlerFunc) {
	if err := r.Register(route, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the handler bound to route.
func (r *Registry) Lookup(route string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[route]
	return fn, ok
}

// Routes returns the registered routes in sorted order.
func (r *Registry) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
