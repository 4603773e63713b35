package gateway

import (
	"context"
	"encoding/json"

	"github.com/rollhaus/casino/internal/domain"
)

// Request is one dispatched command. User is non-nil iff the connection is
// authenticated (handlers on authRequired routes can rely on it).
type Request struct {
	Conn  *Conn
	Frame *Frame
	User  *domain.User
}

// Bind decodes the frame's data payload into dst.
func (r *Request) Bind(dst any) error {
	if len(r.Frame.Data) == 0 {
		return domain.ErrValidation("data payload is required")
	}
	if err := json.Unmarshal(r.Frame.Data, dst); err != nil {
		return domain.ErrValidation("malformed data payload").
			WithDetails(map[string]any{"cause": err.Error()})
	}
	return nil
}

// HandlerFunc executes one command and returns its response data.
type HandlerFunc func(ctx context.Context, r *Request) (any, error)

type route struct {
	authRequired bool
	mutating     bool
	handler      HandlerFunc
}

// Router maps command types to handlers. Legacy wire names resolve through
// the alias map before lookup.
type Router struct {
	routes  map[string]route
	aliases map[string]string
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		routes:  make(map[string]route),
		aliases: make(map[string]string),
	}
}

// Handle registers a command that neither mutates nor requires auth.
func (r *Router) Handle(cmdType string, fn HandlerFunc) {
	r.register(cmdType, route{handler: fn})
}

// HandleAuthed registers a read command that requires an authenticated user.
func (r *Router) HandleAuthed(cmdType string, fn HandlerFunc) {
	r.register(cmdType, route{authRequired: true, handler: fn})
}

// HandleMutating registers a mutating command; a requestId is required and
// the request ledger replays duplicates. Anonymous callers are keyed by
// their connection identity.
func (r *Router) HandleMutating(cmdType string, fn HandlerFunc) {
	r.register(cmdType, route{mutating: true, handler: fn})
}

// HandleAuthedMutating registers a mutating command requiring auth.
func (r *Router) HandleAuthedMutating(cmdType string, fn HandlerFunc) {
	r.register(cmdType, route{authRequired: true, mutating: true, handler: fn})
}

func (r *Router) register(cmdType string, rt route) {
	if _, dup := r.routes[cmdType]; dup {
		panic("gateway: duplicate route " + cmdType)
	}
	r.routes[cmdType] = rt
}

// Alias maps a legacy wire name onto a canonical command type.
func (r *Router) Alias(legacy, canonical string) {
	r.aliases[legacy] = canonical
}

// Resolve returns the canonical type and its route.
func (r *Router) Resolve(cmdType string) (string, route, bool) {
	if canonical, ok := r.aliases[cmdType]; ok {
		cmdType = canonical
	}
	rt, ok := r.routes[cmdType]
	return cmdType, rt, ok
}
