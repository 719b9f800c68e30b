// Package actor identifies who performed an action. Punch corrections and
// compliance changes record the actor for the audit trail.
package actor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// SystemID is the actor ID used for scheduled and system-initiated work.
const SystemID = "00000000-0000-0000-0000-000000000000"

// Gateway headers carrying the authenticated user. The gateway strips any
// client-supplied copies before forwarding.
const (
	HeaderUserID      = "X-User-ID"
	HeaderName        = "X-User-Name"
	HeaderEmail       = "X-User-Email"
	HeaderRole        = "X-User-Role"
	HeaderPermissions = "X-User-Permissions" // comma separated
)

// Actor represents the entity performing an action in the system.
type Actor struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	TenantID string `json:"tenant_id"`
	RoleName string `json:"role_name,omitempty"`

	Permissions []string `json:"permissions,omitempty"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	return fmt.Sprintf("%s (%s)", a.Name, a.Email)
}

// IsSystem returns true if the actor represents the system.
func (a *Actor) IsSystem() bool {
	return a == nil || a.ID == SystemID
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// IDFromContext returns the actor ID, or SystemID when no actor is present.
func IDFromContext(ctx context.Context) string {
	if a := FromContext(ctx); a != nil && a.ID != "" {
		return a.ID
	}
	return SystemID
}

// SystemActor returns an Actor representing the system itself.
func SystemActor() *Actor {
	return &Actor{
		ID:    SystemID,
		Name:  "System",
		Email: "system@carelog.local",

		Permissions: []string{"*"},
	}
}

// FromHeaders builds an actor from the gateway headers. Returns nil when the
// request carries no user.
func FromHeaders(h http.Header, tenantID string) *Actor {
	id := h.Get(HeaderUserID)
	if id == "" {
		return nil
	}
	return &Actor{
		ID:       id,
		Name:     h.Get(HeaderName),
		Email:    h.Get(HeaderEmail),
		RoleName: h.Get(HeaderRole),
		TenantID: tenantID,

		Permissions: splitPermissions(h.Get(HeaderPermissions)),
	}
}

func splitPermissions(header string) []string {
	var perms []string
	for _, p := range strings.Split(header, ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}
	return perms
}
