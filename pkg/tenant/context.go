// Package tenant carries the facility a request belongs to. Every facility
// owns one PostgreSQL schema; repositories read the schema from here.
package tenant

import (
	"context"
	"errors"
)

type contextKey struct{}

// ErrNoTenantInContext is returned when tenant context is missing
var ErrNoTenantInContext = errors.New("no tenant in context")

// Tenant identifies a facility as forwarded by the API gateway.
type Tenant struct {
	ID     string
	Slug   string
	Schema string
}

// WithTenantContext stores the tenant on the context. Called by the tenant
// middleware after reading the gateway headers.
func WithTenantContext(ctx context.Context, id, slug, schema string) context.Context {
	return context.WithValue(ctx, contextKey{}, Tenant{ID: id, Slug: slug, Schema: schema})
}

// FromContext returns the tenant stored on the context.
func FromContext(ctx context.Context) (Tenant, error) {
	t, ok := ctx.Value(contextKey{}).(Tenant)
	if !ok || t.ID == "" {
		return Tenant{}, ErrNoTenantInContext
	}
	return t, nil
}

// TenantID extracts tenant ID from context
func TenantID(ctx context.Context) (string, error) {
	t, err := FromContext(ctx)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// TenantSlug returns the facility slug, empty when the gateway sent none.
func TenantSlug(ctx context.Context) string {
	t, _ := FromContext(ctx)
	return t.Slug
}

// TenantSchema extracts the schema name repositories set search_path to.
func TenantSchema(ctx context.Context) (string, error) {
	t, ok := ctx.Value(contextKey{}).(Tenant)
	if !ok || t.Schema == "" {
		return "", ErrNoTenantInContext
	}
	return t.Schema, nil
}
