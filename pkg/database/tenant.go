package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// schemaName restricts search_path targets to plain lowercase identifiers.
// SET LOCAL cannot take bind parameters, so the name is interpolated.
var schemaName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidSchemaName reports whether s can be used as a tenant schema.
func ValidSchemaName(s string) bool {
	return schemaName.MatchString(s)
}

// WithTenantSchema runs fn inside a transaction whose search_path points at
// the tenant schema. Every query issued through the DB helpers with the
// context passed to fn runs on that transaction.
//
// Usage in repositories:
//
//	schema, err := tenant.TenantSchema(ctx)
//	if err != nil { return err }
//	err = r.db.WithTenantSchema(ctx, schema, func(ctx context.Context) error {
//	    return r.db.GetContext(ctx, &rec, "SELECT * FROM punch_records WHERE id = $1", id)
//	})
//
// SET LOCAL is scoped to the transaction, so a pooled connection goes back
// to the pool without the tenant search_path.
func (db *DB) WithTenantSchema(ctx context.Context, schema string, fn func(context.Context) error) error {
	if !ValidSchemaName(schema) {
		return fmt.Errorf("invalid tenant schema %q", schema)
	}

	// Nested calls reuse the outer transaction.
	if db.getTx(ctx) != nil {
		return fn(ctx)
	}

	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", schema)); err != nil {
			return fmt.Errorf("failed to set search_path to %s: %w", schema, err)
		}
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// getTx extracts transaction from context if present
func (db *DB) getTx(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}

// GetContext runs a single-row query on the context transaction, or on the
// pool when there is none.
func (db *DB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx := db.getTx(ctx); tx != nil {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return db.DB.GetContext(ctx, dest, query, args...)
}

// SelectContext runs a multi-row query on the context transaction.
func (db *DB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx := db.getTx(ctx); tx != nil {
		return tx.SelectContext(ctx, dest, query, args...)
	}
	return db.DB.SelectContext(ctx, dest, query, args...)
}

// ExecContext runs a statement on the context transaction.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if tx := db.getTx(ctx); tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return db.DB.ExecContext(ctx, query, args...)
}

// QueryRowxContext runs a single-row query on the context transaction.
func (db *DB) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	if tx := db.getTx(ctx); tx != nil {
		return tx.QueryRowxContext(ctx, query, args...)
	}
	return db.DB.QueryRowxContext(ctx, query, args...)
}
