package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"vendstock/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the embedded schema. It is idempotent.
func Migrate(ctx context.Context, pool *Pool) error {
	// No arguments: pgx sends the file over the simple protocol, which accepts multiple statements.
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logger.Info(ctx, "database schema applied")
	return nil
}
