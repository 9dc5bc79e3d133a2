package callstore

import (
	"context"
	"strings"
)

// NewStore returns a Postgres-backed store when a database URL is
// configured, otherwise an in-process one.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
