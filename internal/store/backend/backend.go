// Package backend picks a store implementation from a database URL.
package backend

import (
	"context"
	"strings"

	"github.com/alphabot-ai/topicboard/internal/store"
	"github.com/alphabot-ai/topicboard/internal/store/postgres"
	"github.com/alphabot-ai/topicboard/internal/store/sqlite"
)

// Open returns a postgres store for postgres:// and postgresql:// URLs and a
// sqlite store for anything else, which is treated as a sqlite path or DSN.
func Open(ctx context.Context, databaseURL string) (store.Store, error) {
	if IsPostgres(databaseURL) {
		return postgres.Open(ctx, databaseURL)
	}
	return sqlite.Open(databaseURL)
}

func IsPostgres(databaseURL string) bool {
	lower := strings.ToLower(databaseURL)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}
