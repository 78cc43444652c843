package gateway

import (
	"context"
	"database/sql"
	"embed"

	"github.com/nao1215/gateway/pkg/migration"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

// initSchema はSQLiteデータベースにusersテーブルのマイグレーションを適用する。
func initSchema(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	return migration.Run(ctx, db, migrationsFS, "migrations", logger)
}
