package migration

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// openTestDB はテスト用のインメモリSQLiteを開く。
// :memory: は接続ごとに別のデータベースになるため、接続数を1に制限する。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDB接続に失敗: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// countVersions はschema_migrationsに記録されたバージョン数を返す。
func countVersions(t *testing.T, db *sql.DB) int {
	t.Helper()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("バージョン数の取得に失敗: %v", err)
	}
	return n
}

// TestRun はRun関数を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/000002_add_items.up.sql":      {Data: []byte("CREATE TABLE items (id TEXT PRIMARY KEY, user_id TEXT NOT NULL REFERENCES users(id));")},
		"migrations/000001_create_users.up.sql":   {Data: []byte("CREATE TABLE users (id TEXT PRIMARY KEY);")},
		"migrations/000001_create_users.down.sql": {Data: []byte("DROP TABLE users;")},
		"migrations/README.md":                    {Data: []byte("ignored")},
		"migrations/latest_notes.up.sql":          {Data: []byte("this is not sql")},
	}

	t.Run("バージョン順にすべてのマイグレーションが適用されること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		if err := Run(context.Background(), db, fsys, "migrations", zap.NewNop()); err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}

		if got := countVersions(t, db); got != 2 {
			t.Errorf("適用済みバージョン数 = %d, want 2", got)
		}
		if _, err := db.Exec("INSERT INTO items (id, user_id) VALUES ('i1', 'u1')"); err != nil {
			t.Errorf("itemsテーブルへの挿入に失敗: %v", err)
		}
	})

	t.Run("2回実行しても適用済みのマイグレーションはスキップされること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		for range 2 {
			if err := Run(context.Background(), db, fsys, "migrations", zap.NewNop()); err != nil {
				t.Fatalf("Run()でエラーが発生: %v", err)
			}
		}
		if got := countVersions(t, db); got != 2 {
			t.Errorf("適用済みバージョン数 = %d, want 2", got)
		}
	})

	t.Run("不正なSQLの場合はエラーになりバージョンが記録されないこと", func(t *testing.T) {
		t.Parallel()

		broken := fstest.MapFS{
			"migrations/000001_broken.up.sql": {Data: []byte("CREATE TABLE;")},
		}
		db := openTestDB(t)
		if err := Run(context.Background(), db, broken, "migrations", zap.NewNop()); err == nil {
			t.Fatal("Run()がエラーを返すべきだが、nilが返った")
		}
		if got := countVersions(t, db); got != 0 {
			t.Errorf("適用済みバージョン数 = %d, want 0", got)
		}
	})

	t.Run("ディレクトリが存在しない場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		if err := Run(context.Background(), db, fstest.MapFS{}, "missing", zap.NewNop()); err == nil {
			t.Fatal("Run()がエラーを返すべきだが、nilが返った")
		}
	})
}
