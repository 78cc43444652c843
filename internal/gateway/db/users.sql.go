package db

import "context"

const createUser = `
INSERT INTO users (id, provider, provider_user_id, email, display_name, avatar_url)
VALUES (?, ?, ?, ?, ?, ?)
`

// CreateUserParams はCreateUserの引数。
type CreateUserParams struct {
	ID             string
	Provider       string
	ProviderUserID string
	Email          string
	DisplayName    string
	AvatarUrl      string
}

// CreateUser はユーザーを作成する。
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, createUser,
		arg.ID,
		arg.Provider,
		arg.ProviderUserID,
		arg.Email,
		arg.DisplayName,
		arg.AvatarUrl,
	)
	return err
}

const getUserByID = `
SELECT id, provider, provider_user_id, email, display_name, avatar_url, created_at, last_login_at
FROM users
WHERE id = ?
`

// GetUserByID はIDでユーザーを取得する。
func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByID, id)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Provider,
		&i.ProviderUserID,
		&i.Email,
		&i.DisplayName,
		&i.AvatarUrl,
		&i.CreatedAt,
		&i.LastLoginAt,
	)
	return i, err
}

const getUserByProvider = `
SELECT id, provider, provider_user_id, email, display_name, avatar_url, created_at, last_login_at
FROM users
WHERE provider = ? AND provider_user_id = ?
`

// GetUserByProviderParams はGetUserByProviderの引数。
type GetUserByProviderParams struct {
	Provider       string
	ProviderUserID string
}

// GetUserByProvider はプロバイダーとプロバイダー側のIDでユーザーを取得する。
func (q *Queries) GetUserByProvider(ctx context.Context, arg GetUserByProviderParams) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByProvider, arg.Provider, arg.ProviderUserID)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Provider,
		&i.ProviderUserID,
		&i.Email,
		&i.DisplayName,
		&i.AvatarUrl,
		&i.CreatedAt,
		&i.LastLoginAt,
	)
	return i, err
}

const updateLastLogin = `
UPDATE users SET last_login_at = datetime('now') WHERE id = ?
`

// UpdateLastLogin は最終ログイン日時を現在時刻に更新する。
func (q *Queries) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, updateLastLogin, id)
	return err
}
