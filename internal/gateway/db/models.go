package db

import "time"

// User はトークンを発行したユーザー。
type User struct {
	ID             string
	Provider       string
	ProviderUserID string
	Email          string
	DisplayName    string
	AvatarUrl      string
	CreatedAt      time.Time
	LastLoginAt    time.Time
}
