package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Store はアドミッション記録の共有テーブル。
// 実装は並行した挿入・削除・走査に対して安全でなければならない。
type Store interface {
	// Sweep は cutoff より古い記録をすべてのクライアントについて削除する。
	Sweep(ctx context.Context, cutoff time.Time) error
	// CountPrefix はキーが prefix で始まる記録の数を返す。
	CountPrefix(ctx context.Context, prefix string) (int, error)
	// Insert は key に受理時刻 at の記録を追加する。
	Insert(ctx context.Context, key string, at time.Time) error
}

// MemoryStore はプロセス内メモリにアドミッション記録を保持するStore。
type MemoryStore struct {
	// records はキーから受理時刻への並行安全なマップ。
	records *xsync.Map[string, time.Time]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: xsync.NewMap[string, time.Time]()}
}

// Sweep は cutoff より古い記録を削除する。
// テーブル全体を走査するため、コストは全クライアントの記録数に比例する。
func (s *MemoryStore) Sweep(_ context.Context, cutoff time.Time) error {
	s.records.Range(func(key string, at time.Time) bool {
		if at.Before(cutoff) {
			s.records.Delete(key)
		}
		return true
	})
	return nil
}

// CountPrefix はキーが prefix で始まる記録の数を返す。
func (s *MemoryStore) CountPrefix(_ context.Context, prefix string) (int, error) {
	n := 0
	s.records.Range(func(key string, _ time.Time) bool {
		if strings.HasPrefix(key, prefix) {
			n++
		}
		return true
	})
	return n, nil
}

// Insert は記録を追加する。
func (s *MemoryStore) Insert(_ context.Context, key string, at time.Time) error {
	s.records.Store(key, at)
	return nil
}

// Len は保持している記録の総数を返す。
func (s *MemoryStore) Len() int {
	return s.records.Size()
}
