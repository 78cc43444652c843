package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch はSCAN 1回あたりに要求するキー数の目安。
const scanBatch = 256

// RedisStore はRedisにアドミッション記録を保持するStore。
// 複数のGatewayレプリカで同じテーブルを共有できる。
// 各記録はウィンドウ長をTTLとするキーとして保存され、期限切れの掃除はRedisのキー失効に任せる。
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore は新しいRedisStoreを生成する。
// keyPrefixは他の用途のキーと衝突しないための名前空間（例: "ratelimit:"）。
// ttlにはLimiterのウィンドウ長を指定する。
func NewRedisStore(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Sweep は何もしない。期限切れの記録はTTLによってRedisが削除する。
func (s *RedisStore) Sweep(_ context.Context, _ time.Time) error {
	return nil
}

// CountPrefix はキーが prefix で始まる記録の数をSCANで数える。
func (s *RedisStore) CountPrefix(ctx context.Context, prefix string) (int, error) {
	match := s.keyPrefix + escapeGlob(prefix) + "*"
	seen := make(map[string]struct{})

	iter := s.client.Scan(ctx, 0, match, scanBatch).Iterator()
	for iter.Next(ctx) {
		// SCANは同じキーを複数回返すことがある
		seen[iter.Val()] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("アドミッション記録の走査に失敗: %w", err)
	}
	return len(seen), nil
}

// Insert は受理時刻を値とするキーをTTL付きで保存する。
func (s *RedisStore) Insert(ctx context.Context, key string, at time.Time) error {
	value := strconv.FormatInt(at.UnixMilli(), 10)
	if err := s.client.Set(ctx, s.keyPrefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("アドミッション記録の保存に失敗: %w", err)
	}
	return nil
}

// escapeGlob はSCANのMATCHパターンで特別な意味を持つ文字をエスケープする。
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
