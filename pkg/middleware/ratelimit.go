package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// unknownClient はクライアントのアドレスが取得できない場合の識別子。
	unknownClient = "unknown"
	// rateLimitMessage はレート制限で拒否した場合のレスポンスボディ。
	rateLimitMessage = "Rate limit exceeded"
)

// Admitter はクライアント単位でリクエストを受理するか判定する。
type Admitter interface {
	Allow(ctx context.Context, clientID string) bool
}

// ClientIdentifier はリクエスト元のネットワークアドレスからクライアント識別子を求める。
// 取得できない場合は "unknown" を返す。プロキシヘッダーは信頼しない。
func ClientIdentifier(c *gin.Context) string {
	if ip := c.RemoteIP(); ip != "" {
		return ip
	}
	return unknownClient
}

// RateLimit はクライアント単位のレート制限を行うGinミドルウェアを返す。
// 拒否した場合は429とプレーンテキストのメッセージを返し、後続の処理を行わない。
func RateLimit(admitter Admitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !admitter.Allow(c.Request.Context(), ClientIdentifier(c)) {
			c.Data(http.StatusTooManyRequests, "text/plain; charset=utf-8", []byte(rateLimitMessage))
			c.Abort()
			return
		}
		c.Next()
	}
}
