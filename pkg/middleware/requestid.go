package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// headerKeyRequestID はリクエストIDを伝播するHTTPヘッダーキー。
	headerKeyRequestID = "X-Request-ID"
	// contextKeyRequestID はGinコンテキストにリクエストIDを格納するキー。
	contextKeyRequestID = "request_id"
)

// RequestID は各リクエストに追跡用のIDを付与するGinミドルウェアを返す。
// リクエストヘッダーにIDがあればそれを使い、なければ新しく生成する。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerKeyRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
			// 下流サービスへ転送されるリクエストにも同じIDを載せる
			c.Request.Header.Set(headerKeyRequestID, requestID)
		}

		c.Set(contextKeyRequestID, requestID)
		c.Header(headerKeyRequestID, requestID)
		c.Next()
	}
}

// GetRequestID はGinコンテキストからリクエストIDを取得する。
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(contextKeyRequestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return c.GetHeader(headerKeyRequestID)
}
