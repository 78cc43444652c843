// Package middleware はGatewayのHTTP APIで使用するGinミドルウェアを提供する。
//
// すべてのリクエストが通過する横断的な処理を含む:
// パニックリカバリ、リクエストID付与、構造化アクセスログ、Prometheusメトリクス、
// CORS、クライアント単位のレート制限、Bearerトークン（JWT）の検証。
package middleware
