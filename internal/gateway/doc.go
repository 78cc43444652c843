// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からのリクエストを最初に受け付けるフロントドアであり、
// クライアント単位のレート制限、内部サービスのヘルスチェック集約、
// ルート一覧の公開、設定されたクラスタへのリバースプロキシを担当する。
// すべてのリクエストはレート制限を通過してから各ハンドラに到達する。
package gateway
