// Package httpclient は下流サービスへのHTTP通信を行うクライアントを提供する。
//
// Gatewayが各クラスタの宛先へ死活監視リクエストを送る際に使用する。
// ベースURLとパスを単純に連結してリクエストURLを組み立て、
// 2xx以外の応答はStatusErrorとして呼び出し元に返す。
package httpclient
