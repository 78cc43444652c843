// Package config はGatewayサービスの設定を読み込む。
//
// 設定ファイル（YAML/JSON）、環境変数、デフォルト値の順に解決し、
// レート制限・ヘルスチェック・JWT・リバースプロキシのクラスタ構成を
// 起動時に一度だけ組み立てる。実行中に設定が変更されることはない。
package config
