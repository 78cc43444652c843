// Package health は下流クラスタの死活状態を集約する。
//
// Aggregatorは設定されたすべてのクラスタの宛先に対して並行にプローブを送り、
// 全プローブの完了を待ってから1つのReportにまとめる。
// 個々のプローブの失敗（タイムアウト、接続拒否、2xx以外の応答）は
// Unhealthyの判定として記録され、他のプローブや集約処理を中断しない。
package health
