// Package ratelimit はクライアント単位のアドミッション制御（レート制限）を提供する。
//
// すべての受信リクエストはルーティングの前にLimiterを通過する。
// Limiterはクライアント識別子ごとにスライディングウィンドウ内の
// 受理済みリクエスト数を数え、上限に達したクライアントを拒否する。
//
// アドミッション記録は「クライアント識別子 + 一意トークン」をキーとする
// 共有テーブルに保持され、呼び出しのたびに全クライアント分の期限切れ記録を
// 掃除してから、識別子を接頭辞に持つキーの数を数える。
// 掃除・計数・挿入の一連の操作は全体としてアトミックではないため、
// 並行負荷下では一時的に上限をわずかに超えて受理することがある。
//
// 接頭辞一致で数えるため、ある識別子が別の識別子の接頭辞になっている場合
// （例: "10.0.0.1" と "10.0.0.12"）、短い側は長い側の記録も自分の分として数える。
package ratelimit
