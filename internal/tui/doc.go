// Package tui はターミナル上の撮影画面を提供する
//
// bubbletea のモデルとして状態表示とキー操作を扱い、
// カメラ操作は tea.Cmd として実行して結果をメッセージで受け取る。
package tui
