// Package server は、撮影画面をローカルHTTPで操作・プレビューするサーバーを提供します。
//
// 責務:
//   - 撮影画面の操作API（切り替え、ライト、撮影、録画、再生）
//   - ライブ映像のMJPEGプレビューとWebSocketプレビュー
//   - 録画のMJPEG再生と録画データの取得
//
// 仕様:
//   - ルーティングはgin、WebSocketはgorilla/websocketを使用
//   - デフォルトで127.0.0.1のみで待ち受ける
//   - エラーは ErrorResponse 形式のJSONで返す
//   - グレースフルシャットダウンに対応
package server
