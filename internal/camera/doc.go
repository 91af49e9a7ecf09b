// Package camera カメラストリームの取得とセッション管理を担う
//
// # 責務
// - 実行環境がカメラ取得に対応しているかの判定と権限要求（Gate）
// - facingMode を持たない取得APIへの互換レイヤーの登録（Platform / Environment）
// - 同時に1つだけのストリームを所有するセッション（Session）
// - 前面/背面カメラの切り替えとライト制御
// - 取得エラーの分類（CameraError）
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - カメラのライブ映像を1本だけ取得したい
// - 前面/背面カメラを安全に切り替えたい
// - 取得失敗の理由をUIに表示したい
//
// # 仕様
// - Session: 取得中ラッチで取得を直列化し、新しいストリームの要求前に古いトラックを全て停止する
// - MediaDevicesBackend: pion/mediadevices による実デバイスの取得
// - V4L2Backend: ffmpeg経由でのV4L2デバイスの取得（cgo不要）
// - MockMediaDevices: 合成フレームを返すモック
// - Watcher: デバイスの抜き差しを検出して互換レイヤーを更新する
//
// # 前提要件
//   - v4l-utils: カメラ名の取得とライト制御に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: v4l2バックエンドと録画のmp4変換に使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
