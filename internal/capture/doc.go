// Package capture 静止画の撮影と動画の録画・再生を担う
//
// # 責務
// - ライブトラックの1フレームを固定サイズの描画面に描き、data URI として保存する
// - ライブトラックのフレームをメモリ上に録画する（MJPEG、ffmpegがあればmp4）
// - 録画を録画時のFPSで再生する
//
// # 仕様
// - Gallery: 撮影順の追加のみ
// - Recorder: idle → recording → stopped。録画は同時に1本まで
// - Player: 新しい録画を割り当てると前の再生は破棄される
// - 録画データはメモリ上にのみ保持し、ファイルには書き出さない
package capture
