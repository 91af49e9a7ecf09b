// Package screen はカメラ撮影画面の操作をまとめる
//
// カメラセッション、静止画の撮影、録画、録画の再生を1つの画面として扱い、
// TUIとHTTPサーバーの両方から同じ操作を呼び出せるようにする。
// 録画中は録画元のストリームを保つため前面/背面の切り替えを受け付けない。
package screen
