package capture

import "errors"

var (
	// ErrRecordingInProgress は録画中に録画を開始しようとした
	ErrRecordingInProgress = errors.New("録画中です")

	// ErrNoRecording は録画していないのに停止しようとした
	ErrNoRecording = errors.New("録画していません")

	// ErrRecordingNotFound は指定されたIDの録画が存在しない
	ErrRecordingNotFound = errors.New("録画が見つかりません")

	// ErrCaptureNotFound は指定されたIDの静止画が存在しない
	ErrCaptureNotFound = errors.New("静止画が見つかりません")

	// ErrUnsupportedMimeType はサポートされていない形式
	ErrUnsupportedMimeType = errors.New("サポートされていない形式です")

	// ErrTranscodeUnavailable はffmpegがないためmp4に変換できない
	ErrTranscodeUnavailable = errors.New("mp4への変換にはffmpegが必要です")

	// ErrNothingBound は再生面に録画が割り当てられていない
	ErrNothingBound = errors.New("再生する録画がありません")

	// ErrPlaybackReplaced は再生中に別の録画が割り当てられた
	ErrPlaybackReplaced = errors.New("再生する録画が切り替わりました")
)
