package camera

import (
	"context"
	"fmt"
	"image"
)

// FacingMode はカメラの向き（前面/背面）を表す
type FacingMode string

const (
	FacingUser        FacingMode = "user"        // 前面カメラ
	FacingEnvironment FacingMode = "environment" // 背面カメラ
)

// Opposite は反対側の向きを返す
func (f FacingMode) Opposite() FacingMode {
	if f == FacingEnvironment {
		return FacingUser
	}
	return FacingEnvironment
}

// ParseFacingMode は文字列からFacingModeを取得する
func ParseFacingMode(s string) (FacingMode, error) {
	switch FacingMode(s) {
	case FacingUser, FacingEnvironment:
		return FacingMode(s), nil
	default:
		return "", fmt.Errorf("無効なfacing mode: %q", s)
	}
}

// State はカメラセッションの状態を表す
type State string

const (
	StateUninitialized State = "uninitialized" // 未初期化
	StateAcquiring     State = "acquiring"     // ストリーム取得中
	StateLive          State = "live"          // ストリーム稼働中
	StateError         State = "error"         // 取得失敗（再試行可能）
	StateStopped       State = "stopped"       // 停止済み（終端）
)

// TrackKind はトラックの種別
type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// Constraints はストリーム取得時の制約
// getUserMedia の { video: { facingMode } } に相当する
type Constraints struct {
	FacingMode FacingMode
	Width      int
	Height     int
	FPS        int
}

// Validate は制約の妥当性を検証する
// 空の制約は TypeError として扱う
func (c Constraints) Validate() error {
	if _, err := ParseFacingMode(string(c.FacingMode)); err != nil {
		return &PlatformError{Name: "TypeError", Message: err.Error()}
	}
	if c.Width < 0 || c.Height < 0 || c.FPS < 0 {
		return &PlatformError{Name: "TypeError", Message: "負の値を含む制約"}
	}
	return nil
}

// MediaDevices はストリーム取得APIを抽象化する
type MediaDevices interface {
	// EnumerateDevices は利用可能な映像入力デバイスを列挙する
	EnumerateDevices(ctx context.Context) []DeviceInfo

	// GetUserMedia は制約に合うストリームを取得する
	// 失敗時は名前付きの PlatformError を返す
	GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error)
}

// Stream はハードウェアトラックを束ねるハンドル
type Stream interface {
	ID() string
	Tracks() []Track
	VideoTracks() []Track
}

// Track はストリーム内の単一メディアチャンネル
// Stop でデバイスを解放する
type Track interface {
	ID() string
	Kind() TrackKind
	Label() string
	NewReader() FrameReader
	Stop() error
}

// FrameReader はトラックからフレームを読み出す
// release はフレームバッファの返却に使う
type FrameReader interface {
	Read() (img image.Image, release func(), err error)
}

// TorchController はライト制御に対応したトラックが実装する
type TorchController interface {
	SetTorch(ctx context.Context, on bool) error
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device  string   // デバイスパスまたはデバイスID
	Name    string   // デバイス名
	Driver  string   // ドライバー名
	Formats []string // サポートされるフォーマット
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内のカメラデバイスノードをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// CheckAccess はデバイスを開けるか確認し、失敗理由を返す
	CheckAccess(ctx context.Context, device string) error

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}
