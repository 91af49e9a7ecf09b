package camera

import (
	"errors"
	"fmt"
)

// 前提条件違反を表すエラー
var (
	ErrCapabilityAbsent      = errors.New("カメラ取得機能がありません")
	ErrEnvironmentNotReady   = errors.New("実行環境の準備が完了していません")
	ErrAcquisitionInProgress = errors.New("ストリーム取得が進行中です")
	ErrSessionStopped        = errors.New("セッションは停止済みです")
)

// ErrorKind はストリーム取得失敗の分類
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindInUse
	KindNotReadable
	KindOverconstrained
	KindPermissionDenied
	KindPermissionTimeout
	KindConstraints
)

// Reason はUIに表示する理由を返す
func (k ErrorKind) Reason() string {
	switch k {
	case KindNotFound:
		return "Devices not found"
	case KindInUse:
		return "Devices already in use"
	case KindNotReadable:
		return "Devices not readable or already in use"
	case KindOverconstrained:
		return "Constraints not accepted"
	case KindPermissionDenied:
		return "Permission denied"
	case KindPermissionTimeout:
		return "Permission request timed out"
	case KindConstraints:
		return "Constraints error"
	default:
		return "Camera error"
	}
}

// String はログ用の識別子を返す
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInUse:
		return "in_use"
	case KindNotReadable:
		return "not_readable"
	case KindOverconstrained:
		return "overconstrained"
	case KindPermissionDenied:
		return "permission_denied"
	case KindPermissionTimeout:
		return "permission_timeout"
	case KindConstraints:
		return "constraints"
	default:
		return "unknown"
	}
}

// errorKinds はプラットフォームのエラー名から分類への対応表
// 旧名（DevicesNotFoundError など）も含む
// DeviceReadError はデバイスを開けたが映像を読み出せない場合の名前
var errorKinds = map[string]ErrorKind{
	"NotFoundError":               KindNotFound,
	"DevicesNotFoundError":        KindNotFound,
	"TrackStartError":             KindInUse,
	"NotReadableError":            KindInUse,
	"DeviceReadError":             KindNotReadable,
	"OverconstrainedError":        KindOverconstrained,
	"ConstraintNotSatisfiedError": KindOverconstrained,
	"NotAllowedError":             KindPermissionDenied,
	"PermissionDeniedError":       KindPermissionDenied,
	"PermissionTimeoutError":      KindPermissionTimeout,
	"TypeError":                   KindConstraints,
}

// ClassifyName はエラー名を分類する
func ClassifyName(name string) ErrorKind {
	if kind, ok := errorKinds[name]; ok {
		return kind
	}
	return KindUnknown
}

// PlatformError は取得APIが返す名前付きエラー
type PlatformError struct {
	Name    string
	Message string
}

func (e *PlatformError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// CameraError は分類済みの取得エラー
type CameraError struct {
	Kind ErrorKind
	Name string // 元のエラー名
	Err  error  // 元のエラー
}

// Reason はUIに表示する理由を返す
func (e *CameraError) Reason() string {
	return e.Kind.Reason()
}

func (e *CameraError) Error() string {
	if e.Err == nil {
		return e.Kind.Reason()
	}
	return fmt.Sprintf("%s: %v", e.Kind.Reason(), e.Err)
}

func (e *CameraError) Unwrap() error {
	return e.Err
}

// Classify は任意のエラーを CameraError に変換する
func Classify(err error) *CameraError {
	if err == nil {
		return nil
	}

	var camErr *CameraError
	if errors.As(err, &camErr) {
		return camErr
	}

	var platformErr *PlatformError
	if errors.As(err, &platformErr) {
		return &CameraError{
			Kind: ClassifyName(platformErr.Name),
			Name: platformErr.Name,
			Err:  err,
		}
	}

	return &CameraError{Kind: KindUnknown, Err: err}
}
