package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// PermissionKind はOSに要求する権限の種類
type PermissionKind string

const (
	PermissionCamera      PermissionKind = "camera"
	PermissionModifyAudio PermissionKind = "audio-modify"
	PermissionRecordAudio PermissionKind = "audio-record"
)

// DefaultPermissions はセッション開始時に要求する権限
var DefaultPermissions = []PermissionKind{
	PermissionCamera,
	PermissionModifyAudio,
	PermissionRecordAudio,
}

// Gate は取得機能の有無と権限を判定する
type Gate interface {
	// CheckSupport は実行環境がカメラ取得に対応しているか返す
	CheckSupport(ctx context.Context) bool

	// RequestPermissions は権限を要求する
	// 許可されればnil、拒否されれば NotAllowedError を返す
	RequestPermissions(ctx context.Context, kinds []PermissionKind) error
}

// DeviceGate はデバイスノードへのアクセス権で権限を判定する
// Linuxでは video / audio グループへの所属がOSレベルの許可に相当する
type DeviceGate struct {
	discovery  Discovery
	audioNodes func() ([]string, error)
	logger     *zap.Logger
}

// NewDeviceGate は新しいDeviceGateを作成する
func NewDeviceGate(discovery Discovery, logger *zap.Logger) *DeviceGate {
	return &DeviceGate{
		discovery: discovery,
		audioNodes: func() ([]string, error) {
			return filepath.Glob("/dev/snd/controlC*")
		},
		logger: logger.Named("gate"),
	}
}

// CheckSupport はカメラデバイスノードが存在するか確認する
func (g *DeviceGate) CheckSupport(ctx context.Context) bool {
	devices, err := g.discovery.ScanDevices(ctx)
	if err != nil {
		g.logger.Warn("デバイスのスキャンに失敗", zap.Error(err))
		return false
	}
	return len(devices) > 0
}

// RequestPermissions は要求された権限ごとにデバイスノードを開けるか確認する
// 確認はctxの期限内で行い、期限切れの場合はctxのエラーを返す
func (g *DeviceGate) RequestPermissions(ctx context.Context, kinds []PermissionKind) error {
	result := make(chan error, 1)
	go func() {
		result <- g.check(ctx, kinds)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *DeviceGate) check(ctx context.Context, kinds []PermissionKind) error {
	for _, kind := range kinds {
		switch kind {
		case PermissionCamera:
			devices, err := g.discovery.ScanDevices(ctx)
			if err != nil {
				return fmt.Errorf("デバイスのスキャンに失敗: %w", err)
			}
			if err := g.requireAccess(devices, func(device string) error {
				return g.discovery.CheckAccess(ctx, device)
			}); err != nil {
				return err
			}

		case PermissionModifyAudio, PermissionRecordAudio:
			nodes, err := g.audioNodes()
			if err != nil {
				return fmt.Errorf("オーディオデバイスのスキャンに失敗: %w", err)
			}
			if err := g.requireAccess(nodes, openReadOnly); err != nil {
				return err
			}

		default:
			return fmt.Errorf("不明な権限: %s", kind)
		}

		g.logger.Debug("権限を確認しました", zap.String("permission", string(kind)))
	}

	return nil
}

// requireAccess はノードが1つも開けず、原因が権限不足の場合に拒否する
// ノードが存在しない場合は拒否とせず、取得時の NotFoundError に委ねる
func (g *DeviceGate) requireAccess(nodes []string, open func(string) error) error {
	var denied error
	for _, node := range nodes {
		err := open(node)
		if err == nil {
			return nil
		}
		if errors.Is(err, os.ErrPermission) {
			denied = err
		}
	}

	if denied != nil {
		return &PlatformError{Name: "NotAllowedError", Message: denied.Error()}
	}
	return nil
}

func openReadOnly(path string) error {
	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	return file.Close()
}

// ImplicitGate は取得そのものが権限要求を兼ねる環境のGate
// RequestPermissions は常に許可する
type ImplicitGate struct {
	devices MediaDevices
}

// NewImplicitGate は新しいImplicitGateを作成する
func NewImplicitGate(devices MediaDevices) *ImplicitGate {
	return &ImplicitGate{devices: devices}
}

// CheckSupport は映像入力デバイスが列挙できるか確認する
func (g *ImplicitGate) CheckSupport(ctx context.Context) bool {
	return len(g.devices.EnumerateDevices(ctx)) > 0
}

// RequestPermissions は何もせず許可する
func (g *ImplicitGate) RequestPermissions(_ context.Context, _ []PermissionKind) error {
	return nil
}
