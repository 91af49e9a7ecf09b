package camera

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// 取得バックエンドの種類
const (
	BackendMediaDevices = "mediadevices"
	BackendV4L2         = "v4l2"
	BackendMock         = "mock"
)

// BackendConfig はバックエンド作成設定
type BackendConfig struct {
	FacingDevices map[FacingMode]string // 設定で明示された向きごとのデバイスID
	TorchControl  string                // v4l2-ctl のライト制御名
	FFmpegPath    string                // ffmpeg の実行ファイル
	Logger        *zap.Logger
}

// Backend はセッションが使う取得API・Gate・Platformの組
type Backend struct {
	Name     string
	Devices  MediaDevices
	Gate     Gate
	Platform Platform
	Mock     *MockMediaDevices // モックバックエンドの場合のみ
}

// BackendCreator はバックエンド作成関数の型
type BackendCreator func(config BackendConfig) (*Backend, error)

// BackendFactory はバックエンド名から取得APIを作成する
type BackendFactory struct {
	creators map[string]BackendCreator
}

// NewBackendFactory は標準のバックエンドを登録したファクトリーを作成する
func NewBackendFactory() *BackendFactory {
	factory := &BackendFactory{
		creators: make(map[string]BackendCreator),
	}

	factory.Register(BackendMediaDevices, newMediaDevicesBackendFromConfig)
	factory.Register(BackendV4L2, newV4L2BackendFromConfig)
	factory.Register(BackendMock, newMockBackendFromConfig)

	return factory
}

// Register はバックエンド作成関数を登録する
func (f *BackendFactory) Register(name string, creator BackendCreator) {
	f.creators[name] = creator
}

// Create はバックエンドを作成する
func (f *BackendFactory) Create(name string, config BackendConfig) (*Backend, error) {
	creator, exists := f.creators[name]
	if !exists {
		return nil, fmt.Errorf("サポートされていないバックエンド: %s", name)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return creator(config)
}

// SupportedTypes はサポートされているバックエンド名を返す
func (f *BackendFactory) SupportedTypes() []string {
	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newMediaDevicesBackendFromConfig(config BackendConfig) (*Backend, error) {
	devices := NewMediaDevicesBackend(config.TorchControl, config.Logger)
	return &Backend{
		Name:     BackendMediaDevices,
		Devices:  devices,
		Gate:     NewImplicitGate(devices),
		Platform: NewMediaDevicesPlatform(devices, config.FacingDevices, config.FFmpegPath, config.Logger),
	}, nil
}

func newV4L2BackendFromConfig(config BackendConfig) (*Backend, error) {
	if config.FFmpegPath == "" {
		return nil, fmt.Errorf("v4l2バックエンドにはffmpegが必要です")
	}

	discovery := NewLinuxDiscovery()
	devices := NewV4L2Backend(discovery, config.FFmpegPath, config.TorchControl, config.Logger)
	return &Backend{
		Name:     BackendV4L2,
		Devices:  devices,
		Gate:     NewDeviceGate(discovery, config.Logger),
		Platform: NewMediaDevicesPlatform(devices, config.FacingDevices, config.FFmpegPath, config.Logger),
	}, nil
}

func newMockBackendFromConfig(config BackendConfig) (*Backend, error) {
	devices := NewMockMediaDevices(FacingUser, FacingEnvironment)

	// モックは向きを直接扱えるため互換レイヤーの準備は不要
	devices.RegisterFacing(map[FacingMode]string{
		FacingUser:        "mock-" + string(FacingUser),
		FacingEnvironment: "mock-" + string(FacingEnvironment),
	})
	return &Backend{
		Name:     BackendMock,
		Devices:  devices,
		Gate:     NewMockGate(true),
		Platform: NativePlatform{},
		Mock:     devices,
	}, nil
}
