package camera

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestBackendFactory_SupportedTypes(t *testing.T) {
	factory := NewBackendFactory()

	types := factory.SupportedTypes()
	expected := []string{BackendMediaDevices, BackendMock, BackendV4L2}
	if len(types) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, types)
	}
	for i := range expected {
		if types[i] != expected[i] {
			t.Errorf("Expected %s, got %s", expected[i], types[i])
		}
	}
}

func TestBackendFactory_Create(t *testing.T) {
	factory := NewBackendFactory()

	if _, err := factory.Create("cordova", BackendConfig{}); err == nil {
		t.Error("Expected error for unsupported backend")
	}

	if _, err := factory.Create(BackendV4L2, BackendConfig{}); err == nil {
		t.Error("ffmpegなしのv4l2バックエンドはエラー")
	}

	backend, err := factory.Create(BackendMock, BackendConfig{FFmpegPath: "/nonexistent/ffmpeg"})
	if err != nil {
		t.Fatalf("Failed to create mock backend: %v", err)
	}
	if backend.Mock == nil {
		t.Fatal("Expected mock devices")
	}
	if !backend.Gate.CheckSupport(context.Background()) {
		t.Error("Expected mock backend to be supported")
	}

	if backend.Platform.NeedsShim() {
		t.Error("モックバックエンドは互換レイヤーを必要としない")
	}
	if shim := backend.Mock.Shim(); shim[FacingUser] != "mock-user" {
		t.Errorf("Unexpected facing map: %v", shim)
	}
}

func TestBackendFactory_MockSkipsShim(t *testing.T) {
	backend, err := NewBackendFactory().Create(BackendMock, BackendConfig{FFmpegPath: "/nonexistent/ffmpeg"})
	if err != nil {
		t.Fatalf("Failed to create mock backend: %v", err)
	}
	registered := backend.Mock.Shim()

	env := NewEnvironment(backend.Platform, zap.NewNop())
	if err := env.Prepare(context.Background()); err != nil {
		t.Fatalf("Failed to prepare: %v", err)
	}

	// 準備は何もせず、作成時に登録した対応表がそのまま使われる
	if len(env.Capabilities().FacingDevices) != 0 {
		t.Errorf("互換レイヤーを登録してはいけない: %v", env.Capabilities().FacingDevices)
	}
	if env.Capabilities().CanTranscode() {
		t.Error("互換レイヤーなしではffmpegを読み込まない")
	}
	if shim := backend.Mock.Shim(); len(shim) != len(registered) || shim[FacingEnvironment] != registered[FacingEnvironment] {
		t.Errorf("対応表が変わった: %v", shim)
	}
	if _, ok := backend.Platform.(FacingRefresher); ok {
		t.Error("モックバックエンドは互換レイヤーを更新しない")
	}
}

func TestBackendFactory_ShimBackends(t *testing.T) {
	factory := NewBackendFactory()
	for _, name := range []string{BackendMediaDevices, BackendV4L2} {
		backend, err := factory.Create(name, BackendConfig{FFmpegPath: "/nonexistent/ffmpeg"})
		if err != nil {
			t.Fatalf("Failed to create %s backend: %v", name, err)
		}
		if !backend.Platform.NeedsShim() {
			t.Errorf("%s は互換レイヤーを必要とする", name)
		}
		if _, ok := backend.Platform.(FacingRefresher); !ok {
			t.Errorf("%s は互換レイヤーを更新できる", name)
		}
	}
}
