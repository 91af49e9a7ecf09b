package camera

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestEnvironment_PrepareOnce(t *testing.T) {
	platform := NewMockPlatform(Capabilities{FFmpegVersion: "6.1.1"}, nil)
	env := NewEnvironment(platform, zap.NewNop())
	ctx := context.Background()

	select {
	case <-env.Ready():
		t.Fatal("準備前に完了していてはいけない")
	default:
	}
	if env.Capabilities().CanTranscode() {
		t.Error("準備前はゼロ値を返す")
	}

	for i := 0; i < 3; i++ {
		if err := env.Prepare(ctx); err != nil {
			t.Fatalf("Failed to prepare: %v", err)
		}
	}

	if platform.Prepares() != 1 {
		t.Errorf("Expected a single prepare, got %d", platform.Prepares())
	}
	if err := env.Wait(ctx); err != nil {
		t.Errorf("Expected ready environment, got %v", err)
	}
	if !env.Capabilities().CanTranscode() {
		t.Error("Expected transcode capability")
	}
}

func TestEnvironment_PrepareError(t *testing.T) {
	env := NewEnvironment(NewMockPlatform(Capabilities{}, errors.New("読み込み失敗")), zap.NewNop())
	ctx := context.Background()

	if err := env.Prepare(ctx); err == nil {
		t.Fatal("Expected prepare error")
	}
	if err := env.Wait(ctx); !errors.Is(err, ErrEnvironmentNotReady) {
		t.Errorf("Expected ErrEnvironmentNotReady, got %v", err)
	}
}

func TestEnvironment_WaitBeforePrepare(t *testing.T) {
	env := NewEnvironment(NativePlatform{}, zap.NewNop())

	// 準備が始まっていなければ期限なしでも待たない
	done := make(chan error, 1)
	go func() { done <- env.Wait(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrEnvironmentNotReady) {
			t.Errorf("Expected ErrEnvironmentNotReady, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("準備前のWaitがブロックした")
	}
}

// blockingPlatform は release されるまで準備を終えないPlatform
type blockingPlatform struct {
	entered chan struct{}
	release chan struct{}
}

func (p *blockingPlatform) Name() string    { return "blocking" }
func (p *blockingPlatform) NeedsShim() bool { return true }
func (p *blockingPlatform) Prepare(context.Context) (Capabilities, error) {
	close(p.entered)
	<-p.release
	return Capabilities{FFmpegVersion: "6.1.1"}, nil
}

func TestEnvironment_WaitDuringPrepare(t *testing.T) {
	platform := &blockingPlatform{entered: make(chan struct{}), release: make(chan struct{})}
	env := NewEnvironment(platform, zap.NewNop())

	go func() { _ = env.Prepare(context.Background()) }()
	<-platform.entered

	// 準備中は期限まで待つ
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := env.Wait(ctx); !errors.Is(err, ErrEnvironmentNotReady) {
		t.Errorf("Expected ErrEnvironmentNotReady, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- env.Wait(context.Background()) }()
	close(platform.release)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("準備完了後は成功する: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("準備完了後もWaitが戻らない")
	}
	if !env.Capabilities().CanTranscode() {
		t.Error("準備で判明した能力が反映されていない")
	}
}

func TestEnvironment_NativePlatform(t *testing.T) {
	env := NewEnvironment(NativePlatform{}, zap.NewNop())
	if err := env.Prepare(context.Background()); err != nil {
		t.Fatalf("Failed to prepare: %v", err)
	}
	if len(env.Capabilities().FacingDevices) != 0 {
		t.Error("互換レイヤー不要の環境では対応表を作らない")
	}
}

func TestParseFFmpegVersion(t *testing.T) {
	testCases := []struct {
		output   string
		expected string
		wantErr  bool
	}{
		{"ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023 the FFmpeg developers\nbuilt with gcc", "6.1.1-3ubuntu5", false},
		{"ffmpeg version n7.0 Copyright", "n7.0", false},
		{"command not found", "", true},
		{"", "", true},
	}

	for _, tc := range testCases {
		version, err := parseFFmpegVersion(tc.output)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Expected error for %q", tc.output)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unexpected error for %q: %v", tc.output, err)
		}
		if version != tc.expected {
			t.Errorf("Expected %q, got %q", tc.expected, version)
		}
	}
}

func TestProbeFFmpeg_Missing(t *testing.T) {
	if _, err := ProbeFFmpeg(context.Background(), "/nonexistent/ffmpeg"); err == nil {
		t.Error("Expected error for missing binary")
	}
}

func TestMediaDevicesPlatform_Prepare(t *testing.T) {
	devices := NewMockMediaDevices(FacingUser, FacingEnvironment)
	platform := NewMediaDevicesPlatform(devices, map[FacingMode]string{
		FacingUser:        "mock-user",
		FacingEnvironment: "mock-environment",
	}, "/nonexistent/ffmpeg", zap.NewNop())

	caps, err := platform.Prepare(context.Background())
	if err != nil {
		t.Fatalf("ffmpegがなくても準備は成功する: %v", err)
	}
	if caps.CanTranscode() {
		t.Error("ffmpegがない場合は変換できない")
	}

	shim := devices.Shim()
	if shim[FacingUser] != "mock-user" || shim[FacingEnvironment] != "mock-environment" {
		t.Errorf("Unexpected shim: %v", shim)
	}
	if caps.FacingDevices[FacingEnvironment] != "mock-environment" {
		t.Errorf("Unexpected capabilities: %v", caps.FacingDevices)
	}
}

func TestBuildFacingMap(t *testing.T) {
	devices := []DeviceInfo{
		{Device: "cam-a"},
		{Device: "cam-b"},
		{Device: "cam-c"},
	}

	testCases := []struct {
		name       string
		devices    []DeviceInfo
		configured map[FacingMode]string
		expected   map[FacingMode]string
	}{
		{
			name:     "列挙順",
			devices:  devices,
			expected: map[FacingMode]string{FacingUser: "cam-a", FacingEnvironment: "cam-b"},
		},
		{
			name:       "設定で背面を指定",
			devices:    devices,
			configured: map[FacingMode]string{FacingEnvironment: "cam-a"},
			expected:   map[FacingMode]string{FacingUser: "cam-b", FacingEnvironment: "cam-a"},
		},
		{
			name:       "存在しないデバイスの設定は無視",
			devices:    devices,
			configured: map[FacingMode]string{FacingUser: "cam-z"},
			expected:   map[FacingMode]string{FacingUser: "cam-a", FacingEnvironment: "cam-b"},
		},
		{
			name:     "1台のみ",
			devices:  devices[:1],
			expected: map[FacingMode]string{FacingUser: "cam-a"},
		},
		{
			name:     "デバイスなし",
			expected: map[FacingMode]string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := BuildFacingMap(tc.devices, tc.configured)
			if len(got) != len(tc.expected) {
				t.Fatalf("Expected %v, got %v", tc.expected, got)
			}
			for mode, id := range tc.expected {
				if got[mode] != id {
					t.Errorf("%s: expected %s, got %s", mode, id, got[mode])
				}
			}
		})
	}
}

func TestDevicePath(t *testing.T) {
	testCases := []struct {
		label    string
		expected string
	}{
		{"video0;video0", "/dev/video0"},
		{"/dev/video2", "/dev/video2"},
		{"USB Camera video4", "/dev/video4"},
		{"FaceTime HD Camera", ""},
	}

	for _, tc := range testCases {
		if got := devicePath(tc.label); got != tc.expected {
			t.Errorf("devicePath(%q) = %q, expected %q", tc.label, got, tc.expected)
		}
	}
}

func TestMediaDevicesPlatform_PrepareIgnoresCancel(t *testing.T) {
	ffmpeg := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\necho 'ffmpeg version 6.1.1 Copyright (c) 2000-2023 the FFmpeg developers'\n"
	if err := os.WriteFile(ffmpeg, []byte(script), 0o755); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}

	devices := NewMockMediaDevices(FacingUser)
	platform := NewMediaDevicesPlatform(devices, nil, ffmpeg, zap.NewNop())

	// 最初の開始がキャンセルされてもffmpegの検出結果は失われない
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	caps, err := platform.Prepare(ctx)
	if err != nil {
		t.Fatalf("Failed to prepare: %v", err)
	}
	if caps.FFmpegVersion != "6.1.1" {
		t.Errorf("Expected 6.1.1, got %q", caps.FFmpegVersion)
	}
}
