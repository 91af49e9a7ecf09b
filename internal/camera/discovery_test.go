package camera

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestLinuxDiscovery_ScanDevices(t *testing.T) {
	ctx := context.Background()
	discovery := NewLinuxDiscovery()

	devices, err := discovery.ScanDevices(ctx)
	if err != nil {
		t.Fatalf("ScanDevices failed: %v", err)
	}

	// デバイスが見つからない場合もあるため、エラーがないことを確認
	t.Logf("Found %d video devices", len(devices))
	for _, device := range devices {
		if !deviceNodePattern.MatchString(device) {
			t.Errorf("Unexpected device node %s", device)
		}
	}
}

func TestLinuxDiscovery_CheckAccess(t *testing.T) {
	ctx := context.Background()
	discovery := NewLinuxDiscovery()

	// 存在しないデバイスをテスト
	if err := discovery.CheckAccess(ctx, "/dev/video999"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}

	// 無効なパスをテスト
	if err := discovery.CheckAccess(ctx, "/invalid/path"); err == nil {
		t.Error("Expected invalid path to be unavailable")
	}
}

func TestExtractDeviceNumber(t *testing.T) {
	testCases := []struct {
		device string
		want   int
	}{
		{"/dev/video0", 0},
		{"/dev/video12", 12},
		{"/dev/null", 0},
	}

	for _, tc := range testCases {
		if got := extractDeviceNumber(tc.device); got != tc.want {
			t.Errorf("extractDeviceNumber(%s) = %d, want %d", tc.device, got, tc.want)
		}
	}
}

func TestMockDiscovery(t *testing.T) {
	ctx := context.Background()
	mockDevices := []string{"/dev/video0", "/dev/video2"}
	discovery := NewMockDiscovery(mockDevices)

	devices, err := discovery.ScanDevices(ctx)
	if err != nil {
		t.Fatalf("ScanDevices failed: %v", err)
	}

	if len(devices) != len(mockDevices) {
		t.Fatalf("Expected %d devices, got %d", len(mockDevices), len(devices))
	}

	if err := discovery.CheckAccess(ctx, "/dev/video0"); err != nil {
		t.Errorf("Expected /dev/video0 to be available: %v", err)
	}

	if err := discovery.CheckAccess(ctx, "/dev/video1"); err == nil {
		t.Error("Expected /dev/video1 to be unavailable")
	}

	info, err := discovery.GetDeviceInfo(ctx, "/dev/video2")
	if err != nil {
		t.Fatalf("GetDeviceInfo failed: %v", err)
	}
	if info.Name == "" {
		t.Error("Expected device name to be set")
	}

	// アクセス拒否
	discovery.Deny("/dev/video0")
	err = discovery.CheckAccess(ctx, "/dev/video0")
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("Expected permission error, got %v", err)
	}

	// 存在しないデバイス
	err = discovery.CheckAccess(ctx, "/dev/video9")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestMockDiscovery_AddRemoveDevice(t *testing.T) {
	ctx := context.Background()
	discovery := NewMockDiscovery([]string{"/dev/video0"})

	discovery.AddDevice("/dev/video1")
	discovery.AddDevice("/dev/video1") // 重複追加は無視される

	devices, _ := discovery.ScanDevices(ctx)
	if len(devices) != 2 {
		t.Fatalf("Expected 2 devices after addition, got %d", len(devices))
	}

	discovery.RemoveDevice("/dev/video0")

	devices, _ = discovery.ScanDevices(ctx)
	if len(devices) != 1 {
		t.Fatalf("Expected 1 device after removal, got %d", len(devices))
	}

	if err := discovery.CheckAccess(ctx, "/dev/video0"); err == nil {
		t.Error("Expected /dev/video0 to be unavailable after removal")
	}
}
