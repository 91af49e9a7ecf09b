package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var deviceNodePattern = regexp.MustCompile(`^/dev/video(\d+)$`)

// LinuxDiscovery はLinux環境でのV4L2デバイス検出を実装する
type LinuxDiscovery struct {
	pattern string
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() *LinuxDiscovery {
	return &LinuxDiscovery{pattern: "/dev/video*"}
}

// ScanDevices はシステム内のカメラデバイスノードをスキャンする
// 権限の有無に関わらず存在するノードを返す（権限確認はGateの責務）
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	devices := make([]string, 0, len(matches))
	for _, match := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if !deviceNodePattern.MatchString(match) {
			continue
		}
		// メタデータ専用ノードなどは除外する
		if !d.isCaptureNode(ctx, match) {
			continue
		}
		devices = append(devices, match)
	}

	return devices, nil
}

// CheckAccess はデバイスを読み取り専用で開けるか確認する
func (d *LinuxDiscovery) CheckAccess(_ context.Context, device string) error {
	if !deviceNodePattern.MatchString(device) {
		return fmt.Errorf("V4L2デバイスではありません: %s", device)
	}

	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	return file.Close()
}

// GetDeviceInfo はデバイスの詳細情報を取得する
func (d *LinuxDiscovery) GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if err := d.CheckAccess(ctx, device); err != nil {
		return nil, fmt.Errorf("デバイスが利用できません: %s: %w", device, err)
	}

	info := &DeviceInfo{
		Device:  device,
		Name:    d.deviceName(ctx, device),
		Driver:  "v4l2",
		Formats: d.formats(ctx, device),
	}

	return info, nil
}

// deviceName はv4l2-ctlの Card type からデバイス名を取得する
func (d *LinuxDiscovery) deviceName(ctx context.Context, device string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--info").Output()
	if err == nil {
		for _, line := range strings.Split(string(output), "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "Card type") {
				continue
			}
			if parts := strings.SplitN(line, ":", 2); len(parts) == 2 {
				if name := strings.TrimSpace(parts[1]); name != "" {
					return name
				}
			}
		}
	}

	// フォールバック: デバイス番号から生成
	return fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
}

// formats はサポートされているピクセルフォーマットを取得する
func (d *LinuxDiscovery) formats(ctx context.Context, device string) []string {
	output, err := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--list-formats").Output()
	if err != nil {
		return nil
	}

	var formats []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "[") && strings.Contains(line, "]") {
			formats = append(formats, line)
		}
	}
	return formats
}

// isCaptureNode はデバイスが映像キャプチャ用ノードか判定する
// v4l2-ctl が使えない環境では判定できないため含める
func (d *LinuxDiscovery) isCaptureNode(ctx context.Context, device string) bool {
	output, err := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--list-formats").Output()
	if err != nil {
		return true
	}

	out := string(output)
	// グレースケールのみのデバイス（IRカメラ等）は除外
	if strings.Contains(out, "GREY") && !strings.Contains(out, "YUYV") && !strings.Contains(out, "MJPG") {
		return false
	}
	return strings.Contains(out, "[")
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNodePattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}

	return num
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	devices []string
	denied  map[string]bool
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices []string) *MockDiscovery {
	return &MockDiscovery{
		devices: append([]string(nil), devices...),
		denied:  make(map[string]bool),
	}
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]string, error) {
	return append([]string(nil), m.devices...), nil
}

// CheckAccess はモックデバイスのアクセス可否を返す
func (m *MockDiscovery) CheckAccess(_ context.Context, device string) error {
	if !m.has(device) {
		return fmt.Errorf("デバイスが見つかりません: %s: %w", device, os.ErrNotExist)
	}
	if m.denied[device] {
		return fmt.Errorf("デバイスへのアクセスが拒否されました: %s: %w", device, os.ErrPermission)
	}
	return nil
}

// GetDeviceInfo はモックデバイス情報を取得する
func (m *MockDiscovery) GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if err := m.CheckAccess(ctx, device); err != nil {
		return nil, err
	}

	return &DeviceInfo{
		Device:  device,
		Name:    fmt.Sprintf("テストカメラ %d", extractDeviceNumber(device)),
		Driver:  "mock",
		Formats: []string{"MJPEG"},
	}, nil
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockDiscovery) AddDevice(device string) {
	if m.has(device) {
		return
	}
	m.devices = append(m.devices, device)
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockDiscovery) RemoveDevice(device string) {
	for i, d := range m.devices {
		if d == device {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			break
		}
	}
	delete(m.denied, device)
}

// Deny はテスト用にデバイスへのアクセスを拒否する
func (m *MockDiscovery) Deny(device string) {
	m.denied[device] = true
}

func (m *MockDiscovery) has(device string) bool {
	for _, d := range m.devices {
		if d == device {
			return true
		}
	}
	return false
}
