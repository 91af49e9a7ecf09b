package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestScanJPEG(t *testing.T) {
	frame1 := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	frame2 := []byte{0xFF, 0xD8, 0x03, 0xFF, 0xD9}

	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x00}) // 先頭のゴミ
	stream.Write(frame1)
	stream.Write(frame2)
	stream.Write([]byte{0xFF, 0xD8, 0x04}) // 途中で切れたフレーム

	scanner := bufio.NewScanner(&stream)
	scanner.Split(scanJPEG)

	var frames [][]byte
	for scanner.Scan() {
		frames = append(frames, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Failed to scan: %v", err)
	}

	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], frame1) {
		t.Errorf("Unexpected first frame: %x", frames[0])
	}
	if !bytes.Equal(frames[1], frame2) {
		t.Errorf("Unexpected second frame: %x", frames[1])
	}
}

func TestClassifyFFmpegFailure(t *testing.T) {
	testCases := []struct {
		stderr string
		kind   ErrorKind
	}{
		{"/dev/video0: Device or resource busy", KindInUse},
		{"/dev/video0: Input/output error", KindNotReadable},
		{"/dev/video0: Permission denied", KindPermissionDenied},
		{"/dev/video9: No such file or directory", KindNotFound},
		{"ioctl(VIDIOC_S_FMT): Invalid argument", KindOverconstrained},
		{"unexpected failure", KindInUse},
	}

	for _, tc := range testCases {
		t.Run(tc.stderr, func(t *testing.T) {
			err := classifyFFmpegFailure(errors.New("exit status 1"), tc.stderr)
			if got := Classify(err).Kind; got != tc.kind {
				t.Errorf("Expected %s, got %s", tc.kind, got)
			}
		})
	}
}

func TestV4L2Backend_GetUserMediaErrors(t *testing.T) {
	ctx := context.Background()
	constraints := Constraints{FacingMode: FacingUser}

	t.Run("デバイスなし", func(t *testing.T) {
		backend := NewV4L2Backend(NewMockDiscovery(nil), "ffmpeg", "", zap.NewNop())
		_, err := backend.GetUserMedia(ctx, constraints)
		if Classify(err).Kind != KindNotFound {
			t.Errorf("Expected NotFound, got %v", err)
		}
	})

	t.Run("権限なし", func(t *testing.T) {
		discovery := NewMockDiscovery([]string{"/dev/video0"})
		discovery.Deny("/dev/video0")
		backend := NewV4L2Backend(discovery, "ffmpeg", "", zap.NewNop())

		_, err := backend.GetUserMedia(ctx, constraints)
		if Classify(err).Kind != KindPermissionDenied {
			t.Errorf("Expected PermissionDenied, got %v", err)
		}
	})

	t.Run("ffmpegが起動できない", func(t *testing.T) {
		backend := NewV4L2Backend(NewMockDiscovery([]string{"/dev/video0"}), "/nonexistent/ffmpeg", "", zap.NewNop())

		_, err := backend.GetUserMedia(ctx, constraints)
		if Classify(err).Kind != KindNotReadable {
			t.Errorf("Expected NotReadable, got %v", err)
		}
		// 失敗したデバイスは解放されている
		if backend.open["/dev/video0"] {
			t.Error("Expected device to be released")
		}
	})
}

func TestV4L2Backend_ResolveDevice(t *testing.T) {
	ctx := context.Background()
	backend := NewV4L2Backend(NewMockDiscovery([]string{"/dev/video0", "/dev/video2"}), "ffmpeg", "", zap.NewNop())

	if got := backend.resolveDevice(ctx, FacingEnvironment); got != "/dev/video0" {
		t.Errorf("未登録の場合は先頭のデバイス: got %s", got)
	}

	backend.RegisterFacing(map[FacingMode]string{
		FacingUser:        "/dev/video0",
		FacingEnvironment: "/dev/video2",
	})
	if got := backend.resolveDevice(ctx, FacingEnvironment); got != "/dev/video2" {
		t.Errorf("Expected /dev/video2, got %s", got)
	}

	backend.RegisterFacing(map[FacingMode]string{FacingUser: "/dev/video0"})
	if got := backend.resolveDevice(ctx, FacingEnvironment); got != "/dev/video0" {
		t.Errorf("反対側のデバイスで代替する: got %s", got)
	}
}

func TestV4L2Backend_EnumerateDevices(t *testing.T) {
	backend := NewV4L2Backend(NewMockDiscovery([]string{"/dev/video0", "/dev/video2"}), "ffmpeg", "", zap.NewNop())

	devices := backend.EnumerateDevices(context.Background())
	if len(devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(devices))
	}
	if devices[1].Name != "テストカメラ 2" {
		t.Errorf("Unexpected device name: %s", devices[1].Name)
	}
}
