package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testRecording(id string, frames int) *Recording {
	data := make([][]byte, frames)
	for i := range data {
		data[i] = []byte{0xFF, 0xD8, byte(i), 0xFF, 0xD9}
	}
	now := time.Now()
	return newRecording(id, MimeMotionJPEG, 100, now, now.Add(time.Second), data)
}

func TestPlayer_Stream(t *testing.T) {
	player := NewPlayer(zap.NewNop())
	ctx := context.Background()

	if err := player.Stream(ctx, func([]byte) error { return nil }); !errors.Is(err, ErrNothingBound) {
		t.Errorf("Expected ErrNothingBound, got %v", err)
	}

	rec := testRecording("rec-1", 3)
	player.Bind(rec)
	if player.Current() != rec {
		t.Fatal("Expected bound recording")
	}

	var got []byte
	err := player.Stream(ctx, func(frame []byte) error {
		got = append(got, frame[2])
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to stream: %v", err)
	}
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("フレームは録画順に再生される: %v", got)
	}
}

func TestPlayer_BindReplacesPrevious(t *testing.T) {
	player := NewPlayer(zap.NewNop())
	first := testRecording("rec-1", 10)
	second := testRecording("rec-2", 2)

	player.Bind(first)

	played := 0
	err := player.Stream(context.Background(), func([]byte) error {
		played++
		if played == 2 {
			// 再生中に別の録画を割り当てる
			player.Bind(second)
		}
		return nil
	})
	if !errors.Is(err, ErrPlaybackReplaced) {
		t.Errorf("Expected ErrPlaybackReplaced, got %v", err)
	}
	if played != 2 {
		t.Errorf("前の再生は割り当て後に止まる: played %d", played)
	}
	if player.Current() != second {
		t.Error("Expected second recording to be bound")
	}

	player.Clear()
	if player.Current() != nil {
		t.Error("Clear後は何も割り当てられていない")
	}
}

func TestPlayer_ContextCancel(t *testing.T) {
	player := NewPlayer(zap.NewNop())
	rec := testRecording("rec-1", 5)
	rec.FPS = 1
	player.Bind(rec)

	ctx, cancel := context.WithCancel(context.Background())
	err := player.Stream(ctx, func([]byte) error {
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestPlayer_CallbackError(t *testing.T) {
	player := NewPlayer(zap.NewNop())
	player.Bind(testRecording("rec-1", 3))

	stop := errors.New("client gone")
	if err := player.Stream(context.Background(), func([]byte) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("Expected callback error, got %v", err)
	}
}

func TestLibrary(t *testing.T) {
	library := NewLibrary()

	if _, err := library.Latest(); !errors.Is(err, ErrRecordingNotFound) {
		t.Errorf("Expected ErrRecordingNotFound, got %v", err)
	}

	library.Add(testRecording("rec-1", 1))
	library.Add(testRecording("rec-2", 1))

	latest, err := library.Latest()
	if err != nil || latest.ID != "rec-2" {
		t.Errorf("Expected rec-2, got %v (%v)", latest, err)
	}
	if _, err := library.Get("rec-1"); err != nil {
		t.Errorf("Failed to get rec-1: %v", err)
	}
	if _, err := library.Get("missing"); !errors.Is(err, ErrRecordingNotFound) {
		t.Errorf("Expected ErrRecordingNotFound, got %v", err)
	}
	if len(library.List()) != 2 {
		t.Errorf("Expected 2 recordings, got %d", len(library.List()))
	}
}

func TestRecording_Frames(t *testing.T) {
	rec := testRecording("rec-1", 3)

	if rec.Frames != 3 || rec.Size != 15 {
		t.Errorf("Unexpected recording: frames=%d size=%d", rec.Frames, rec.Size)
	}
	if rec.Duration() != time.Second {
		t.Errorf("Expected 1s duration, got %s", rec.Duration())
	}
	if rec.FrameInterval() != 10*time.Millisecond {
		t.Errorf("Expected 10ms interval, got %s", rec.FrameInterval())
	}
	for i := 0; i < 3; i++ {
		if f := rec.Frame(i); len(f) != 5 || f[2] != byte(i) {
			t.Errorf("Unexpected frame %d: %v", i, f)
		}
	}
	if rec.Frame(-1) != nil {
		t.Error("範囲外のフレームはnil")
	}
}
