package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"camscreen/internal/camera"
	"camscreen/internal/screen"
)

// maxMessages は画面に残す操作結果の数
const maxMessages = 6

type message struct {
	text      string
	timestamp time.Time
	isError   bool
}

// メッセージ
type tickMsg time.Time

// startedMsg はセッション開始の結果
type startedMsg struct {
	err error
}

// resultMsg はカメラ操作の結果
type resultMsg struct {
	text string
	err  error
}

// Model は撮影画面の状態を保持する
type Model struct {
	screen      *screen.Screen
	width       int
	height      int
	status      screen.Status
	starting    bool
	fatal       error
	messages    []message
	currentTime time.Time
}

// New は撮影画面のModelを作成する
func New(scr *screen.Screen) Model {
	return Model{
		screen:      scr,
		status:      scr.Status(),
		starting:    true,
		currentTime: time.Now(),
	}
}

// Init はセッションの開始と時刻更新を始める
func (m Model) Init() tea.Cmd {
	return tea.Batch(startCmd(m.screen), timeTickCmd())
}

func (m *Model) addMessage(text string, isError bool) {
	m.messages = append(m.messages, message{
		text:      text,
		timestamp: time.Now(),
		isError:   isError,
	})
	if len(m.messages) > maxMessages {
		m.messages = m.messages[1:]
	}
}

func timeTickCmd() tea.Cmd {
	return tea.Every(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// コマンド
// カメラ操作はデバイス待ちでUIを止めないよう全て tea.Cmd で実行する

func startCmd(scr *screen.Screen) tea.Cmd {
	return func() tea.Msg {
		return startedMsg{err: scr.Start(context.Background())}
	}
}

func retryCmd(scr *screen.Screen) tea.Cmd {
	return func() tea.Msg {
		return startedMsg{err: scr.Retry(context.Background())}
	}
}

func captureCmd(scr *screen.Screen) tea.Cmd {
	return func() tea.Msg {
		shot, err := scr.CaptureFrame()
		if err != nil {
			return resultMsg{err: fmt.Errorf("撮影に失敗: %w", err)}
		}
		return resultMsg{text: fmt.Sprintf("撮影しました (%dx%d, %d枚目)", shot.Width, shot.Height, len(scr.Captures()))}
	}
}

func flipCmd(scr *screen.Screen) tea.Cmd {
	return func() tea.Msg {
		if err := scr.Flip(context.Background()); err != nil {
			return resultMsg{err: fmt.Errorf("切り替えに失敗: %w", err)}
		}
		return resultMsg{text: fmt.Sprintf("カメラを切り替えました (%s)", scr.Status().Session.FacingMode)}
	}
}

func torchCmd(scr *screen.Screen) tea.Cmd {
	return func() tea.Msg {
		if scr.ToggleTorch(context.Background()) {
			return resultMsg{text: "ライト: ON"}
		}
		return resultMsg{text: "ライト: OFF"}
	}
}

func recordCmd(scr *screen.Screen, recording bool) tea.Cmd {
	return func() tea.Msg {
		if recording {
			rec, err := scr.StopRecording(context.Background())
			if err != nil {
				return resultMsg{err: fmt.Errorf("録画の停止に失敗: %w", err)}
			}
			return resultMsg{text: fmt.Sprintf("録画を保存しました (%s, %dフレーム, %s)", rec.MimeType, rec.Frames, rec.Duration().Round(100*time.Millisecond))}
		}

		if _, err := scr.StartRecording(""); err != nil {
			return resultMsg{err: fmt.Errorf("録画の開始に失敗: %w", err)}
		}
		return resultMsg{text: "録画を開始しました"}
	}
}

func playbackCmd(scr *screen.Screen) tea.Cmd {
	return func() tea.Msg {
		rec, err := scr.Playback("")
		if err != nil {
			return resultMsg{err: fmt.Errorf("再生できません: %w", err)}
		}
		return resultMsg{text: fmt.Sprintf("再生: %s (%dフレーム)", rec.ID, rec.Frames)}
	}
}

func closeCmd(scr *screen.Screen) tea.Cmd {
	return func() tea.Msg {
		scr.Close(context.Background())
		return nil
	}
}

// describeError はエラーを画面表示用の文にする
func describeError(err error) string {
	var camErr *camera.CameraError
	switch {
	case errors.As(err, &camErr):
		return camErr.Reason()
	case errors.Is(err, screen.ErrNotLive):
		return "カメラが稼働していません"
	default:
		return err.Error()
	}
}
