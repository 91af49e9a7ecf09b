package tui

import (
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"camscreen/internal/camera"
	"camscreen/internal/capture"
)

// Update はメッセージに応じてモデルを更新する
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.currentTime = time.Time(msg)
		m.status = m.screen.Status()
		return m, timeTickCmd()

	case startedMsg:
		m.starting = false
		m.status = m.screen.Status()
		if msg.err != nil {
			// 取得機能がない場合は撮影画面を表示しない
			if errors.Is(msg.err, camera.ErrCapabilityAbsent) {
				m.fatal = msg.err
				return m, nil
			}
			m.addMessage(describeError(msg.err), true)
			return m, nil
		}
		m.addMessage("カメラを開始しました", false)

	case resultMsg:
		m.status = m.screen.Status()
		if msg.err != nil {
			m.addMessage(describeError(msg.err), true)
			return m, nil
		}
		m.addMessage(msg.text, false)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "q" || key == "ctrl+c" {
		return m, tea.Sequence(closeCmd(m.screen), tea.Quit)
	}

	if m.fatal != nil || m.starting {
		return m, nil
	}

	switch key {
	case "c":
		return m, captureCmd(m.screen)
	case "f":
		return m, flipCmd(m.screen)
	case "t":
		return m, torchCmd(m.screen)
	case "r":
		return m, recordCmd(m.screen, m.screen.Status().Recorder.State == capture.RecorderRecording)
	case "p":
		return m, playbackCmd(m.screen)
	case "enter":
		// エラー状態からの再試行
		if m.status.Session.State == camera.StateError {
			m.starting = true
			return m, retryCmd(m.screen)
		}
	}

	return m, nil
}
