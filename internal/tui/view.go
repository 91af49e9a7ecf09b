package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"camscreen/internal/camera"
	"camscreen/internal/capture"
)

// スタイル
var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("250")).
			Padding(0, 1)

	mainContentStyle = lipgloss.NewStyle().
				Padding(1, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	recordingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	liveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))
)

// View は撮影画面を描画する
func (m Model) View() string {
	header := headerStyle.Width(m.width).Render(lipgloss.JoinHorizontal(
		lipgloss.Center,
		"camscreen",
		lipgloss.NewStyle().
			Width(max(m.width-14, 0)).
			Align(lipgloss.Right).
			Render(m.currentTime.Format("15:04:05")),
	))

	// 取得機能がない場合はエラーだけを表示する
	if m.fatal != nil {
		body := mainContentStyle.Render(errorStyle.Render("カメラを利用できません: " + m.fatal.Error()))
		return fmt.Sprintf("%s\n%s\n%s", header, body, statusBarStyle.Width(m.width).Render("q: 終了"))
	}

	body := mainContentStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatus(),
		"",
		m.renderMessages(),
	))

	help := "c: 撮影 | f: 切り替え | t: ライト | r: 録画 | p: 再生 | q: 終了"
	if m.status.Session.State == camera.StateError {
		help = "enter: 再試行 | " + help
	}

	return fmt.Sprintf("%s\n%s\n%s", header, body, statusBarStyle.Width(m.width).Render(help))
}

func (m Model) renderStatus() string {
	s := m.status
	var b strings.Builder

	state := string(s.Session.State)
	switch {
	case m.starting:
		state = "開始中..."
	case s.Session.State == camera.StateLive:
		state = liveStyle.Render(state)
	case s.Session.State == camera.StateError:
		state = errorStyle.Render(state)
	}

	torch := "OFF"
	if s.Session.Torch {
		torch = "ON"
	}

	recording := string(s.Recorder.State)
	if s.Recorder.State == capture.RecorderRecording {
		recording = recordingStyle.Render(fmt.Sprintf("● REC %dフレーム", s.Recorder.Frames))
	}

	rows := [][2]string{
		{"状態", state},
		{"カメラ", string(s.Session.FacingMode)},
		{"ライト", torch},
		{"撮影", fmt.Sprintf("%d枚", s.Captures)},
		{"録画", recording},
		{"保存済み", fmt.Sprintf("%d本", s.Recordings)},
	}
	if s.Playback != "" {
		rows = append(rows, [2]string{"再生中", s.Playback})
	}
	if reason := s.Session.Reason(); reason != "" {
		rows = append(rows, [2]string{"エラー", errorStyle.Render(reason)})
	}

	for _, row := range rows {
		b.WriteString(labelStyle.Render(row[0]))
		b.WriteString(row[1])
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMessages() string {
	var b strings.Builder
	for _, msg := range m.messages {
		line := fmt.Sprintf("[%s] %s", msg.timestamp.Format("15:04:05"), msg.text)
		if msg.isError {
			line = errorStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
