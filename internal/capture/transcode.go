package capture

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// Transcoder はffmpegでJPEGフレーム列をmp4に変換する
// 入出力はパイプで受け渡し、一時ファイルは作らない
type Transcoder struct {
	binary  string
	quality int
}

// NewTranscoder は新しいTranscoderを作成する
// binary が空の場合は変換できない
func NewTranscoder(binary string, quality int) *Transcoder {
	return &Transcoder{binary: binary, quality: quality}
}

// Available は変換が可能か返す
func (t *Transcoder) Available() bool {
	return t != nil && t.binary != ""
}

// Transcode はJPEGフレーム列をmp4に変換する
func (t *Transcoder) Transcode(ctx context.Context, frames [][]byte, fps int) ([]byte, error) {
	if !t.Available() {
		return nil, ErrTranscodeUnavailable
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("変換するフレームがありません")
	}

	cmd := exec.CommandContext(ctx, t.binary, t.args(fps)...)

	var stdin bytes.Buffer
	for _, f := range frames {
		stdin.Write(f)
	}
	cmd.Stdin = &stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("mp4への変換に失敗: %w (stderr: %s)", err, stderr.String())
	}

	return stdout.Bytes(), nil
}

func (t *Transcoder) args(fps int) []string {
	return []string{
		"-f", "image2pipe",
		"-framerate", strconv.Itoa(fps),
		"-c:v", "mjpeg",
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", qualityToCRF(t.quality),
		"-pix_fmt", "yuv420p",
		// パイプ出力のため moov を先頭に置けないので断片化mp4にする
		"-movflags", "frag_keyframe+empty_moov",
		"-f", "mp4",
		"-",
	}
}

// qualityToCRF は品質設定(1-100)をFFmpegのCRF値に変換する
func qualityToCRF(quality int) string {
	// 品質1(低) -> CRF28, 品質100(高) -> CRF18
	crf := 28.0 - float64(quality-1)*10.0/99.0
	if crf < 18 {
		crf = 18
	}
	if crf > 28 {
		crf = 28
	}
	return strconv.FormatFloat(crf, 'f', 1, 64)
}
