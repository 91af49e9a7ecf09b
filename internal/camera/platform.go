package camera

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Capabilities は環境準備で判明した実行環境の能力
type Capabilities struct {
	FacingDevices map[FacingMode]string // facing mode 互換レイヤーの対応表
	FFmpegVersion string                // 検出したffmpegのバージョン（空なら未検出）
}

// CanTranscode はmp4への変換が可能か返す
func (c Capabilities) CanTranscode() bool {
	return c.FFmpegVersion != ""
}

// Platform は実行環境ごとの初期化処理
type Platform interface {
	Name() string

	// NeedsShim は互換レイヤーの登録が必要か返す
	NeedsShim() bool

	// Prepare は互換レイヤーを登録し補助ツールを読み込む
	Prepare(ctx context.Context) (Capabilities, error)
}

// FacingRefresher はデバイスの増減に合わせて互換レイヤーを作り直せるPlatform
type FacingRefresher interface {
	Refresh(devices []DeviceInfo) map[FacingMode]string
}

// Environment はPlatformの準備を一度だけ実行し、完了を通知する
type Environment struct {
	platform Platform
	logger   *zap.Logger

	once    sync.Once
	started atomic.Bool // Prepare が呼ばれたか
	ready   chan struct{}
	caps  Capabilities
	err   error
}

// NewEnvironment は新しいEnvironmentを作成する
func NewEnvironment(platform Platform, logger *zap.Logger) *Environment {
	return &Environment{
		platform: platform,
		logger:   logger.Named("platform").With(zap.String("platform", platform.Name())),
		ready:    make(chan struct{}),
	}
}

// Prepare は環境準備を実行する
// 2回目以降の呼び出しは最初の結果を返す
func (e *Environment) Prepare(ctx context.Context) error {
	e.once.Do(func() {
		e.started.Store(true)
		defer close(e.ready)

		if !e.platform.NeedsShim() {
			e.logger.Debug("互換レイヤーは不要です")
			return
		}

		start := time.Now()
		e.caps, e.err = e.platform.Prepare(ctx)
		if e.err != nil {
			e.logger.Error("環境の準備に失敗", zap.Error(e.err))
			return
		}

		e.logger.Info("環境の準備が完了しました",
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("facing_devices", len(e.caps.FacingDevices)),
			zap.String("ffmpeg", e.caps.FFmpegVersion))
	})

	return e.err
}

// Ready は準備完了時にクローズされるチャンネルを返す
func (e *Environment) Ready() <-chan struct{} {
	return e.ready
}

// Wait は準備の完了を待つ
// Prepare が一度も呼ばれていなければ待たずに ErrEnvironmentNotReady を返す
func (e *Environment) Wait(ctx context.Context) error {
	if !e.started.Load() {
		return fmt.Errorf("%w: 環境準備が開始されていません", ErrEnvironmentNotReady)
	}

	select {
	case <-e.ready:
		if e.err != nil {
			return fmt.Errorf("%w: %v", ErrEnvironmentNotReady, e.err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrEnvironmentNotReady, ctx.Err())
	}
}

// Capabilities は準備で判明した能力を返す
// 準備完了前はゼロ値を返す
func (e *Environment) Capabilities() Capabilities {
	select {
	case <-e.ready:
		return e.caps
	default:
		return Capabilities{}
	}
}

// NativePlatform は互換レイヤーを必要としない環境
type NativePlatform struct{}

// Name はプラットフォーム名を返す
func (NativePlatform) Name() string { return "native" }

// NeedsShim は常にfalseを返す
func (NativePlatform) NeedsShim() bool { return false }

// Prepare は何もしない
func (NativePlatform) Prepare(context.Context) (Capabilities, error) {
	return Capabilities{}, nil
}

// ProbeFFmpeg はffmpegのバージョンを取得する
func ProbeFFmpeg(ctx context.Context, binary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, binary, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("FFmpegが見つかりません: %w", err)
	}

	return parseFFmpegVersion(string(output))
}

// parseFFmpegVersion は "ffmpeg version 6.1.1-3ubuntu5 Copyright ..." からバージョンを取り出す
func parseFFmpegVersion(output string) (string, error) {
	line := strings.SplitN(output, "\n", 2)[0]
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[1] != "version" {
		return "", fmt.Errorf("FFmpegのバージョンを解析できません: %q", line)
	}
	return fields[2], nil
}
