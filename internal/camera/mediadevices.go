package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera" // カメラドライバの登録
	"github.com/pion/mediadevices/pkg/prop"
	"go.uber.org/zap"
)

// MediaDevicesBackend は pion/mediadevices を使った実デバイスの取得API
//
// pion/mediadevices は facingMode 制約を持たないため、
// MediaDevicesPlatform が登録する向き→デバイスIDの対応表で代替する。
type MediaDevicesBackend struct {
	torchControl string
	logger       *zap.Logger

	mu     sync.RWMutex
	facing map[FacingMode]string
}

// NewMediaDevicesBackend は新しいMediaDevicesBackendを作成する
func NewMediaDevicesBackend(torchControl string, logger *zap.Logger) *MediaDevicesBackend {
	return &MediaDevicesBackend{
		torchControl: torchControl,
		logger:       logger.Named("mediadevices"),
		facing:       make(map[FacingMode]string),
	}
}

// EnumerateDevices は映像入力デバイスを列挙する
func (b *MediaDevicesBackend) EnumerateDevices(_ context.Context) []DeviceInfo {
	var devices []DeviceInfo
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind != mediadevices.VideoInput {
			continue
		}
		devices = append(devices, DeviceInfo{
			Device: d.DeviceID,
			Name:   d.Label,
			Driver: string(d.DeviceType),
		})
	}
	return devices
}

// RegisterFacing は向き→デバイスIDの対応表を登録する
func (b *MediaDevicesBackend) RegisterFacing(facing map[FacingMode]string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.facing = make(map[FacingMode]string, len(facing))
	for mode, id := range facing {
		b.facing[mode] = id
	}
}

// resolveDevice は向きに対応するデバイスIDを返す
// 対応するデバイスがなければ反対側のデバイスで代替し、どちらもなければ空を返す
func (b *MediaDevicesBackend) resolveDevice(facing FacingMode) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if id, ok := b.facing[facing]; ok {
		return id
	}
	return b.facing[facing.Opposite()]
}

type getUserMediaResult struct {
	stream mediadevices.MediaStream
	err    error
}

// GetUserMedia は制約に合うストリームを取得する
func (b *MediaDevicesBackend) GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error) {
	deviceID := b.resolveDevice(constraints.FacingMode)

	result := make(chan getUserMediaResult, 1)
	go func() {
		stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
			Video: func(c *mediadevices.MediaTrackConstraints) {
				if deviceID != "" {
					c.DeviceID = prop.String(deviceID)
				}
				if constraints.Width > 0 {
					c.Width = prop.Int(constraints.Width)
				}
				if constraints.Height > 0 {
					c.Height = prop.Int(constraints.Height)
				}
				if constraints.FPS > 0 {
					c.FrameRate = prop.Float(float64(constraints.FPS))
				}
			},
		})
		result <- getUserMediaResult{stream: stream, err: err}
	}()

	select {
	case r := <-result:
		if r.err != nil {
			return nil, b.translateError(r.err)
		}
		return b.wrapStream(r.stream, deviceID), nil

	case <-ctx.Done():
		// 取得が後から完了した場合もデバイスを解放する
		go func() {
			if r := <-result; r.err == nil {
				for _, track := range r.stream.GetTracks() {
					_ = track.Close()
				}
			}
		}()
		return nil, &PlatformError{Name: "AbortError", Message: ctx.Err().Error()}
	}
}

func (b *MediaDevicesBackend) wrapStream(stream mediadevices.MediaStream, deviceID string) *mediaStream {
	label := b.labelFor(deviceID)
	s := &mediaStream{id: uuid.New().String()}
	for _, t := range stream.GetTracks() {
		track := &mediaTrack{
			track:  t,
			label:  label,
			logger: b.logger,
		}
		if vt, ok := t.(*mediadevices.VideoTrack); ok {
			track.video = vt
			if node := devicePath(label); node != "" {
				track.torch = NewV4L2Torch(node, b.torchControl)
			}
		}
		s.tracks = append(s.tracks, track)
	}
	return s
}

// labelFor はデバイスIDに対応するラベルを返す（見つからなければIDを返す）
func (b *MediaDevicesBackend) labelFor(deviceID string) string {
	for _, d := range b.EnumerateDevices(context.Background()) {
		if d.Device == deviceID && d.Name != "" {
			return d.Name
		}
	}
	return deviceID
}

// translateError はドライバのエラーを名前付きの PlatformError に変換する
func (b *MediaDevicesBackend) translateError(err error) error {
	msg := err.Error()
	switch {
	case errors.Is(err, syscall.EBUSY):
		return &PlatformError{Name: "NotReadableError", Message: msg}
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return &PlatformError{Name: "NotAllowedError", Message: msg}
	case strings.Contains(msg, "failed to find"):
		// デバイスが1つもなければ NotFound、あれば制約が合わなかった
		if len(b.EnumerateDevices(context.Background())) == 0 {
			return &PlatformError{Name: "NotFoundError", Message: msg}
		}
		return &PlatformError{Name: "OverconstrainedError", Message: msg}
	case strings.Contains(msg, "busy"):
		return &PlatformError{Name: "NotReadableError", Message: msg}
	default:
		return fmt.Errorf("ストリームの取得に失敗: %w", err)
	}
}

// devicePath はデバイスラベルからV4L2のデバイスノードを推定する
// Linuxのドライバはラベルに "video0" のようなノード名を含む
func devicePath(deviceID string) string {
	for _, part := range strings.FieldsFunc(deviceID, func(r rune) bool { return r == ';' || r == ' ' }) {
		if strings.HasPrefix(part, "/dev/video") {
			return part
		}
		if strings.HasPrefix(part, "video") {
			return "/dev/" + part
		}
	}
	return ""
}

type mediaStream struct {
	id     string
	tracks []Track
}

func (s *mediaStream) ID() string      { return s.id }
func (s *mediaStream) Tracks() []Track { return s.tracks }

func (s *mediaStream) VideoTracks() []Track {
	var tracks []Track
	for _, t := range s.tracks {
		if t.Kind() == TrackVideo {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

type mediaTrack struct {
	track  mediadevices.Track
	video  *mediadevices.VideoTrack
	torch  *V4L2Torch
	label  string
	logger *zap.Logger

	once sync.Once
	err  error
}

func (t *mediaTrack) ID() string    { return t.track.ID() }
func (t *mediaTrack) Label() string { return t.label }

func (t *mediaTrack) Kind() TrackKind {
	if t.video != nil {
		return TrackVideo
	}
	return TrackAudio
}

func (t *mediaTrack) NewReader() FrameReader {
	if t.video == nil {
		return nil
	}
	return t.video.NewReader(false)
}

// Stop はトラックを閉じる（複数回呼んでも安全）
func (t *mediaTrack) Stop() error {
	t.once.Do(func() {
		t.err = t.track.Close()
		t.logger.Debug("トラックを停止しました", zap.String("track", t.label))
	})
	return t.err
}

func (t *mediaTrack) SetTorch(ctx context.Context, on bool) error {
	if t.torch == nil {
		return fmt.Errorf("ライト制御に対応していません: %s", t.label)
	}
	return t.torch.SetTorch(ctx, on)
}

// FacingRegistry は facing mode の互換レイヤーを受け入れる取得API
type FacingRegistry interface {
	MediaDevices
	RegisterFacing(facing map[FacingMode]string)
}

// MediaDevicesPlatform は facingMode を持たない取得API向けの環境準備
//
// facing mode の互換レイヤー（向き→デバイスID）を登録し、
// 録画のmp4変換に使うffmpegを読み込む。
type MediaDevicesPlatform struct {
	backend    FacingRegistry
	configured map[FacingMode]string
	ffmpeg     string
	logger     *zap.Logger
}

// NewMediaDevicesPlatform は新しいMediaDevicesPlatformを作成する
// configured は設定ファイルで明示された向きごとのデバイスID
func NewMediaDevicesPlatform(backend FacingRegistry, configured map[FacingMode]string, ffmpeg string, logger *zap.Logger) *MediaDevicesPlatform {
	return &MediaDevicesPlatform{
		backend:    backend,
		configured: configured,
		ffmpeg:     ffmpeg,
		logger:     logger.Named("platform"),
	}
}

// Name はプラットフォーム名を返す
func (p *MediaDevicesPlatform) Name() string { return "mediadevices" }

// NeedsShim は常にtrueを返す
func (p *MediaDevicesPlatform) NeedsShim() bool { return true }

// Prepare は互換レイヤーを登録し、ffmpegを検出する
// ffmpegがなくても準備は成功し、mp4変換だけが無効になる
func (p *MediaDevicesPlatform) Prepare(ctx context.Context) (Capabilities, error) {
	facing := BuildFacingMap(p.backend.EnumerateDevices(ctx), p.configured)
	p.backend.RegisterFacing(facing)

	caps := Capabilities{FacingDevices: facing}
	if p.ffmpeg != "" {
		// 呼び出し元のキャンセルに関わらずProbeFFmpegの期限まで検出する
		version, err := ProbeFFmpeg(context.WithoutCancel(ctx), p.ffmpeg)
		if err != nil {
			p.logger.Warn("FFmpegが見つからないためmp4変換は無効です", zap.Error(err))
		} else {
			caps.FFmpegVersion = version
		}
	}

	return caps, nil
}

// Refresh はデバイスの増減に合わせて互換レイヤーの対応表を作り直す
func (p *MediaDevicesPlatform) Refresh(devices []DeviceInfo) map[FacingMode]string {
	facing := BuildFacingMap(devices, p.configured)
	p.backend.RegisterFacing(facing)
	p.logger.Info("互換レイヤーを更新しました", zap.Int("devices", len(devices)), zap.Int("facing_devices", len(facing)))
	return facing
}

// BuildFacingMap は列挙されたデバイスから向き→デバイスIDの対応表を作る
//
// 設定で明示されたデバイスが存在すればそれを使い、
// それ以外は列挙順に前面・背面を割り当てる。
func BuildFacingMap(devices []DeviceInfo, configured map[FacingMode]string) map[FacingMode]string {
	present := make(map[string]bool, len(devices))
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		present[d.Device] = true
		ids = append(ids, d.Device)
	}

	facing := make(map[FacingMode]string)
	used := make(map[string]bool)
	for _, mode := range []FacingMode{FacingUser, FacingEnvironment} {
		if id := configured[mode]; id != "" && present[id] {
			facing[mode] = id
			used[id] = true
		}
	}

	for _, mode := range []FacingMode{FacingUser, FacingEnvironment} {
		if _, ok := facing[mode]; ok {
			continue
		}
		for _, id := range ids {
			if !used[id] {
				facing[mode] = id
				used[id] = true
				break
			}
		}
	}

	return facing
}
