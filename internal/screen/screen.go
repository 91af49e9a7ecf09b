package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"camscreen/internal/camera"
	"camscreen/internal/capture"
	"camscreen/internal/config"
)

// ErrNotLive はカメラが稼働していないため操作できない
var ErrNotLive = errors.New("カメラが稼働していません")

// Options は画面の設定
type Options struct {
	Session       camera.SessionOptions
	CaptureWidth  int
	CaptureHeight int
	CaptureMime   string
	Recorder      capture.RecorderOptions
	FFmpegPath    string
	WatchInterval time.Duration
}

// Status は画面全体の状態のスナップショット
type Status struct {
	Session      camera.SessionStatus   `json:"-"`
	Recorder     capture.RecorderStatus `json:"recorder"`
	Captures     int                    `json:"captures"`
	Recordings   int                    `json:"recordings"`
	Playback     string                 `json:"playback,omitempty"`
	CanTranscode bool                   `json:"can_transcode"`
	Backend      string                 `json:"backend"`
}

// Screen はカメラセッションと撮影・録画・再生をまとめた撮影画面
type Screen struct {
	backend  *camera.Backend
	env      *camera.Environment
	session  *camera.Session
	capturer *capture.Capturer
	recorder *capture.Recorder
	player   *capture.Player
	watcher  *camera.Watcher
	opts     Options
	logger   *zap.Logger

	// 切り替えと録画開始の排他
	mu sync.Mutex
}

// New は新しいScreenを作成する
func New(backend *camera.Backend, opts Options, logger *zap.Logger) *Screen {
	logger = logger.Named("screen").With(zap.String("backend", backend.Name))

	env := camera.NewEnvironment(backend.Platform, logger)
	session := camera.NewSession(backend.Devices, backend.Gate, env, opts.Session, logger)

	s := &Screen{
		backend:  backend,
		env:      env,
		session:  session,
		capturer: capture.NewCapturer(capture.NewSurface(opts.CaptureWidth, opts.CaptureHeight), capture.NewGallery(), opts.CaptureMime, logger),
		recorder: capture.NewRecorder(opts.Recorder, nil, capture.NewLibrary(), logger),
		player:   capture.NewPlayer(logger),
		opts:     opts,
		logger:   logger,
	}
	s.watcher = camera.NewWatcher(backend.Devices, opts.WatchInterval, s.onDeviceChange, logger)

	return s
}

// NewFromConfig は設定からバックエンドを作成してScreenを作成する
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (*Screen, error) {
	backend, err := camera.NewBackendFactory().Create(cfg.Camera.Backend, camera.BackendConfig{
		FacingDevices: map[camera.FacingMode]string{
			camera.FacingUser:        cfg.Camera.Devices.User,
			camera.FacingEnvironment: cfg.Camera.Devices.Environment,
		},
		TorchControl: cfg.Camera.TorchControl,
		FFmpegPath:   cfg.Camera.FFmpegPath,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("バックエンドの作成に失敗: %w", err)
	}

	facing, err := camera.ParseFacingMode(cfg.Camera.InitialFacingMode)
	if err != nil {
		return nil, err
	}

	return New(backend, Options{
		Session: camera.SessionOptions{
			InitialFacingMode: facing,
			Width:             cfg.Camera.Width,
			Height:            cfg.Camera.Height,
			FPS:               cfg.Camera.FPS,
			PermissionTimeout: cfg.Camera.PermissionTimeout,
		},
		CaptureWidth:  cfg.Capture.Width,
		CaptureHeight: cfg.Capture.Height,
		CaptureMime:   cfg.Capture.MimeType,
		Recorder: capture.RecorderOptions{
			FPS:         cfg.Recording.FPS,
			Quality:     cfg.Recording.Quality,
			MaxDuration: cfg.Recording.MaxDuration,
			MimeType:    cfg.Recording.MimeType,
		},
		FFmpegPath:    cfg.Camera.FFmpegPath,
		WatchInterval: 5 * time.Second,
	}, logger), nil
}

// Start はカメラセッションを開始する
// 取得機能がない場合は camera.ErrCapabilityAbsent を返す
func (s *Screen) Start(ctx context.Context) error {
	err := s.session.Start(ctx)

	// 環境準備が済んでいればmp4変換の可否を反映する
	select {
	case <-s.env.Ready():
		if s.env.Capabilities().CanTranscode() {
			s.recorder.SetTranscoder(capture.NewTranscoder(s.opts.FFmpegPath, s.opts.Recorder.Quality))
		}
		s.watcher.Start(context.WithoutCancel(ctx))
	default:
	}

	return err
}

// Retry はエラー状態から再取得する
func (s *Screen) Retry(ctx context.Context) error {
	return s.Start(ctx)
}

// Close は録画を確定し、全てのトラックを停止する
func (s *Screen) Close(ctx context.Context) {
	if s.recorder.IsRecording() {
		if _, err := s.recorder.Stop(ctx); err != nil && !errors.Is(err, capture.ErrNoRecording) {
			s.logger.Warn("終了時の録画の確定に失敗", zap.Error(err))
		}
	}
	s.watcher.Stop()
	s.player.Clear()
	s.session.Stop(ctx)
	s.logger.Info("撮影画面を終了しました")
}

// Flip は前面/背面カメラを切り替える
// 録画中は録画元のストリームを止めてしまうため切り替えない
func (s *Screen) Flip(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recorder.IsRecording() {
		return capture.ErrRecordingInProgress
	}
	return s.session.Flip(ctx)
}

// ToggleTorch はライトを切り替え、切り替え後の状態を返す
func (s *Screen) ToggleTorch(ctx context.Context) bool {
	return s.session.ToggleTorch(ctx)
}

// CaptureFrame はライブ映像から静止画を撮影する
// 録画中でも撮影できる
func (s *Screen) CaptureFrame() (capture.Capture, error) {
	track, err := s.liveTrack()
	if err != nil {
		return capture.Capture{}, err
	}
	return s.capturer.CaptureFrame(track)
}

// Captures は撮影した静止画を撮影順に返す
func (s *Screen) Captures() []capture.Capture {
	return s.capturer.Gallery().List()
}

// Capture はIDで静止画を返す
func (s *Screen) Capture(id string) (capture.Capture, error) {
	return s.capturer.Gallery().Get(id)
}

// StartRecording はライブ映像の録画を開始する
func (s *Screen) StartRecording(mime string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	track, err := s.liveTrack()
	if err != nil {
		return "", err
	}
	return s.recorder.Start(track, mime)
}

// StopRecording は録画を停止して確定した録画を返す
func (s *Screen) StopRecording(ctx context.Context) (*capture.Recording, error) {
	return s.recorder.Stop(ctx)
}

// Recordings は確定した録画を録画順に返す
func (s *Screen) Recordings() []*capture.Recording {
	return s.recorder.Library().List()
}

// Recording はIDで録画を返す
func (s *Screen) Recording(id string) (*capture.Recording, error) {
	return s.recorder.Library().Get(id)
}

// Playback は録画を再生面に割り当てる
// id が空の場合は最後の録画を割り当てる
func (s *Screen) Playback(id string) (*capture.Recording, error) {
	var (
		rec *capture.Recording
		err error
	)
	if id == "" {
		rec, err = s.recorder.Library().Latest()
	} else {
		rec, err = s.recorder.Library().Get(id)
	}
	if err != nil {
		return nil, err
	}

	s.player.Bind(rec)
	return rec, nil
}

// Player は再生面を返す
func (s *Screen) Player() *capture.Player {
	return s.player
}

// PreviewReader はライブ映像のプレビュー用リーダーを返す
func (s *Screen) PreviewReader() (camera.FrameReader, error) {
	track, err := s.liveTrack()
	if err != nil {
		return nil, err
	}

	reader := track.NewReader()
	if reader == nil {
		return nil, ErrNotLive
	}
	return reader, nil
}

// Status は画面全体の状態を返す
func (s *Screen) Status() Status {
	status := Status{
		Session:      s.session.Status(),
		Recorder:     s.recorder.Status(),
		Captures:     s.capturer.Gallery().Len(),
		Recordings:   len(s.recorder.Library().List()),
		CanTranscode: s.env.Capabilities().CanTranscode(),
		Backend:      s.backend.Name,
	}
	if rec := s.player.Current(); rec != nil {
		status.Playback = rec.ID
	}
	return status
}

// Backend はバックエンドを返す
func (s *Screen) Backend() *camera.Backend {
	return s.backend
}

func (s *Screen) liveTrack() (camera.Track, error) {
	if s.session.State() != camera.StateLive {
		return nil, ErrNotLive
	}
	track := s.session.ActiveTrack()
	if track == nil {
		return nil, ErrNotLive
	}
	return track, nil
}

// onDeviceChange はデバイスの抜き差しに合わせて互換レイヤーを更新する
func (s *Screen) onDeviceChange(change camera.DeviceChange) {
	if refresher, ok := s.backend.Platform.(camera.FacingRefresher); ok {
		refresher.Refresh(change.Devices)
	}

	if s.session.State() == camera.StateError && len(change.Added) > 0 {
		s.logger.Info("カメラが接続されました。再試行で取得できます",
			zap.String("reason", s.session.Status().Reason()))
	}
}
