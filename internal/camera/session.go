package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionOptions はセッションの設定
type SessionOptions struct {
	InitialFacingMode FacingMode
	Width             int
	Height            int
	FPS               int
	PermissionTimeout time.Duration
}

// SessionStatus はセッション状態のスナップショット
type SessionStatus struct {
	ID         string
	State      State
	FacingMode FacingMode
	Torch      bool
	LastError  *CameraError
	OpenTracks int
}

// Reason は直近のエラー理由を返す（エラーがなければ空）
func (s SessionStatus) Reason() string {
	if s.LastError == nil {
		return ""
	}
	return s.LastError.Reason()
}

// Session は同時に1つだけのカメラストリームを所有する
//
// ストリームの取得・切り替えは取得中ラッチで直列化され、
// 新しいストリームを要求する前に必ず古いストリームの全トラックを停止する。
type Session struct {
	id      string
	devices MediaDevices
	gate    Gate
	env     *Environment
	opts    SessionOptions
	logger  *zap.Logger

	mu          sync.Mutex
	state       State
	facing      FacingMode
	stream      Stream
	activeTrack Track
	lastError   *CameraError
	acquiring   bool
	torch       bool
}

// NewSession は新しいSessionを作成する
func NewSession(devices MediaDevices, gate Gate, env *Environment, opts SessionOptions, logger *zap.Logger) *Session {
	if opts.InitialFacingMode == "" {
		opts.InitialFacingMode = FacingUser
	}
	if opts.PermissionTimeout <= 0 {
		opts.PermissionTimeout = 30 * time.Second
	}

	id := uuid.New().String()
	return &Session{
		id:      id,
		devices: devices,
		gate:    gate,
		env:     env,
		opts:    opts,
		logger:  logger.Named("session").With(zap.String("session_id", id)),
		state:   StateUninitialized,
		facing:  opts.InitialFacingMode,
	}
}

// Start は対応確認・権限要求・環境準備を経てストリームを取得する
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateStopped:
		return ErrSessionStopped
	case StateLive:
		return nil
	}

	if !s.gate.CheckSupport(ctx) {
		s.logger.Error("カメラ取得機能がありません")
		return ErrCapabilityAbsent
	}

	if err := s.requestPermissions(ctx); err != nil {
		return err
	}

	if err := s.env.Prepare(ctx); err != nil {
		return fmt.Errorf("環境の準備に失敗: %w", err)
	}

	_, err := s.Acquire(ctx, s.FacingMode())
	return err
}

// requestPermissions は期限付きで権限を要求する
// 期限内に応答がない場合は PermissionTimeout として拒否扱いにする
func (s *Session) requestPermissions(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, s.opts.PermissionTimeout)
	defer cancel()

	err := s.gate.RequestPermissions(pctx, DefaultPermissions)
	if err == nil {
		s.logger.Debug("権限が許可されました")
		return nil
	}

	var camErr *CameraError
	switch {
	case ctx.Err() != nil:
		// 呼び出し元のキャンセルは権限の拒否ではない
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		camErr = &CameraError{Kind: KindPermissionTimeout, Name: "PermissionTimeoutError", Err: err}
	default:
		camErr = Classify(err)
		if camErr.Kind == KindUnknown {
			camErr = &CameraError{Kind: KindPermissionDenied, Name: "NotAllowedError", Err: err}
		}
	}

	s.mu.Lock()
	s.setErrorLocked(camErr)
	s.mu.Unlock()

	return camErr
}

// Acquire は指定された向きのストリームを取得する
// 失敗は CameraError に分類して LastError に保存する
func (s *Session) Acquire(ctx context.Context, facing FacingMode) (Stream, error) {
	if _, err := ParseFacingMode(string(facing)); err != nil {
		return nil, err
	}

	// 環境準備の完了前に取得することはできない
	if err := s.env.Wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil, ErrSessionStopped
	}
	if s.acquiring {
		s.mu.Unlock()
		return nil, ErrAcquisitionInProgress
	}
	s.acquiring = true
	previous := s.stream
	s.stream = nil
	s.activeTrack = nil
	s.torch = false
	s.facing = facing
	s.setStateLocked(StateAcquiring)
	s.mu.Unlock()

	// 新しいデバイスを開く前に古いデバイスを解放する
	if previous != nil {
		s.stopStream(previous)
	}

	constraints := Constraints{
		FacingMode: facing,
		Width:      s.opts.Width,
		Height:     s.opts.Height,
		FPS:        s.opts.FPS,
	}

	var stream Stream
	err := constraints.Validate()
	if err == nil {
		stream, err = s.devices.GetUserMedia(ctx, constraints)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquiring = false

	if err != nil {
		camErr := Classify(err)
		s.logger.Warn("ストリームの取得に失敗",
			zap.String("facing_mode", string(facing)),
			zap.String("reason", camErr.Reason()),
			zap.String("error_name", camErr.Name),
			zap.Error(err))
		if s.state != StateStopped {
			s.setErrorLocked(camErr)
		}
		return nil, camErr
	}

	// 取得中に停止された場合は取得したストリームを即座に解放する
	if s.state == StateStopped {
		s.stopStream(stream)
		return nil, ErrSessionStopped
	}

	videoTracks := stream.VideoTracks()
	if len(videoTracks) == 0 {
		s.stopStream(stream)
		camErr := &CameraError{Kind: KindNotFound, Name: "NotFoundError", Err: errors.New("映像トラックがありません")}
		s.setErrorLocked(camErr)
		return nil, camErr
	}

	s.stream = stream
	s.activeTrack = videoTracks[0]
	s.lastError = nil
	s.setStateLocked(StateLive)

	s.logger.Info("ストリームを取得しました",
		zap.String("facing_mode", string(facing)),
		zap.String("track", s.activeTrack.Label()),
		zap.Int("tracks", len(stream.Tracks())))

	return stream, nil
}

// Flip は前面/背面カメラを切り替える
// ストリームがない場合は何もしない
func (s *Session) Flip(ctx context.Context) error {
	s.mu.Lock()
	if s.acquiring {
		s.mu.Unlock()
		return ErrAcquisitionInProgress
	}
	if s.stream == nil {
		s.mu.Unlock()
		s.logger.Debug("ストリームがないため切り替えをスキップします")
		return nil
	}
	next := s.facing.Opposite()
	s.mu.Unlock()

	s.logger.Info("カメラを切り替えます", zap.String("facing_mode", string(next)))
	_, err := s.Acquire(ctx, next)
	return err
}

// Retry はエラー状態から現在の向きで再取得する
func (s *Session) Retry(ctx context.Context) error {
	return s.Start(ctx)
}

// ToggleTorch はライトの点灯状態を切り替え、切り替え後の状態を返す
// ライトは任意機能のため、失敗はログに記録して無視する
func (s *Session) ToggleTorch(ctx context.Context) bool {
	s.mu.Lock()
	track := s.activeTrack
	want := !s.torch
	current := s.torch
	s.mu.Unlock()

	if track == nil {
		s.logger.Debug("アクティブなトラックがないためライトを切り替えません")
		return current
	}

	controller, ok := track.(TorchController)
	if !ok {
		s.logger.Warn("このトラックはライトに対応していません", zap.String("track", track.Label()))
		return current
	}

	if err := controller.SetTorch(ctx, want); err != nil {
		s.logger.Warn("ライトの切り替えに失敗", zap.Bool("torch", want), zap.Error(err))
		return current
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTrack == track {
		s.torch = want
	}
	return s.torch
}

// Stop は全トラックを停止してセッションを終了する
func (s *Session) Stop(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return
	}

	if s.stream != nil {
		s.stopStream(s.stream)
	}
	s.stream = nil
	s.activeTrack = nil
	s.torch = false
	s.setStateLocked(StateStopped)
}

// ActiveTrack は稼働中の映像トラックを返す（所有権は持たない）
func (s *Session) ActiveTrack() Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTrack
}

// State は現在の状態を返す
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FacingMode は現在の向きを返す
func (s *Session) FacingMode() FacingMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

// LastError は直近の取得エラーを返す
func (s *Session) LastError() *CameraError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Status は状態のスナップショットを返す
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SessionStatus{
		ID:         s.id,
		State:      s.state,
		FacingMode: s.facing,
		Torch:      s.torch,
		LastError:  s.lastError,
	}
	if s.stream != nil {
		status.OpenTracks = len(s.stream.Tracks())
	}
	return status
}

func (s *Session) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.logger.Debug("状態遷移",
		zap.String("from", string(s.state)),
		zap.String("state", string(state)),
		zap.String("facing_mode", string(s.facing)))
	s.state = state
}

func (s *Session) setErrorLocked(camErr *CameraError) {
	s.lastError = camErr
	s.setStateLocked(StateError)
}

// stopStream はストリームの全トラックを停止する
func (s *Session) stopStream(stream Stream) {
	for _, track := range stream.Tracks() {
		if err := track.Stop(); err != nil {
			s.logger.Warn("トラックの停止に失敗", zap.String("track", track.Label()), zap.Error(err))
		}
	}
}
