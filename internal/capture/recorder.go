package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"camscreen/internal/camera"
)

// RecorderState は録画器の状態
type RecorderState string

const (
	RecorderIdle      RecorderState = "idle"      // 未録画
	RecorderRecording RecorderState = "recording" // 録画中
	RecorderStopped   RecorderState = "stopped"   // 停止済み
)

// RecorderOptions は録画器の設定
type RecorderOptions struct {
	FPS         int
	Quality     int
	MaxDuration time.Duration
	MimeType    string // 既定の形式
}

// RecorderStatus は録画器の状態のスナップショット
type RecorderStatus struct {
	State     RecorderState `json:"state"`
	ID        string        `json:"id,omitempty"`
	MimeType  string        `json:"mime_type,omitempty"`
	Frames    int           `json:"frames"`
	StartedAt time.Time     `json:"started_at,omitempty"`
}

// Recorder はライブトラックのフレームをメモリ上に録画する
type Recorder struct {
	opts       RecorderOptions
	transcoder *Transcoder
	library    *Library
	logger     *zap.Logger

	mu     sync.Mutex
	state  RecorderState
	active *activeRecording
}

type activeRecording struct {
	id        string
	mime      string
	startedAt time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (a *activeRecording) stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

func (a *activeRecording) frameCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.frames)
}

// NewRecorder は新しいRecorderを作成する
func NewRecorder(opts RecorderOptions, transcoder *Transcoder, library *Library, logger *zap.Logger) *Recorder {
	if opts.FPS <= 0 {
		opts.FPS = 10
	}
	if opts.Quality <= 0 {
		opts.Quality = 80
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = time.Minute
	}
	if opts.MimeType == "" {
		opts.MimeType = MimeMotionJPEG
	}
	return &Recorder{
		opts:       opts,
		transcoder: transcoder,
		library:    library,
		logger:     logger.Named("recorder"),
		state:      RecorderIdle,
	}
}

// SetTranscoder はmp4変換に使うTranscoderを設定する
func (r *Recorder) SetTranscoder(transcoder *Transcoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcoder = transcoder
}

func (r *Recorder) currentTranscoder() *Transcoder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcoder
}

// ResolveMimeType は要求された形式を検証し、実際に使う形式を返す
func (r *Recorder) ResolveMimeType(mime string) (string, error) {
	if mime == "" {
		mime = r.opts.MimeType
	}
	switch mime {
	case MimeMotionJPEG:
		return mime, nil
	case MimeMP4:
		if !r.currentTranscoder().Available() {
			return "", ErrTranscodeUnavailable
		}
		return mime, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMimeType, mime)
	}
}

// Start はトラックの録画を開始し、録画IDを返す
func (r *Recorder) Start(track camera.Track, mime string) (string, error) {
	if track == nil {
		return "", fmt.Errorf("トラックがありません")
	}
	mime, err := r.ResolveMimeType(mime)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == RecorderRecording {
		return "", ErrRecordingInProgress
	}

	reader := track.NewReader()
	if reader == nil {
		return "", fmt.Errorf("映像トラックではありません: %s", track.Label())
	}

	a := &activeRecording{
		id:        uuid.New().String(),
		mime:      mime,
		startedAt: time.Now(),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	r.active = a
	r.state = RecorderRecording

	go r.recordFrames(a, reader)

	r.logger.Info("録画を開始しました",
		zap.String("recording_id", a.id),
		zap.String("mime_type", mime),
		zap.Int("fps", r.opts.FPS))

	return a.id, nil
}

// recordFrames は録画FPSでフレームを読み取ってJPEGで蓄積する
// 最大録画時間に達するかトラックが終了すると自動的に確定する
func (r *Recorder) recordFrames(a *activeRecording, reader camera.FrameReader) {
	ticker := time.NewTicker(time.Second / time.Duration(r.opts.FPS))
	defer ticker.Stop()

	deadline := time.NewTimer(r.opts.MaxDuration)
	defer deadline.Stop()

	finished := func() {
		close(a.done)
		// 自動確定
		go func() {
			if _, err := r.finalize(context.Background(), a); err != nil && !errors.Is(err, ErrNoRecording) {
				r.logger.Warn("録画の自動確定に失敗", zap.String("recording_id", a.id), zap.Error(err))
			}
		}()
	}

	for {
		select {
		case <-a.stopCh:
			close(a.done)
			return

		case <-deadline.C:
			r.logger.Info("最大録画時間に達しました", zap.String("recording_id", a.id))
			finished()
			return

		case <-ticker.C:
			frame, err := r.readFrame(reader)
			if err != nil {
				a.mu.Lock()
				a.err = err
				a.mu.Unlock()
				r.logger.Warn("録画フレームの読み取りに失敗", zap.String("recording_id", a.id), zap.Error(err))
				finished()
				return
			}

			a.mu.Lock()
			a.frames = append(a.frames, frame)
			a.mu.Unlock()
		}
	}
}

func (r *Recorder) readFrame(reader camera.FrameReader) ([]byte, error) {
	img, release, err := reader.Read()
	if err != nil {
		return nil, err
	}
	defer release()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.opts.Quality}); err != nil {
		return nil, fmt.Errorf("フレームのエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}

// Stop は録画を停止し、確定した録画を返す
func (r *Recorder) Stop(ctx context.Context) (*Recording, error) {
	r.mu.Lock()
	a := r.active
	r.mu.Unlock()

	if a == nil {
		return nil, ErrNoRecording
	}
	return r.finalize(ctx, a)
}

// finalize は録画ループを止めて録画を確定する
// 同じ録画に対して2回目以降の呼び出しは ErrNoRecording を返す
func (r *Recorder) finalize(ctx context.Context, a *activeRecording) (*Recording, error) {
	a.stop()

	select {
	case <-a.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r.mu.Lock()
	if r.active != a {
		r.mu.Unlock()
		return nil, ErrNoRecording
	}
	r.active = nil
	r.state = RecorderStopped
	r.mu.Unlock()

	a.mu.Lock()
	frames, readErr := a.frames, a.err
	a.mu.Unlock()

	if readErr != nil {
		r.logger.Info("トラックの終了により録画を確定します", zap.String("recording_id", a.id), zap.NamedError("cause", readErr))
	}

	recording := newRecording(a.id, a.mime, r.opts.FPS, a.startedAt, time.Now(), frames)

	if a.mime == MimeMP4 {
		data, err := r.currentTranscoder().Transcode(ctx, frames, r.opts.FPS)
		if err != nil {
			// 変換に失敗してもMJPEGとして残す
			r.logger.Warn("mp4への変換に失敗したためMJPEGで保存します", zap.String("recording_id", a.id), zap.Error(err))
			recording.MimeType = MimeMotionJPEG
		} else {
			recording.data = data
			recording.Size = len(data)
		}
	}

	r.library.Add(recording)

	r.logger.Info("録画を停止しました",
		zap.String("recording_id", recording.ID),
		zap.String("mime_type", recording.MimeType),
		zap.Int("frames", recording.Frames),
		zap.Int("size", recording.Size),
		zap.Duration("duration", recording.Duration()))

	return recording, nil
}

// State は現在の状態を返す
func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsRecording は録画中か返す
func (r *Recorder) IsRecording() bool {
	return r.State() == RecorderRecording
}

// Status は状態のスナップショットを返す
func (r *Recorder) Status() RecorderStatus {
	r.mu.Lock()
	a := r.active
	status := RecorderStatus{State: r.state}
	r.mu.Unlock()

	if a != nil {
		status.ID = a.id
		status.MimeType = a.mime
		status.StartedAt = a.startedAt
		status.Frames = a.frameCount()
	}
	return status
}

// Library は録画ライブラリを返す
func (r *Recorder) Library() *Library {
	return r.library
}
