package capture

import (
	"sync"
	"time"
)

// 動画の形式
const (
	MimeMotionJPEG = "video/x-motion-jpeg"
	MimeMP4        = "video/mp4"
)

// Recording は停止済みの録画
// 作成後は変更しない
type Recording struct {
	ID        string    `json:"id"`
	MimeType  string    `json:"mime_type"`
	FPS       int       `json:"fps"`
	Size      int       `json:"size"`
	Frames    int       `json:"frames"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`

	data    []byte // MimeType 形式の動画データ
	mjpeg   []byte // 再生用のJPEGフレーム列
	offsets []int  // mjpeg 内の各フレームの開始位置
}

func newRecording(id, mime string, fps int, startedAt, stoppedAt time.Time, frames [][]byte) *Recording {
	r := &Recording{
		ID:        id,
		MimeType:  mime,
		FPS:       fps,
		Frames:    len(frames),
		StartedAt: startedAt,
		StoppedAt: stoppedAt,
		offsets:   make([]int, 0, len(frames)),
	}

	size := 0
	for _, f := range frames {
		size += len(f)
	}
	r.mjpeg = make([]byte, 0, size)
	for _, f := range frames {
		r.offsets = append(r.offsets, len(r.mjpeg))
		r.mjpeg = append(r.mjpeg, f...)
	}

	r.data = r.mjpeg
	r.Size = len(r.data)
	return r
}

// Data は動画データを返す
func (r *Recording) Data() []byte {
	return r.data
}

// Duration は録画時間を返す
func (r *Recording) Duration() time.Duration {
	return r.StoppedAt.Sub(r.StartedAt)
}

// Frame はi番目のJPEGフレームを返す
func (r *Recording) Frame(i int) []byte {
	if i < 0 || i >= len(r.offsets) {
		return nil
	}
	end := len(r.mjpeg)
	if i+1 < len(r.offsets) {
		end = r.offsets[i+1]
	}
	return r.mjpeg[r.offsets[i]:end]
}

// FrameInterval は再生時のフレーム間隔を返す
func (r *Recording) FrameInterval() time.Duration {
	if r.FPS <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(r.FPS)
}

// Library は停止済みの録画を録画順に保持する
type Library struct {
	mu         sync.RWMutex
	recordings []*Recording
}

// NewLibrary は空のライブラリを作成する
func NewLibrary() *Library {
	return &Library{}
}

// Add は録画を末尾に追加する
func (l *Library) Add(r *Recording) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordings = append(l.recordings, r)
}

// List は全ての録画を録画順に返す
func (l *Library) List() []*Recording {
	l.mu.RLock()
	defer l.mu.RUnlock()

	recordings := make([]*Recording, len(l.recordings))
	copy(recordings, l.recordings)
	return recordings
}

// Get はIDで録画を取得する
func (l *Library) Get(id string) (*Recording, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, r := range l.recordings {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, ErrRecordingNotFound
}

// Latest は最後の録画を返す
func (l *Library) Latest() (*Recording, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.recordings) == 0 {
		return nil, ErrRecordingNotFound
	}
	return l.recordings[len(l.recordings)-1], nil
}
