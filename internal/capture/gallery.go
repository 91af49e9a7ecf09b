package capture

import (
	"sync"
	"time"
)

// Capture は撮影した静止画
type Capture struct {
	ID         string    `json:"id"`
	DataURL    string    `json:"data_url"`
	MimeType   string    `json:"mime_type"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CapturedAt time.Time `json:"captured_at"`
}

// Gallery は撮影順に静止画を保持する
// 追加のみで、削除や並べ替えは行わない
type Gallery struct {
	mu       sync.RWMutex
	captures []Capture
}

// NewGallery は空のギャラリーを作成する
func NewGallery() *Gallery {
	return &Gallery{}
}

// Append は静止画を末尾に追加する
func (g *Gallery) Append(c Capture) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captures = append(g.captures, c)
}

// List は全ての静止画を撮影順に返す
func (g *Gallery) List() []Capture {
	g.mu.RLock()
	defer g.mu.RUnlock()

	captures := make([]Capture, len(g.captures))
	copy(captures, g.captures)
	return captures
}

// Len は静止画の数を返す
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.captures)
}

// Get はIDで静止画を取得する
func (g *Gallery) Get(id string) (Capture, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, c := range g.captures {
		if c.ID == id {
			return c, nil
		}
	}
	return Capture{}, ErrCaptureNotFound
}
