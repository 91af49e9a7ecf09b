package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"camscreen/internal/camera"
)

// Capturer はライブトラックから1フレームを描画面に描いてギャラリーに追加する
type Capturer struct {
	surface *Surface
	gallery *Gallery
	mime    string
	logger  *zap.Logger

	mu sync.Mutex // 描画面の排他
}

// NewCapturer は新しいCapturerを作成する
func NewCapturer(surface *Surface, gallery *Gallery, mime string, logger *zap.Logger) *Capturer {
	if mime == "" {
		mime = MimePNG
	}
	return &Capturer{
		surface: surface,
		gallery: gallery,
		mime:    mime,
		logger:  logger.Named("capturer"),
	}
}

// CaptureFrame はトラックから1フレームを読み取り、静止画として保存する
// トラックごとに専用のリーダーを作るため、録画中でも撮影できる
func (c *Capturer) CaptureFrame(track camera.Track) (Capture, error) {
	if track == nil {
		return Capture{}, fmt.Errorf("トラックがありません")
	}

	reader := track.NewReader()
	if reader == nil {
		return Capture{}, fmt.Errorf("映像トラックではありません: %s", track.Label())
	}

	img, release, err := reader.Read()
	if err != nil {
		return Capture{}, fmt.Errorf("フレームの読み取りに失敗: %w", err)
	}
	defer release()

	c.mu.Lock()
	c.surface.DrawImage(img, 0, 0, c.surface.Width(), c.surface.Height())
	dataURL, err := c.surface.ToDataURL(c.mime)
	c.mu.Unlock()
	if err != nil {
		return Capture{}, err
	}

	capture := Capture{
		ID:         uuid.New().String(),
		DataURL:    dataURL,
		MimeType:   c.mime,
		Width:      c.surface.Width(),
		Height:     c.surface.Height(),
		CapturedAt: time.Now(),
	}
	c.gallery.Append(capture)

	c.logger.Info("静止画を撮影しました",
		zap.String("capture_id", capture.ID),
		zap.String("track", track.Label()),
		zap.Int("gallery_size", c.gallery.Len()))

	return capture, nil
}

// Gallery はギャラリーを返す
func (c *Capturer) Gallery() *Gallery {
	return c.gallery
}
