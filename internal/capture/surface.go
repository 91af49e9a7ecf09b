package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/draw"
)

// 静止画の形式
const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
)

// defaultJPEGQuality はJPEG出力時の品質
const defaultJPEGQuality = 90

// Surface は固定サイズの描画面
type Surface struct {
	img *image.RGBA
}

// NewSurface は指定サイズの描画面を作成する
func NewSurface(width, height int) *Surface {
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Width は描画面の幅を返す
func (s *Surface) Width() int { return s.img.Bounds().Dx() }

// Height は描画面の高さを返す
func (s *Surface) Height() int { return s.img.Bounds().Dy() }

// Image は描画面の画像を返す
func (s *Surface) Image() image.Image { return s.img }

// DrawImage は src を (x, y) から w×h の領域に拡大縮小して描画する
func (s *Surface) DrawImage(src image.Image, x, y, w, h int) {
	dst := image.Rect(x, y, x+w, y+h)
	draw.CatmullRom.Scale(s.img, dst, src, src.Bounds(), draw.Src, nil)
}

// Encode は描画面を指定形式で書き出す
func (s *Surface) Encode(w io.Writer, mime string) error {
	switch mime {
	case MimePNG, "":
		return png.Encode(w, s.img)
	case MimeJPEG:
		return jpeg.Encode(w, s.img, &jpeg.Options{Quality: defaultJPEGQuality})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMimeType, mime)
	}
}

// ToDataURL は描画面を data URI にエンコードする
// mime が空の場合はPNG（可逆）を使う
func (s *Surface) ToDataURL(mime string) (string, error) {
	if mime == "" {
		mime = MimePNG
	}

	var buf bytes.Buffer
	if err := s.Encode(&buf, mime); err != nil {
		return "", fmt.Errorf("画像のエンコードに失敗: %w", err)
	}

	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURL は data URI から形式とデータを取り出す
func DecodeDataURL(dataURL string) (mime string, data []byte, err error) {
	const prefix = "data:"
	const marker = ";base64,"

	if !strings.HasPrefix(dataURL, prefix) {
		return "", nil, fmt.Errorf("data URIではありません")
	}
	rest := strings.TrimPrefix(dataURL, prefix)

	idx := strings.Index(rest, marker)
	if idx < 0 {
		return "", nil, fmt.Errorf("base64 data URIではありません")
	}

	data, err = base64.StdEncoding.DecodeString(rest[idx+len(marker):])
	if err != nil {
		return "", nil, fmt.Errorf("base64のデコードに失敗: %w", err)
	}
	return rest[:idx], data, nil
}
