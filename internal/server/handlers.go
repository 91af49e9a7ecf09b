package server

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"camscreen/internal/camera"
	"camscreen/internal/capture"
	"camscreen/internal/config"
	"camscreen/internal/screen"
)

// previewQuality はプレビュー配信時のJPEG品質
const previewQuality = 75

// Handler は撮影画面のHTTPハンドラー
type Handler struct {
	config *config.Config
	screen *screen.Screen
	logger *zap.Logger
}

// ErrorResponse はエラー応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   *string   `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse はヘルスチェック応答
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionInfo はカメラセッションの状態
type SessionInfo struct {
	ID         string            `json:"id"`
	State      camera.State      `json:"state"`
	FacingMode camera.FacingMode `json:"facing_mode"`
	Torch      bool              `json:"torch"`
	Error      string            `json:"error,omitempty"`
	ErrorKind  string            `json:"error_kind,omitempty"`
	OpenTracks int               `json:"open_tracks"`
}

// StatusResponse は撮影画面の状態応答
type StatusResponse struct {
	Status       string                 `json:"status"`
	Backend      string                 `json:"backend"`
	Session      SessionInfo            `json:"session"`
	Recorder     capture.RecorderStatus `json:"recorder"`
	Captures     int                    `json:"captures"`
	Recordings   int                    `json:"recordings"`
	Playback     string                 `json:"playback,omitempty"`
	CanTranscode bool                   `json:"can_transcode"`
	Timestamp    time.Time              `json:"timestamp"`
}

// TorchResponse はライト切り替えの応答
type TorchResponse struct {
	Torch bool `json:"torch"`
}

// CapturesResponse は静止画一覧の応答
type CapturesResponse struct {
	Captures []capture.Capture `json:"captures"`
}

// RecordingsResponse は録画一覧の応答
type RecordingsResponse struct {
	Recordings []*capture.Recording `json:"recordings"`
}

// StartRecordingRequest は録画開始の要求
type StartRecordingRequest struct {
	MimeType string `json:"mime_type" binding:"omitempty,oneof=video/x-motion-jpeg video/mp4"`
}

// StartRecordingResponse は録画開始の応答
type StartRecordingResponse struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// Root は簡単な確認用ページを返す
func (h *Handler) Root(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, `<!DOCTYPE html>
<html lang="ja">
<head>
    <meta charset="UTF-8">
    <title>camscreen</title>
</head>
<body>
    <h1>camscreen 撮影画面</h1>
    <img src="/api/preview.mjpeg" alt="preview">
    <p>ステータス: <a href="/api/status">/api/status</a></p>
    <p>再生: <a href="/api/playback.mjpeg">/api/playback.mjpeg</a></p>
</body>
</html>`)
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// GetStatus は撮影画面の状態取得エンドポイントの実装
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.statusResponse())
}

// Flip は前面/背面カメラの切り替えエンドポイントの実装
func (h *Handler) Flip(c *gin.Context) {
	if err := h.screen.Flip(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.statusResponse())
}

// ToggleTorch はライト切り替えエンドポイントの実装
// ライトの失敗はエラーにせず、切り替え後の状態だけを返す
func (h *Handler) ToggleTorch(c *gin.Context) {
	c.JSON(http.StatusOK, TorchResponse{
		Torch: h.screen.ToggleTorch(c.Request.Context()),
	})
}

// Retry はエラー状態からの再取得エンドポイントの実装
func (h *Handler) Retry(c *gin.Context) {
	if err := h.screen.Retry(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.statusResponse())
}

// ListCaptures は静止画一覧エンドポイントの実装
func (h *Handler) ListCaptures(c *gin.Context) {
	c.JSON(http.StatusOK, CapturesResponse{Captures: h.screen.Captures()})
}

// CaptureFrame は静止画撮影エンドポイントの実装
func (h *Handler) CaptureFrame(c *gin.Context) {
	shot, err := h.screen.CaptureFrame()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, shot)
}

// GetCaptureImage は静止画を画像として返す
func (h *Handler) GetCaptureImage(c *gin.Context) {
	shot, err := h.screen.Capture(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	mime, data, err := capture.DecodeDataURL(shot.DataURL)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, mime, data)
}

// ListRecordings は録画一覧エンドポイントの実装
func (h *Handler) ListRecordings(c *gin.Context) {
	c.JSON(http.StatusOK, RecordingsResponse{Recordings: h.screen.Recordings()})
}

// StartRecording は録画開始エンドポイントの実装
func (h *Handler) StartRecording(c *gin.Context) {
	var req StartRecordingRequest
	// ボディなしはデフォルト形式で録画する
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, newErrorResponse("invalid_request", err.Error()))
		return
	}

	id, err := h.screen.StartRecording(req.MimeType)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, StartRecordingResponse{
		ID:       id,
		MimeType: h.screen.Status().Recorder.MimeType,
	})
}

// StopRecording は録画停止エンドポイントの実装
func (h *Handler) StopRecording(c *gin.Context) {
	rec, err := h.screen.StopRecording(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Playback は録画を再生面に割り当てるエンドポイントの実装
func (h *Handler) Playback(c *gin.Context) {
	rec, err := h.screen.Playback(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetRecordingBlob は録画データを返す
func (h *Handler) GetRecordingBlob(c *gin.Context) {
	rec, err := h.screen.Recording(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, rec.MimeType, rec.Data())
}

// PreviewMJPEG はライブ映像をMJPEGで配信する
func (h *Handler) PreviewMJPEG(c *gin.Context) {
	reader, err := h.screen.PreviewReader()
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.streamMJPEG(c, func(ctx context.Context, fn func([]byte) error) error {
		return h.pumpPreview(ctx, reader, fn)
	})
}

// PlaybackMJPEG は再生面に割り当てられた録画をMJPEGで配信する
func (h *Handler) PlaybackMJPEG(c *gin.Context) {
	player := h.screen.Player()
	if player.Current() == nil {
		h.writeError(c, capture.ErrNothingBound)
		return
	}

	h.streamMJPEG(c, player.Stream)
}

// PreviewWebSocket はライブ映像をWebSocketのバイナリメッセージで配信する
func (h *Handler) PreviewWebSocket(c *gin.Context) {
	reader, err := h.screen.PreviewReader()
	if err != nil {
		h.writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocketのアップグレードに失敗", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// クライアントからの切断を検知する
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = h.pumpPreview(ctx, reader, func(frame []byte) error {
		return conn.WriteMessage(websocket.BinaryMessage, frame)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("WebSocketプレビューを終了しました", zap.Error(err))
	}
}

// pumpPreview はカメラのFPSでフレームを読み、JPEGにして fn に渡す
func (h *Handler) pumpPreview(ctx context.Context, reader camera.FrameReader, fn func([]byte) error) error {
	fps := h.config.Camera.FPS
	if fps <= 0 {
		fps = 15
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var buf bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		img, release, err := reader.Read()
		if err != nil {
			return err
		}

		buf.Reset()
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: previewQuality})
		release()
		if err != nil {
			return err
		}

		if err := fn(buf.Bytes()); err != nil {
			return err
		}
	}
}

// streamMJPEG はMJPEGストリームを配信する
func (h *Handler) streamMJPEG(c *gin.Context, source func(ctx context.Context, fn func([]byte) error) error) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// レスポンスライターを取得
	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	writer.WriteHeader(http.StatusOK)

	err := source(c.Request.Context(), func(frame []byte) error {
		if _, err := writer.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
			return err
		}
		if _, err := writer.Write(frame); err != nil {
			return err
		}
		if _, err := writer.Write([]byte("\r\n")); err != nil {
			return err
		}

		// バッファをフラッシュ
		flusher.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("MJPEGストリームを終了しました", zap.Error(err))
	}
}

// statusResponse は現在の状態から応答を作る
func (h *Handler) statusResponse() StatusResponse {
	status := h.screen.Status()

	session := SessionInfo{
		ID:         status.Session.ID,
		State:      status.Session.State,
		FacingMode: status.Session.FacingMode,
		Torch:      status.Session.Torch,
		Error:      status.Session.Reason(),
		OpenTracks: status.Session.OpenTracks,
	}
	if status.Session.LastError != nil {
		session.ErrorKind = status.Session.LastError.Kind.String()
	}

	return StatusResponse{
		Status:       "running",
		Backend:      status.Backend,
		Session:      session,
		Recorder:     status.Recorder,
		Captures:     status.Captures,
		Recordings:   status.Recordings,
		Playback:     status.Playback,
		CanTranscode: status.CanTranscode,
		Timestamp:    time.Now(),
	}
}

// writeError はエラーを種類に応じたステータスコードで返す
func (h *Handler) writeError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	message := err.Error()

	// 分類済みの取得エラーは表示用の理由を返す
	var camErr *camera.CameraError
	if errors.As(err, &camErr) {
		message = camErr.Reason()
		details := camErr.Error()
		resp := newErrorResponse(code, message)
		resp.Details = &details
		c.JSON(status, resp)
		return
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("リクエストの処理に失敗", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, newErrorResponse(code, message))
}

// errorStatus はエラーをHTTPステータスとエラーコードに対応させる
func errorStatus(err error) (int, string) {
	var camErr *camera.CameraError
	switch {
	case errors.Is(err, screen.ErrNotLive):
		return http.StatusConflict, "camera_not_live"
	case errors.Is(err, capture.ErrRecordingInProgress):
		return http.StatusConflict, "recording_in_progress"
	case errors.Is(err, capture.ErrNoRecording):
		return http.StatusConflict, "no_recording"
	case errors.Is(err, camera.ErrAcquisitionInProgress):
		return http.StatusConflict, "acquisition_in_progress"
	case errors.Is(err, camera.ErrSessionStopped):
		return http.StatusConflict, "session_stopped"
	case errors.Is(err, capture.ErrRecordingNotFound):
		return http.StatusNotFound, "recording_not_found"
	case errors.Is(err, capture.ErrCaptureNotFound):
		return http.StatusNotFound, "capture_not_found"
	case errors.Is(err, capture.ErrNothingBound):
		return http.StatusNotFound, "nothing_bound"
	case errors.Is(err, capture.ErrUnsupportedMimeType):
		return http.StatusBadRequest, "unsupported_mime_type"
	case errors.Is(err, capture.ErrTranscodeUnavailable):
		return http.StatusUnprocessableEntity, "transcode_unavailable"
	case errors.Is(err, camera.ErrCapabilityAbsent):
		return http.StatusServiceUnavailable, "capability_absent"
	case errors.Is(err, camera.ErrEnvironmentNotReady):
		return http.StatusServiceUnavailable, "environment_not_ready"
	case errors.As(err, &camErr):
		return http.StatusServiceUnavailable, "camera_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func newErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	}
}
