package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"camscreen/internal/config"
	"camscreen/internal/screen"
)

// Server はプレビュー・操作用のHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	screen     *screen.Screen
	logger     *zap.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, scr *screen.Screen, logger *zap.Logger) *Server {
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: cfg,
		screen: scr,
		logger: logger.Named("server"),
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

// Handler はルーティング済みのハンドラーを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	h := &Handler{
		config: s.config,
		screen: s.screen,
		logger: s.logger,
	}

	s.engine.GET("/", h.Root)
	s.engine.GET("/health", h.HealthCheck)

	api := s.engine.Group("/api")
	{
		api.GET("/status", h.GetStatus)
		api.POST("/session/flip", h.Flip)
		api.POST("/session/torch", h.ToggleTorch)
		api.POST("/session/retry", h.Retry)

		api.GET("/captures", h.ListCaptures)
		api.POST("/captures", h.CaptureFrame)
		api.GET("/captures/:id/image", h.GetCaptureImage)

		api.GET("/recordings", h.ListRecordings)
		api.POST("/recordings", h.StartRecording)
		api.POST("/recordings/stop", h.StopRecording)
		api.POST("/recordings/:id/playback", h.Playback)
		api.GET("/recordings/:id/blob", h.GetRecordingBlob)

		api.GET("/preview.mjpeg", h.PreviewMJPEG)
		api.GET("/playback.mjpeg", h.PlaybackMJPEG)
	}

	s.engine.GET("/ws/preview", h.PreviewWebSocket)
}

// requestLogger はリクエストをzapで記録するミドルウェア
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug("リクエストを処理しました",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}

	return s.Serve(ctx, listener)
}

// Serve は指定されたリスナーで待ち受ける
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("HTTPサーバーを起動しています", zap.String("addr", listener.Addr().String()))
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.Info("シグナルを受信しました", zap.String("signal", sig.String()))
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}
