// Package main はcamscreenのプレビュー・操作サーバーコマンドの実装です
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"camscreen/internal/camera"
	"camscreen/internal/config"
	"camscreen/internal/logging"
	"camscreen/internal/screen"
	"camscreen/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 127.0.0.1)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		configPath = flag.String("config", "", "設定ファイルのパス (デフォルト: $CAMSCREEN_CONFIG)")
		backend    = flag.String("backend", "", "取得バックエンド (mediadevices, v4l2, mock)")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("camscreen")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *backend != "" {
		cfg.Camera.Backend = *backend
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("設定が不正です: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("ロガーの作成に失敗しました: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// 撮影画面を作成
	scr, err := screen.NewFromConfig(cfg, logger)
	if err != nil {
		logger.Fatal("撮影画面の作成に失敗しました", zap.Error(err))
	}

	ctx := context.Background()

	// 取得機能がない場合は起動しない。権限の拒否などは再試行APIで回復できる
	if err := scr.Start(ctx); err != nil {
		if errors.Is(err, camera.ErrCapabilityAbsent) {
			logger.Fatal("カメラを利用できません", zap.Error(err))
		}
		logger.Warn("カメラの開始に失敗しました", zap.String("reason", scr.Status().Session.Reason()), zap.Error(err))
	}
	defer scr.Close(context.Background())

	// サーバーを起動
	srv := server.New(cfg, scr, logger)
	logger.Info("camscreen サーバーを起動します", zap.String("addr", cfg.ServerAddress()))
	if err := srv.Start(ctx); err != nil {
		logger.Error("サーバーの起動に失敗しました", zap.Error(err))
	}
}
