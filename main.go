package main

import (
	"flag"
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"camscreen/internal/config"
	"camscreen/internal/logging"
	"camscreen/internal/screen"
	"camscreen/internal/tui"
)

func main() {
	var (
		configPath = flag.String("config", "", "設定ファイルのパス (デフォルト: $CAMSCREEN_CONFIG)")
		logPath    = flag.String("log", "camscreen.log", "ログファイルのパス")
	)
	flag.Parse()

	// 設定を読み込む
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// 画面が標準出力を使うためログはファイルに出す
	logger, err := logging.NewFile(cfg.Log, *logPath)
	if err != nil {
		log.Fatalf("ロガーの作成に失敗しました: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// 撮影画面を作成
	scr, err := screen.NewFromConfig(cfg, logger)
	if err != nil {
		logger.Fatal("撮影画面の作成に失敗しました", zap.Error(err))
	}

	// ターミナルUIを起動
	if _, err := tea.NewProgram(tui.New(scr), tea.WithAltScreen()).Run(); err != nil {
		logger.Fatal("撮影画面の実行に失敗しました", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
