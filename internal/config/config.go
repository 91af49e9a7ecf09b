package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// 取得バックエンド
const (
	BackendMediaDevices = "mediadevices" // pion/mediadevices 経由の実デバイス
	BackendV4L2         = "v4l2"         // ffmpeg 経由のV4L2デバイス
	BackendMock         = "mock"         // 合成フレームを返すモック
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Camera    CameraConfig    `yaml:"camera"`
	Capture   CaptureConfig   `yaml:"capture"`
	Recording RecordingConfig `yaml:"recording"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig はプレビュー用HTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はカメラセッションの設定
type CameraConfig struct {
	Backend           string        `yaml:"backend"`             // mediadevices, v4l2 または mock
	InitialFacingMode string        `yaml:"initial_facing_mode"` // user または environment
	Devices           FacingDevices `yaml:"devices"`             // 向きごとのデバイスID

	Width  int `yaml:"width"`  // 取得解像度（幅）
	Height int `yaml:"height"` // 取得解像度（高さ）
	FPS    int `yaml:"fps"`    // フレームレート

	PermissionTimeout time.Duration `yaml:"permission_timeout"` // 権限要求の待機上限
	TorchControl      string        `yaml:"torch_control"`      // v4l2-ctl のライト制御名
	FFmpegPath        string        `yaml:"ffmpeg_path"`        // ffmpeg の実行ファイル
}

// FacingDevices は前面/背面カメラのデバイスIDを表す
// 空の場合は検出順（先頭が user、2番目が environment）で割り当てる
type FacingDevices struct {
	User        string `yaml:"user"`
	Environment string `yaml:"environment"`
}

// CaptureConfig は静止画キャプチャの設定
type CaptureConfig struct {
	Width    int    `yaml:"width"`     // 描画面の幅
	Height   int    `yaml:"height"`    // 描画面の高さ
	MimeType string `yaml:"mime_type"` // image/png または image/jpeg
}

// RecordingConfig は動画録画の設定
type RecordingConfig struct {
	FPS         int           `yaml:"fps"`          // 録画フレームレート
	Quality     int           `yaml:"quality"`      // JPEG品質 (1-100)
	MaxDuration time.Duration `yaml:"max_duration"` // 最大録画時間
	MimeType    string        `yaml:"mime_type"`    // video/x-motion-jpeg または video/mp4
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error
	Development bool   `yaml:"development"` // 開発用フォーマット
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			Backend:           BackendMediaDevices,
			InitialFacingMode: "user",
			Width:             1280,
			Height:            720,
			FPS:               15,
			PermissionTimeout: 30 * time.Second,
			TorchControl:      "led1_mode",
			FFmpegPath:        "ffmpeg",
		},
		Capture: CaptureConfig{
			Width:    640,
			Height:   480,
			MimeType: "image/png",
		},
		Recording: RecordingConfig{
			FPS:         10,
			Quality:     80,
			MaxDuration: 60 * time.Second,
			MimeType:    "video/x-motion-jpeg",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load は設定を読み込む
// デフォルト値 → CAMSCREEN_CONFIG のYAMLファイル → 環境変数 の順で上書きする
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CAMSCREEN_CONFIG"))
}

// LoadFile は指定されたYAMLファイルから設定を読み込む
// path が空の場合はファイルを読まない
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.Backend = getEnvOrDefault("CAMSCREEN_BACKEND", c.Camera.Backend)
	c.Camera.FFmpegPath = getEnvOrDefault("FFMPEG_PATH", c.Camera.FFmpegPath)
	c.Log.Level = getEnvOrDefault("CAMSCREEN_LOG_LEVEL", c.Log.Level)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// カメラ設定の検証
	switch c.Camera.Backend {
	case BackendMediaDevices, BackendV4L2, BackendMock:
	default:
		return fmt.Errorf("無効なバックエンド: %q", c.Camera.Backend)
	}
	switch c.Camera.InitialFacingMode {
	case "user", "environment":
	default:
		return fmt.Errorf("無効なfacing mode: %q", c.Camera.InitialFacingMode)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("無効なカメラ解像度: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 || c.Camera.FPS > 60 {
		return fmt.Errorf("無効なFPS値: %d", c.Camera.FPS)
	}
	if c.Camera.PermissionTimeout <= 0 {
		return fmt.Errorf("権限要求のタイムアウトは正の値が必要です: %s", c.Camera.PermissionTimeout)
	}
	if c.Camera.Backend == BackendV4L2 && c.Camera.FFmpegPath == "" {
		return fmt.Errorf("v4l2バックエンドにはffmpeg_pathが必要です")
	}

	// キャプチャ設定の検証
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		return fmt.Errorf("無効なキャプチャサイズ: %dx%d", c.Capture.Width, c.Capture.Height)
	}
	switch c.Capture.MimeType {
	case "image/png", "image/jpeg":
	default:
		return fmt.Errorf("サポートされていない画像形式: %q", c.Capture.MimeType)
	}

	// 録画設定の検証
	if c.Recording.FPS <= 0 || c.Recording.FPS > 60 {
		return fmt.Errorf("無効な録画FPS値: %d", c.Recording.FPS)
	}
	if c.Recording.Quality < 1 || c.Recording.Quality > 100 {
		return fmt.Errorf("無効な録画品質: %d", c.Recording.Quality)
	}
	if c.Recording.MaxDuration <= 0 {
		return fmt.Errorf("最大録画時間は正の値が必要です: %s", c.Recording.MaxDuration)
	}
	switch c.Recording.MimeType {
	case "video/x-motion-jpeg", "video/mp4":
	default:
		return fmt.Errorf("サポートされていない動画形式: %q", c.Recording.MimeType)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
