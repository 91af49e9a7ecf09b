package camera

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DeviceChange はデバイスの増減を表す
type DeviceChange struct {
	Added   []DeviceInfo
	Removed []DeviceInfo
	Devices []DeviceInfo // 変更後の全デバイス
}

// Watcher は定期的にデバイスを列挙し、増減を通知する
type Watcher struct {
	devices  MediaDevices
	interval time.Duration
	onChange func(DeviceChange)
	logger   *zap.Logger

	mu    sync.Mutex
	known map[string]DeviceInfo

	// 制御用
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewWatcher は新しいWatcherを作成する
func NewWatcher(devices MediaDevices, interval time.Duration, onChange func(DeviceChange), logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{
		devices:  devices,
		interval: interval,
		onChange: onChange,
		logger:   logger.Named("watcher"),
		known:    make(map[string]DeviceInfo),
		stopCh:   make(chan struct{}),
	}
}

// Start は初期スキャンを行い、バックグラウンドスキャンを開始する
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	// 初期スキャンは通知しない
	devices := w.devices.EnumerateDevices(ctx)
	w.mu.Lock()
	for _, d := range devices {
		w.known[d.Device] = d
	}
	w.mu.Unlock()

	w.wg.Add(1)
	go w.backgroundScan(ctx)
}

// Stop はバックグラウンドスキャンを停止する
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
}

// Scan はデバイスを列挙し、増減があれば通知する
func (w *Watcher) Scan(ctx context.Context) DeviceChange {
	devices := w.devices.EnumerateDevices(ctx)

	w.mu.Lock()
	current := make(map[string]DeviceInfo, len(devices))
	change := DeviceChange{Devices: devices}
	for _, d := range devices {
		current[d.Device] = d
		if _, ok := w.known[d.Device]; !ok {
			change.Added = append(change.Added, d)
		}
	}
	for id, d := range w.known {
		if _, ok := current[id]; !ok {
			change.Removed = append(change.Removed, d)
		}
	}
	w.known = current
	w.mu.Unlock()

	if len(change.Added) == 0 && len(change.Removed) == 0 {
		return change
	}

	for _, d := range change.Added {
		w.logger.Info("カメラが接続されました", zap.String("device", d.Device), zap.String("name", d.Name))
	}
	for _, d := range change.Removed {
		w.logger.Info("カメラが取り外されました", zap.String("device", d.Device), zap.String("name", d.Name))
	}
	if w.onChange != nil {
		w.onChange(change)
	}
	return change
}

// backgroundScan は定期的なデバイススキャンを実行する
func (w *Watcher) backgroundScan(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Scan(ctx)
		}
	}
}
