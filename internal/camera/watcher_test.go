package camera

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWatcher_Scan(t *testing.T) {
	devices := NewMockMediaDevices(FacingUser)
	ctx := context.Background()

	var changes []DeviceChange
	watcher := NewWatcher(devices, time.Hour, func(c DeviceChange) {
		changes = append(changes, c)
	}, zap.NewNop())
	watcher.Start(ctx)
	defer watcher.Stop()

	// 変化がなければ通知しない
	watcher.Scan(ctx)
	if len(changes) != 0 {
		t.Fatalf("Expected no change, got %d", len(changes))
	}

	devices.AddCamera(FacingEnvironment)
	change := watcher.Scan(ctx)
	if len(change.Added) != 1 || change.Added[0].Device != "mock-environment" {
		t.Errorf("Unexpected added devices: %v", change.Added)
	}
	if len(change.Devices) != 2 {
		t.Errorf("Expected 2 devices, got %d", len(change.Devices))
	}

	devices.RemoveCamera(FacingUser)
	change = watcher.Scan(ctx)
	if len(change.Removed) != 1 || change.Removed[0].Device != "mock-user" {
		t.Errorf("Unexpected removed devices: %v", change.Removed)
	}

	if len(changes) != 2 {
		t.Errorf("Expected 2 notifications, got %d", len(changes))
	}
}

func TestWatcher_BackgroundScan(t *testing.T) {
	devices := NewMockMediaDevices(FacingUser)

	var mu sync.Mutex
	notified := make(chan DeviceChange, 1)
	watcher := NewWatcher(devices, 5*time.Millisecond, func(c DeviceChange) {
		mu.Lock()
		defer mu.Unlock()
		select {
		case notified <- c:
		default:
		}
	}, zap.NewNop())

	watcher.Start(context.Background())
	defer watcher.Stop()

	devices.AddCamera(FacingEnvironment)

	select {
	case change := <-notified:
		if len(change.Added) != 1 {
			t.Errorf("Expected 1 added device, got %d", len(change.Added))
		}
	case <-time.After(time.Second):
		t.Fatal("バックグラウンドスキャンで変化が通知されませんでした")
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	watcher := NewWatcher(NewMockMediaDevices(), time.Hour, nil, zap.NewNop())
	watcher.Stop()

	watcher.Start(context.Background())
	watcher.Stop()
	watcher.Stop()
}
