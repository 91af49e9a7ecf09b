package capture

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Player は録画を再生する再生面
// 新しい録画を割り当てると前の再生は破棄される
type Player struct {
	logger *zap.Logger

	mu         sync.RWMutex
	current    *Recording
	generation uint64
}

// NewPlayer は新しいPlayerを作成する
func NewPlayer(logger *zap.Logger) *Player {
	return &Player{logger: logger.Named("player")}
}

// Bind は録画を再生面に割り当てる
func (p *Player) Bind(rec *Recording) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.generation++
	p.current = rec

	p.logger.Info("再生する録画を割り当てました",
		zap.String("recording_id", rec.ID),
		zap.Int("frames", rec.Frames))
}

// Clear は再生面から録画を外す
func (p *Player) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.generation++
	p.current = nil
}

// Current は割り当てられている録画を返す
func (p *Player) Current() *Recording {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *Player) snapshot() (*Recording, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.generation
}

func (p *Player) replaced(generation uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.generation != generation
}

// Stream は割り当てられた録画のフレームを録画時のFPSで fn に渡す
// 最後まで再生するとnilを返し、途中で別の録画が割り当てられると ErrPlaybackReplaced を返す
func (p *Player) Stream(ctx context.Context, fn func(frame []byte) error) error {
	rec, generation := p.snapshot()
	if rec == nil {
		return ErrNothingBound
	}

	ticker := time.NewTicker(rec.FrameInterval())
	defer ticker.Stop()

	for i := 0; i < rec.Frames; i++ {
		if p.replaced(generation) {
			return ErrPlaybackReplaced
		}
		if err := fn(rec.Frame(i)); err != nil {
			return err
		}

		if i == rec.Frames-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}
