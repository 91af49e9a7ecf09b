package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/google/uuid"
)

// MockMediaDevices は合成フレームを返す取得APIのモック
// ハードウェアのない環境での動作確認とテストに使う
type MockMediaDevices struct {
	mu       sync.Mutex
	facings  map[FacingMode]bool
	width    int
	height   int
	failNext *PlatformError
	gate     chan struct{}
	torchErr error
	shim     map[FacingMode]string

	openTracks    int
	maxOpenTracks int
	calls         int
	torchCalls    int
}

// NewMockMediaDevices は指定された向きのカメラを持つモックを作成する
func NewMockMediaDevices(facings ...FacingMode) *MockMediaDevices {
	m := &MockMediaDevices{
		facings: make(map[FacingMode]bool),
		width:   320,
		height:  240,
	}
	for _, f := range facings {
		m.facings[f] = true
	}
	return m
}

// EnumerateDevices はモックデバイス一覧を返す
func (m *MockMediaDevices) EnumerateDevices(_ context.Context) []DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	devices := make([]DeviceInfo, 0, len(m.facings))
	for _, f := range []FacingMode{FacingUser, FacingEnvironment} {
		if m.facings[f] {
			devices = append(devices, DeviceInfo{
				Device: "mock-" + string(f),
				Name:   fmt.Sprintf("モックカメラ (%s)", f),
				Driver: "mock",
			})
		}
	}
	return devices
}

// GetUserMedia はモックストリームを取得する
func (m *MockMediaDevices) GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error) {
	m.mu.Lock()
	m.calls++
	gate := m.gate
	m.mu.Unlock()

	// Block で保留された取得は Release まで待つ
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &PlatformError{Name: "AbortError", Message: ctx.Err().Error()}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return nil, err
	}
	if len(m.facings) == 0 {
		return nil, &PlatformError{Name: "NotFoundError", Message: "カメラがありません"}
	}
	// 指定された向きがなければ他のカメラで代替する
	facing := constraints.FacingMode
	if !m.facings[facing] {
		facing = facing.Opposite()
	}
	if m.openTracks > 0 {
		return nil, &PlatformError{Name: "NotReadableError", Message: "デバイスは使用中です"}
	}

	width, height := m.width, m.height
	if constraints.Width > 0 && constraints.Height > 0 {
		width, height = constraints.Width, constraints.Height
	}

	track := &mockTrack{
		id:     uuid.New().String(),
		facing: facing,
		width:  width,
		height: height,
		owner:  m,
	}
	m.openTracks++
	if m.openTracks > m.maxOpenTracks {
		m.maxOpenTracks = m.openTracks
	}

	return &mockStream{id: uuid.New().String(), tracks: []Track{track}}, nil
}

// AddCamera はテスト用にカメラを接続する
func (m *MockMediaDevices) AddCamera(facing FacingMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facings[facing] = true
}

// RemoveCamera はテスト用にカメラを取り外す
func (m *MockMediaDevices) RemoveCamera(facing FacingMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.facings, facing)
}

// RegisterFacing は登録された互換レイヤーの対応表を記録する
func (m *MockMediaDevices) RegisterFacing(facing map[FacingMode]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shim = facing
}

// Shim は登録された対応表を返す
func (m *MockMediaDevices) Shim() map[FacingMode]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shim
}

// FailNext は次の取得を指定されたエラー名で失敗させる
func (m *MockMediaDevices) FailNext(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = &PlatformError{Name: name, Message: "モック: 取得に失敗"}
}

// Block は以降の取得を Release まで保留させる
func (m *MockMediaDevices) Block() (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gate := make(chan struct{})
	m.gate = gate

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.gate = nil
			m.mu.Unlock()
			close(gate)
		})
	}
}

// SetTorchError はライト制御の失敗を設定する
func (m *MockMediaDevices) SetTorchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.torchErr = err
}

// OpenTracks は現在開いているトラック数を返す
func (m *MockMediaDevices) OpenTracks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openTracks
}

// MaxOpenTracks は同時に開かれたトラック数の最大値を返す
func (m *MockMediaDevices) MaxOpenTracks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxOpenTracks
}

// Calls は GetUserMedia の呼び出し回数を返す
func (m *MockMediaDevices) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// TorchCalls はライト制御の呼び出し回数を返す
func (m *MockMediaDevices) TorchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.torchCalls
}

type mockStream struct {
	id     string
	tracks []Track
}

func (s *mockStream) ID() string           { return s.id }
func (s *mockStream) Tracks() []Track      { return s.tracks }
func (s *mockStream) VideoTracks() []Track { return s.tracks }

type mockTrack struct {
	id     string
	facing FacingMode
	width  int
	height int
	owner  *MockMediaDevices

	mu      sync.Mutex
	stopped bool
	frame   uint8
}

func (t *mockTrack) ID() string      { return t.id }
func (t *mockTrack) Kind() TrackKind { return TrackVideo }
func (t *mockTrack) Label() string   { return "mock-" + string(t.facing) }

func (t *mockTrack) NewReader() FrameReader {
	return &mockReader{track: t}
}

func (t *mockTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return nil
	}
	t.stopped = true

	t.owner.mu.Lock()
	t.owner.openTracks--
	t.owner.mu.Unlock()
	return nil
}

func (t *mockTrack) SetTorch(_ context.Context, _ bool) error {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.owner.torchCalls++
	return t.owner.torchErr
}

// nextFrame は向きごとに色の異なるグラデーション画像を生成する
func (t *mockTrack) nextFrame() (image.Image, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return nil, io.EOF
	}
	t.frame++

	img := image.NewRGBA(image.Rect(0, 0, t.width, t.height))
	base := uint8(40)
	if t.facing == FacingEnvironment {
		base = 200
	}
	for y := 0; y < t.height; y++ {
		for x := 0; x < t.width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: base,
				G: uint8(x * 255 / t.width),
				B: uint8(y*255/t.height) + t.frame,
				A: 255,
			})
		}
	}
	return img, nil
}

type mockReader struct {
	track *mockTrack
}

func (r *mockReader) Read() (image.Image, func(), error) {
	img, err := r.track.nextFrame()
	if err != nil {
		return nil, func() {}, err
	}
	return img, func() {}, nil
}

// MockGate はテスト用のGate実装
type MockGate struct {
	mu        sync.Mutex
	supported bool
	deny      bool
	block     bool
	requests  int
}

// NewMockGate は新しいMockGateを作成する
func NewMockGate(supported bool) *MockGate {
	return &MockGate{supported: supported}
}

// CheckSupport は設定された対応状況を返す
func (g *MockGate) CheckSupport(_ context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.supported
}

// RequestPermissions は設定に従って許可・拒否・保留する
func (g *MockGate) RequestPermissions(ctx context.Context, _ []PermissionKind) error {
	g.mu.Lock()
	g.requests++
	deny, block := g.deny, g.block
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if deny {
		return &PlatformError{Name: "NotAllowedError", Message: "モック: 権限が拒否されました"}
	}
	return nil
}

// SetDeny はテスト用に権限の拒否を設定する
func (g *MockGate) SetDeny(deny bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deny = deny
}

// SetBlock はテスト用に権限要求を応答なしにする
func (g *MockGate) SetBlock(block bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.block = block
}

// Requests は権限要求の回数を返す
func (g *MockGate) Requests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests
}

// MockPlatform はテスト用のPlatform実装
type MockPlatform struct {
	mu       sync.Mutex
	caps     Capabilities
	err      error
	prepares int
}

// NewMockPlatform は新しいMockPlatformを作成する
func NewMockPlatform(caps Capabilities, err error) *MockPlatform {
	return &MockPlatform{caps: caps, err: err}
}

// Name はプラットフォーム名を返す
func (p *MockPlatform) Name() string { return "mock" }

// NeedsShim は常にtrueを返す
func (p *MockPlatform) NeedsShim() bool { return true }

// Prepare は設定された結果を返す
func (p *MockPlatform) Prepare(_ context.Context) (Capabilities, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prepares++
	return p.caps, p.err
}

// Prepares は Prepare の呼び出し回数を返す
func (p *MockPlatform) Prepares() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prepares
}

// ErrMockTorch はモックのライト制御失敗を表すエラー
var ErrMockTorch = errors.New("モック: ライトに対応していません")
