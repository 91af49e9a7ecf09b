package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// firstFrameTimeout は取得時に最初のフレームを待つ時間
const firstFrameTimeout = 10 * time.Second

// V4L2Backend はffmpeg経由でV4L2デバイスからフレームを取得する取得API
// cgoなしで動作するため、pion/mediadevices のドライバが使えない環境で使う
type V4L2Backend struct {
	discovery    Discovery
	ffmpeg       string
	torchControl string
	logger       *zap.Logger

	mu     sync.Mutex
	facing map[FacingMode]string
	open   map[string]bool
}

// NewV4L2Backend は新しいV4L2Backendを作成する
func NewV4L2Backend(discovery Discovery, ffmpeg, torchControl string, logger *zap.Logger) *V4L2Backend {
	return &V4L2Backend{
		discovery:    discovery,
		ffmpeg:       ffmpeg,
		torchControl: torchControl,
		logger:       logger.Named("v4l2"),
		facing:       make(map[FacingMode]string),
		open:         make(map[string]bool),
	}
}

// EnumerateDevices はV4L2デバイスを列挙する
func (b *V4L2Backend) EnumerateDevices(ctx context.Context) []DeviceInfo {
	nodes, err := b.discovery.ScanDevices(ctx)
	if err != nil {
		b.logger.Warn("デバイスのスキャンに失敗", zap.Error(err))
		return nil
	}

	devices := make([]DeviceInfo, 0, len(nodes))
	for _, node := range nodes {
		info, err := b.discovery.GetDeviceInfo(ctx, node)
		if err != nil {
			devices = append(devices, DeviceInfo{Device: node, Name: node, Driver: "v4l2"})
			continue
		}
		devices = append(devices, *info)
	}
	return devices
}

// RegisterFacing は向き→デバイスノードの対応表を登録する
func (b *V4L2Backend) RegisterFacing(facing map[FacingMode]string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.facing = make(map[FacingMode]string, len(facing))
	for mode, node := range facing {
		b.facing[mode] = node
	}
}

func (b *V4L2Backend) resolveDevice(ctx context.Context, facing FacingMode) string {
	b.mu.Lock()
	node, ok := b.facing[facing]
	if !ok {
		node = b.facing[facing.Opposite()]
	}
	b.mu.Unlock()

	if node != "" {
		return node
	}

	// 互換レイヤー未登録の場合は最初のデバイスを使う
	nodes, err := b.discovery.ScanDevices(ctx)
	if err != nil || len(nodes) == 0 {
		return ""
	}
	return nodes[0]
}

// GetUserMedia はffmpegを起動し、最初のフレームが届いた時点でストリームを返す
func (b *V4L2Backend) GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error) {
	node := b.resolveDevice(ctx, constraints.FacingMode)
	if node == "" {
		return nil, &PlatformError{Name: "NotFoundError", Message: "V4L2デバイスがありません"}
	}

	if err := b.discovery.CheckAccess(ctx, node); err != nil {
		switch {
		case errors.Is(err, os.ErrPermission):
			return nil, &PlatformError{Name: "NotAllowedError", Message: err.Error()}
		case errors.Is(err, os.ErrNotExist):
			return nil, &PlatformError{Name: "NotFoundError", Message: err.Error()}
		default:
			return nil, &PlatformError{Name: "DeviceReadError", Message: err.Error()}
		}
	}

	b.mu.Lock()
	if b.open[node] {
		b.mu.Unlock()
		return nil, &PlatformError{Name: "NotReadableError", Message: node + " は使用中です"}
	}
	b.open[node] = true
	b.mu.Unlock()

	track := newV4L2Track(node, constraints, b)
	if err := track.start(b.ffmpeg); err != nil {
		_ = track.Stop()
		return nil, &PlatformError{Name: "DeviceReadError", Message: err.Error()}
	}

	waitCtx, cancel := context.WithTimeout(ctx, firstFrameTimeout)
	defer cancel()
	if err := track.waitFirstFrame(waitCtx); err != nil {
		stderr := track.stderrText()
		_ = track.Stop()
		if ctx.Err() != nil {
			return nil, &PlatformError{Name: "AbortError", Message: ctx.Err().Error()}
		}
		return nil, classifyFFmpegFailure(err, stderr)
	}

	b.logger.Debug("ストリームを開始しました", zap.String("device", node))
	return &mediaStream{id: uuid.New().String(), tracks: []Track{track}}, nil
}

func (b *V4L2Backend) release(node string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.open, node)
}

// classifyFFmpegFailure はffmpegのエラー出力から失敗の種類を判定する
func classifyFFmpegFailure(err error, stderr string) error {
	msg := fmt.Sprintf("%v (stderr: %s)", err, stderr)
	switch {
	case strings.Contains(stderr, "Device or resource busy"):
		return &PlatformError{Name: "NotReadableError", Message: msg}
	case strings.Contains(stderr, "Input/output error"):
		return &PlatformError{Name: "DeviceReadError", Message: msg}
	case strings.Contains(stderr, "Permission denied"):
		return &PlatformError{Name: "NotAllowedError", Message: msg}
	case strings.Contains(stderr, "No such file or directory"):
		return &PlatformError{Name: "NotFoundError", Message: msg}
	case strings.Contains(stderr, "Invalid argument"), strings.Contains(stderr, "not supported"):
		return &PlatformError{Name: "OverconstrainedError", Message: msg}
	default:
		return &PlatformError{Name: "TrackStartError", Message: msg}
	}
}

// v4l2Track はffmpegプロセス1つに対応する映像トラック
type v4l2Track struct {
	id          string
	device      string
	constraints Constraints
	backend     *V4L2Backend
	torch       *V4L2Torch

	cancel context.CancelFunc
	done   chan struct{}
	stderr bytes.Buffer

	mu      sync.Mutex
	cond    *sync.Cond
	frame   []byte
	seq     uint64
	stopped bool
	err     error
}

func newV4L2Track(device string, constraints Constraints, backend *V4L2Backend) *v4l2Track {
	t := &v4l2Track{
		id:          uuid.New().String(),
		device:      device,
		constraints: constraints,
		backend:     backend,
		torch:       NewV4L2Torch(device, backend.torchControl),
		done:        make(chan struct{}),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *v4l2Track) ID() string      { return t.id }
func (t *v4l2Track) Kind() TrackKind { return TrackVideo }
func (t *v4l2Track) Label() string   { return t.device }

// start はffmpegを起動し、MJPEGフレームの読み取りを開始する
func (t *v4l2Track) start(binary string) error {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	args := []string{"-f", "v4l2"}
	if t.constraints.Width > 0 && t.constraints.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", t.constraints.Width, t.constraints.Height))
	}
	if t.constraints.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(t.constraints.FPS))
	}
	args = append(args,
		"-i", t.device,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = &lockedWriter{mu: &t.mu, buf: &t.stderr}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		close(t.done)
		return fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}
	if err := cmd.Start(); err != nil {
		close(t.done)
		return fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}

	go func() {
		defer close(t.done)
		t.readFrames(stdout)
		// エラーはコンテキストキャンセル時にも発生するため読み取り側の結果を優先する
		_ = cmd.Wait()
	}()

	return nil
}

func (t *v4l2Track) readFrames(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	scanner.Split(scanJPEG)

	for scanner.Scan() {
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())

		t.mu.Lock()
		t.frame = frame
		t.seq++
		t.cond.Broadcast()
		t.mu.Unlock()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		if err := scanner.Err(); err != nil {
			t.err = fmt.Errorf("フレーム読み取りエラー: %w", err)
		} else {
			t.err = io.EOF
		}
	}
	t.cond.Broadcast()
}

// waitFirstFrame は最初のフレームが届くかffmpegが終了するまで待つ
func (t *v4l2Track) waitFirstFrame(ctx context.Context) error {
	ready := make(chan error, 1)
	go func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for t.seq == 0 && t.err == nil {
			t.cond.Wait()
		}
		if t.seq > 0 {
			ready <- nil
			return
		}
		ready <- t.err
	}()

	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		// 待機中のゴルーチンは Stop の Broadcast で終了する
		return ctx.Err()
	}
}

func (t *v4l2Track) stderrText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.stderr.String())
}

// next は seq より新しいフレームを待って返す
func (t *v4l2Track) next(seq uint64) ([]byte, uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for t.seq <= seq && t.err == nil {
		t.cond.Wait()
	}
	if t.seq > seq {
		return t.frame, t.seq, nil
	}
	return nil, seq, t.err
}

func (t *v4l2Track) NewReader() FrameReader {
	return &v4l2Reader{track: t}
}

// Stop はffmpegを終了してデバイスを解放する
func (t *v4l2Track) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	t.err = io.EOF
	t.cond.Broadcast()
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	<-t.done

	t.backend.release(t.device)
	return nil
}

func (t *v4l2Track) SetTorch(ctx context.Context, on bool) error {
	if t.torch == nil {
		return fmt.Errorf("ライト制御に対応していません: %s", t.device)
	}
	return t.torch.SetTorch(ctx, on)
}

type v4l2Reader struct {
	track *v4l2Track
	seq   uint64
}

func (r *v4l2Reader) Read() (image.Image, func(), error) {
	data, seq, err := r.track.next(r.seq)
	if err != nil {
		return nil, func() {}, err
	}
	r.seq = seq

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, func() {}, fmt.Errorf("JPEG画像のデコードに失敗: %w", err)
	}
	return img, func() {}, nil
}

// scanJPEG はSOI(FF D8)からEOI(FF D9)までを1フレームとして切り出す bufio.SplitFunc
func scanJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, []byte{0xFF, 0xD8})
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		// 開始マーカーの前半だけが末尾にある場合に備えて1バイト残す
		if len(data) > 1 {
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start+2:], []byte{0xFF, 0xD9})
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		// 不要なデータを捨てて続きを待つ
		return start, nil, nil
	}

	end += start + 2 + 2
	return end, data[start:end], nil
}

// lockedWriter はトラックのロックで保護されたWriter
type lockedWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}
