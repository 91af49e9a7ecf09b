package camera

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// V4L2Torch はv4l2-ctlのコントロールでライトを制御する
// UVCカメラでは led1_mode などのコントロール名で公開されることが多い
type V4L2Torch struct {
	device  string
	control string
	run     func(ctx context.Context, args ...string) error
}

// NewV4L2Torch は新しいV4L2Torchを作成する
// control が空の場合はライト制御を行わない
func NewV4L2Torch(device, control string) *V4L2Torch {
	if control == "" {
		return nil
	}
	return &V4L2Torch{
		device:  device,
		control: control,
		run:     runV4L2Ctl,
	}
}

// SetTorch はライトの点灯・消灯を設定する
func (t *V4L2Torch) SetTorch(ctx context.Context, on bool) error {
	value := 0
	if on {
		value = 1
	}
	return SetControls(ctx, t.device, map[string]interface{}{t.control: value}, t.run)
}

// SetControls はカメラのコントロール（明度、ライトなど）を設定する
func SetControls(ctx context.Context, device string, controls map[string]interface{}, run func(ctx context.Context, args ...string) error) error {
	if run == nil {
		run = runV4L2Ctl
	}

	for control, value := range controls {
		var strValue string
		switch v := value.(type) {
		case int:
			strValue = strconv.Itoa(v)
		case bool:
			strValue = "0"
			if v {
				strValue = "1"
			}
		case float64:
			strValue = strconv.FormatFloat(v, 'f', -1, 64)
		case string:
			strValue = v
		default:
			return fmt.Errorf("サポートされていない値の型: %T", value)
		}

		if err := run(ctx, "--device", device, "--set-ctrl", fmt.Sprintf("%s=%s", control, strValue)); err != nil {
			return fmt.Errorf("コントロール %s の設定に失敗: %w", control, err)
		}
	}

	return nil
}

func runV4L2Ctl(ctx context.Context, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "v4l2-ctl", args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
