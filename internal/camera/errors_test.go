package camera

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyName(t *testing.T) {
	testCases := []struct {
		name   string
		kind   ErrorKind
		reason string
	}{
		{"NotFoundError", KindNotFound, "Devices not found"},
		{"DevicesNotFoundError", KindNotFound, "Devices not found"},
		{"TrackStartError", KindInUse, "Devices already in use"},
		{"NotReadableError", KindInUse, "Devices already in use"},
		{"DeviceReadError", KindNotReadable, "Devices not readable or already in use"},
		{"OverconstrainedError", KindOverconstrained, "Constraints not accepted"},
		{"ConstraintNotSatisfiedError", KindOverconstrained, "Constraints not accepted"},
		{"NotAllowedError", KindPermissionDenied, "Permission denied"},
		{"PermissionDeniedError", KindPermissionDenied, "Permission denied"},
		{"PermissionTimeoutError", KindPermissionTimeout, "Permission request timed out"},
		{"TypeError", KindConstraints, "Constraints error"},
		{"AbortError", KindUnknown, "Camera error"},
		{"", KindUnknown, "Camera error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			kind := ClassifyName(tc.name)
			if kind != tc.kind {
				t.Errorf("Expected kind %s, got %s", tc.kind, kind)
			}
			if kind.Reason() != tc.reason {
				t.Errorf("Expected reason %q, got %q", tc.reason, kind.Reason())
			}
		})
	}
}

// 対応表の全エントリが既知の分類に解決されることを確認する
func TestErrorKindsTableIsExhaustive(t *testing.T) {
	seen := make(map[ErrorKind]bool)
	for name, kind := range errorKinds {
		if kind == KindUnknown {
			t.Errorf("%s が未分類に対応しています", name)
		}
		if kind.String() == "unknown" {
			t.Errorf("%s の分類に識別子がありません", name)
		}
		seen[kind] = true
	}

	for _, kind := range []ErrorKind{
		KindNotFound, KindInUse, KindNotReadable, KindOverconstrained,
		KindPermissionDenied, KindPermissionTimeout, KindConstraints,
	} {
		if !seen[kind] {
			t.Errorf("分類 %s に対応するエラー名がありません", kind)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if Classify(nil) != nil {
			t.Error("Expected nil for nil error")
		}
	})

	t.Run("PlatformError", func(t *testing.T) {
		raw := &PlatformError{Name: "NotAllowedError", Message: "denied by user"}
		camErr := Classify(fmt.Errorf("wrapped: %w", raw))
		if camErr.Kind != KindPermissionDenied {
			t.Errorf("Expected permission denied, got %s", camErr.Kind)
		}
		if camErr.Reason() != "Permission denied" {
			t.Errorf("Unexpected reason %q", camErr.Reason())
		}
		if camErr.Name != "NotAllowedError" {
			t.Errorf("Expected raw name to be kept, got %q", camErr.Name)
		}
		if !errors.Is(camErr, raw) {
			t.Error("Expected classified error to unwrap to the raw error")
		}
	})

	t.Run("OverconstrainedError", func(t *testing.T) {
		camErr := Classify(&PlatformError{Name: "OverconstrainedError"})
		if camErr.Reason() != "Constraints not accepted" {
			t.Errorf("Unexpected reason %q", camErr.Reason())
		}
	})

	t.Run("already classified", func(t *testing.T) {
		original := &CameraError{Kind: KindInUse}
		if Classify(fmt.Errorf("ctx: %w", original)) != original {
			t.Error("Expected the existing CameraError to be returned")
		}
	})

	t.Run("unnamed error", func(t *testing.T) {
		camErr := Classify(errors.New("boom"))
		if camErr.Kind != KindUnknown {
			t.Errorf("Expected unknown kind, got %s", camErr.Kind)
		}
	})
}
