package portaudio

import (
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/livetutor/pkg/device"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"alsa eacces", errors.New("Unanticipated host error: ALSA: Permission denied"), device.ErrPermissionDenied},
		{"eperm", errors.New("host error: Operation not permitted"), device.ErrPermissionDenied},
		{"wasapi", errors.New("WASAPI: Access is denied."), device.ErrPermissionDenied},
		{"missing device", fmt.Errorf("%w: no device named %q", device.ErrUnavailable, "usb"), device.ErrUnavailable},
		{"already permission", fmt.Errorf("wrapped: %w", device.ErrPermissionDenied), device.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := classify(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want wrapping %v", tt.err, got, tt.want)
			}
			if tt.want == device.ErrUnavailable && errors.Is(got, device.ErrPermissionDenied) {
				t.Errorf("classify(%v) reported permission denied", tt.err)
			}
		})
	}

	other := errors.New("Invalid sample rate")
	if got := classify(other); errors.Is(got, device.ErrPermissionDenied) || errors.Is(got, device.ErrUnavailable) {
		t.Errorf("classify(%v) = %v, want unchanged", other, got)
	}
}
