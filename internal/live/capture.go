package live

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrWong99/livetutor/internal/observe"
	"github.com/MrWong99/livetutor/pkg/audio"
	"github.com/MrWong99/livetutor/pkg/device"
	providerlive "github.com/MrWong99/livetutor/pkg/provider/live"
)

// Capture pumps microphone frames to a live connection in capture order. It
// keeps no buffer of its own: a frame whose send fails is logged and dropped.
type Capture struct {
	in        device.Input
	conn      providerlive.Conn
	converter audio.Converter
	metrics   *observe.Metrics
	log       *slog.Logger
}

// NewCapture returns a Capture reading from in and sending to conn. Frames not
// captured at [audio.InputSampleRate] are resampled first.
func NewCapture(in device.Input, conn providerlive.Conn, metrics *observe.Metrics, log *slog.Logger) *Capture {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Capture{
		in:        in,
		conn:      conn,
		converter: audio.Converter{TargetRate: audio.InputSampleRate},
		metrics:   metrics,
		log:       log,
	}
}

// Run sends frames until the input closes, the connection reports
// [providerlive.ErrClosed], or ctx is cancelled. It returns the number of
// frames sent.
func (c *Capture) Run(ctx context.Context) int {
	sent := 0
	frames := c.in.Frames()
	for {
		select {
		case <-ctx.Done():
			return sent
		case frame, ok := <-frames:
			if !ok {
				return sent
			}
			frame = c.converter.Convert(frame)
			err := c.conn.SendAudio(audio.EncodeFrame(frame.Samples))
			switch {
			case err == nil:
				sent++
				c.metrics.RecordCaptureFrame(ctx, "sent")
			case errors.Is(err, providerlive.ErrClosed):
				c.metrics.RecordCaptureFrame(ctx, "dropped")
				return sent
			default:
				c.metrics.RecordCaptureFrame(ctx, "dropped")
				c.log.Warn("capture: send failed, frame dropped", "seq", frame.Seq, "err", err)
			}
		}
	}
}
