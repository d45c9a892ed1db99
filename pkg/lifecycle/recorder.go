package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"

	"github.com/haivivi/ishe/pkg/sink"
)

// UploadTimeout bounds a background recording upload.
const UploadTimeout = 2 * time.Minute

// OggRecorder writes the provider's Opus audio into an in-memory Ogg file
// and uploads it when the session stops. Uploads run in the background;
// Wait blocks until they finish.
type OggRecorder struct {
	uploader sink.Uploader
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	buf     *bytes.Buffer
	w       *oggwriter.OggWriter
	started time.Time
	packets int

	uploads sync.WaitGroup
}

var _ Recorder = (*OggRecorder)(nil)

// NewOggRecorder returns a recorder that hands finished files to up. A nil
// up discards them.
func NewOggRecorder(up sink.Uploader, logger *slog.Logger) *OggRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &OggRecorder{
		uploader: up,
		logger:   logger.With("component", "recorder"),
		now:      time.Now,
	}
}

// Start opens a new recording. Starting twice keeps the first one.
func (r *OggRecorder) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w != nil {
		return nil
	}
	buf := new(bytes.Buffer)
	w, err := oggwriter.NewWith(buf, 48000, 2)
	if err != nil {
		return err
	}
	r.buf, r.w, r.started, r.packets = buf, w, r.now(), 0
	return nil
}

// Attach copies track into the current recording until the track ends.
func (r *OggRecorder) Attach(track *webrtc.TrackRemote) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	go func() {
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					r.logger.Debug("remote track ended", "error", err)
				}
				return
			}
			if err := r.WritePacket(pkt); err != nil {
				r.logger.Warn("write packet", "error", err)
				return
			}
		}
	}()
}

// WritePacket appends one Opus RTP packet. Packets outside a recording are
// dropped.
func (r *OggRecorder) WritePacket(pkt *rtp.Packet) error {
	if pkt == nil || len(pkt.Payload) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	if err := r.w.WriteRTP(pkt); err != nil {
		return err
	}
	r.packets++
	return nil
}

// Stop finishes the recording and uploads it in the background. Empty
// recordings are discarded. Stop without Start does nothing.
func (r *OggRecorder) Stop(context.Context) error {
	r.mu.Lock()
	if r.w == nil {
		r.mu.Unlock()
		return nil
	}
	err := r.w.Close()
	data, packets := r.buf.Bytes(), r.packets
	duration := r.now().Sub(r.started)
	r.buf, r.w = nil, nil
	r.mu.Unlock()

	if err != nil {
		return err
	}
	if packets == 0 || r.uploader == nil {
		r.logger.Debug("recording discarded", "packets", packets)
		return nil
	}
	name := "recording-" + uuid.NewString() + ".ogg"
	r.uploads.Add(1)
	go func() {
		defer r.uploads.Done()
		ctx, cancel := context.WithTimeout(context.Background(), UploadTimeout)
		defer cancel()
		if err := r.uploader.UploadAudio(ctx, name, bytes.NewReader(data), duration); err != nil {
			r.logger.Error("upload recording", "error", err, "name", name)
			return
		}
		r.logger.Info("recording uploaded", "name", name, "bytes", len(data), "duration", duration)
	}()
	return nil
}

// Wait blocks until pending uploads finish.
func (r *OggRecorder) Wait() {
	r.uploads.Wait()
}
