package openairealtime

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// MediaSource supplies the local audio track. Release is called exactly
// once by the transport that acquired the track.
type MediaSource interface {
	Acquire(ctx context.Context) (webrtc.TrackLocal, error)
	Release()
}

// opusSilence is a single Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const silenceFrame = 20 * time.Millisecond

// SilenceSource is a MediaSource that writes Opus silence every 20ms. It
// keeps the provider's audio pipeline alive when no microphone is attached.
type SilenceSource struct {
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// Acquire creates the track and starts the writer goroutine.
func (s *SilenceSource) Acquire(ctx context.Context) (webrtc.TrackLocal, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "ishe-mic",
	)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(track, s.stop, s.done)
	return track, nil
}

func (s *SilenceSource) run(track *webrtc.TrackLocalStaticSample, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(silenceFrame)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Errors before the track is bound are expected.
			_ = track.WriteSample(media.Sample{Data: opusSilence, Duration: silenceFrame})
		}
	}
}

// Release stops the writer and waits for it to exit.
func (s *SilenceSource) Release() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
