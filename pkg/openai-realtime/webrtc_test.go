package openairealtime_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"

	openairealtime "github.com/haivivi/ishe/pkg/openai-realtime"
)

type failingSignaler struct {
	offers atomic.Int32
}

func (s *failingSignaler) ExchangeSDP(ctx context.Context, _ openairealtime.Credential, offer string) (string, error) {
	s.offers.Add(1)
	if !strings.Contains(offer, "oai-events") && !strings.Contains(offer, "webrtc-datachannel") {
		return "", errors.New("offer has no data channel")
	}
	return "", errors.New("relay unavailable")
}

type countingMedia struct {
	src      openairealtime.SilenceSource
	acquired atomic.Int32
	released atomic.Int32
}

func (m *countingMedia) Acquire(ctx context.Context) (webrtc.TrackLocal, error) {
	m.acquired.Add(1)
	return m.src.Acquire(ctx)
}

func (m *countingMedia) Release() {
	m.released.Add(1)
	m.src.Release()
}

func TestWebRTCTransportCloseBeforeConnect(t *testing.T) {
	tr := openairealtime.NewWebRTCTransport(openairealtime.WebRTCConfig{Signaler: &failingSignaler{}})
	if err := tr.Send(map[string]string{"type": "x"}); !errors.Is(err, openairealtime.ErrChannelNotOpen) {
		t.Errorf("Send = %v, want ErrChannelNotOpen", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := tr.Connect(context.Background(), openairealtime.Credential{}); err == nil {
		t.Error("Connect after Close succeeded")
	}
}

func TestWebRTCTransportFailedExchangeReleasesMedia(t *testing.T) {
	sig := &failingSignaler{}
	media := &countingMedia{}
	tr := openairealtime.NewWebRTCTransport(openairealtime.WebRTCConfig{
		Signaler:   sig,
		Media:      media,
		ICEServers: []webrtc.ICEServer{},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := tr.Connect(ctx, openairealtime.Credential{Value: "ek"})

	var ce *openairealtime.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConnectionError", err)
	}
	if ce.Step != openairealtime.StepSDPExchange {
		t.Errorf("Step = %s, want %s", ce.Step, openairealtime.StepSDPExchange)
	}
	if sig.offers.Load() != 1 {
		t.Errorf("offers = %d, want 1", sig.offers.Load())
	}
	if media.acquired.Load() != 1 || media.released.Load() != 1 {
		t.Errorf("acquired=%d released=%d, want 1/1", media.acquired.Load(), media.released.Load())
	}

	// Close after the failed connect must not release twice.
	tr.Close()
	if media.released.Load() != 1 {
		t.Errorf("released = %d after extra Close", media.released.Load())
	}
}

func TestWebRTCTransportCancelledConnect(t *testing.T) {
	tr := openairealtime.NewWebRTCTransport(openairealtime.WebRTCConfig{
		Signaler:   &failingSignaler{},
		ICEServers: []webrtc.ICEServer{},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Connect(ctx, openairealtime.Credential{}); err == nil {
		t.Fatal("Connect with cancelled context succeeded")
	}
}
