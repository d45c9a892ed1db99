package openairealtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v3"
)

// EventsChannelLabel is the data channel the provider expects events on.
const EventsChannelLabel = "oai-events"

// DefaultICEServers is the STUN server list used when none is configured.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// WebRTCConfig configures a WebRTCTransport.
type WebRTCConfig struct {
	// Signaler relays the SDP offer. Required.
	Signaler Signaler

	// Media supplies the local audio track. When nil the transport only
	// receives audio.
	Media MediaSource

	// ICEServers defaults to DefaultICEServers when nil.
	ICEServers []webrtc.ICEServer
	Logger     *slog.Logger
}

// WebRTCTransport is a Transport over a WebRTC peer connection with an
// "oai-events" data channel.
type WebRTCTransport struct {
	handlers

	cfg    WebRTCConfig
	logger *slog.Logger

	mu       sync.Mutex
	pc       *webrtc.PeerConnection
	dc       *webrtc.DataChannel
	media    bool
	closed   bool
	onTrack  func(*webrtc.TrackRemote)
	closeErr error

	closeOnce sync.Once
}

var _ Transport = (*WebRTCTransport)(nil)

// NewWebRTCTransport returns an unconnected WebRTC transport.
func NewWebRTCTransport(cfg WebRTCConfig) *WebRTCTransport {
	if cfg.ICEServers == nil {
		cfg.ICEServers = DefaultICEServers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebRTCTransport{cfg: cfg, logger: logger.With("transport", "webrtc")}
}

// OnRemoteTrack registers a callback for the provider's audio track.
func (t *WebRTCTransport) OnRemoteTrack(fn func(*webrtc.TrackRemote)) {
	t.mu.Lock()
	t.onTrack = fn
	t.mu.Unlock()
}

// Connect runs the offer/answer sequence. On failure the transport is
// closed and the error is a *ConnectionError naming the failed step.
func (t *WebRTCTransport) Connect(ctx context.Context, cred Credential) (err error) {
	if t.cfg.Signaler == nil {
		return &ConnectionError{Step: StepOffer, Err: errors.New("no signaler configured")}
	}
	defer func() {
		if err != nil {
			t.Close()
		}
	}()

	t.emitState(StateConnecting)

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: t.cfg.ICEServers})
	if err != nil {
		return stepError(StepOffer, fmt.Errorf("create peer connection: %w", err))
	}
	if !t.adopt(func() { t.pc = pc }) {
		pc.Close()
		return stepError(StepOffer, ErrClosed)
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.logger.Debug("peer connection state", "state", s.String())
		switch s {
		case webrtc.PeerConnectionStateDisconnected:
			t.emitState(StateDisconnected)
		case webrtc.PeerConnectionStateFailed:
			t.emitState(StateFailed)
		case webrtc.PeerConnectionStateClosed:
			t.emitState(StateClosed)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		t.logger.Debug("remote audio track", "codec", track.Codec().MimeType)
		t.mu.Lock()
		fn := t.onTrack
		t.mu.Unlock()
		if fn != nil {
			fn(track)
		}
	})

	if err := t.addAudio(ctx, pc); err != nil {
		return err
	}

	dc, err := pc.CreateDataChannel(EventsChannelLabel, nil)
	if err != nil {
		return stepError(StepOffer, fmt.Errorf("create data channel: %w", err))
	}
	t.adopt(func() { t.dc = dc })
	dc.OnOpen(func() {
		t.logger.Debug("data channel open")
		t.emitState(StateOpen)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.emitMessage(msg.Data)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return stepError(StepOffer, fmt.Errorf("create offer: %w", err))
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return stepError(StepOffer, fmt.Errorf("set local description: %w", err))
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return stepError(StepOffer, ctx.Err())
	}

	answer, err := t.cfg.Signaler.ExchangeSDP(ctx, cred, pc.LocalDescription().SDP)
	if err != nil {
		return stepError(StepSDPExchange, err)
	}
	if t.isClosed() {
		return stepError(StepAnswer, ErrClosed)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return stepError(StepAnswer, fmt.Errorf("set remote description: %w", err))
	}
	return nil
}

func (t *WebRTCTransport) addAudio(ctx context.Context, pc *webrtc.PeerConnection) error {
	if t.cfg.Media == nil {
		_, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return stepError(StepMedia, fmt.Errorf("add audio transceiver: %w", err))
		}
		return nil
	}
	track, err := t.cfg.Media.Acquire(ctx)
	if err != nil {
		return stepError(StepMedia, err)
	}
	if !t.adopt(func() { t.media = true }) {
		t.cfg.Media.Release()
		return stepError(StepMedia, ErrClosed)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return stepError(StepMedia, fmt.Errorf("add local track: %w", err))
	}
	return nil
}

// adopt runs set under the lock unless the transport is already closed.
func (t *WebRTCTransport) adopt(set func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	set()
	return true
}

func (t *WebRTCTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Send marshals event as JSON and writes it to the data channel.
func (t *WebRTCTransport) Send(event any) error {
	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		t.logger.Warn("dropping event, data channel not open")
		return ErrChannelNotOpen
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return dc.SendText(string(data))
}

// Close releases the media track and closes the data channel and the peer
// connection. It is safe to call at any point, more than once.
func (t *WebRTCTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		pc, dc, media := t.pc, t.dc, t.media
		t.mu.Unlock()

		if media {
			t.cfg.Media.Release()
		}
		if dc != nil {
			if err := dc.Close(); err != nil {
				t.logger.Debug("close data channel", "error", err)
			}
		}
		if pc != nil {
			t.closeErr = pc.Close()
		}
	})
	return t.closeErr
}
