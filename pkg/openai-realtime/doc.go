// Package openairealtime is the session transport for OpenAI's Realtime API.
//
// A Transport carries JSON events in both directions. WebRTCTransport opens a
// peer connection with an "oai-events" data channel and an audio track;
// WebSocketTransport carries events only. Both are single use and close
// idempotently, including after a partial Connect.
//
// The client never holds the provider key. It asks our backend for an
// ephemeral credential and relays its SDP offer through the backend:
//
//	backend := openairealtime.NewBackendClient(serverURL,
//	    openairealtime.WithAccessToken(token))
//	cred, err := backend.FetchCredential(ctx)
//	if err != nil {
//	    return err
//	}
//	t := openairealtime.NewWebRTCTransport(openairealtime.WebRTCConfig{
//	    Signaler: backend,
//	    Media:    &openairealtime.SilenceSource{},
//	})
//	t.OnMessage(handle)
//	if err := t.Connect(ctx, cred); err != nil {
//	    return err // *ConnectionError
//	}
//	defer t.Close()
//
// The backend side uses ProviderClient with the server key to mint sessions
// and relay offers.
package openairealtime
