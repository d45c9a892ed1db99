package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/haivivi/ishe/pkg/auth"
	openairealtime "github.com/haivivi/ishe/pkg/openai-realtime"
	"github.com/haivivi/ishe/pkg/prompt"
)

// maxSDPSize bounds a relayed offer.
const maxSDPSize = 1 << 20

const transcriptionPrompt = "Türkçe konuşmaları doğru yaz; tıbbi ve yöresel terimlere özen göster; " +
	"noktalama ve Türkçe karakterleri (ç, ğ, ı, İ, ö, ş, ü) doğru kullan."

// sessionConfig is what every minted session starts with.
func (s *Server) sessionConfig(instructions string) openairealtime.SessionConfig {
	temperature := 0.7
	return openairealtime.SessionConfig{
		Modalities:        []string{openairealtime.ModalityAudio, openairealtime.ModalityText},
		Instructions:      instructions,
		Voice:             s.opts.Voice,
		InputAudioFormat:  openairealtime.AudioFormatPCM16,
		OutputAudioFormat: openairealtime.AudioFormatPCM16,
		InputAudioTranscription: &openairealtime.TranscriptionConfig{
			Model:    openairealtime.TranscriptionModelWhisper,
			Language: "tr",
			Prompt:   transcriptionPrompt,
		},
		TurnDetection: &openairealtime.TurnDetection{
			Type:              "server_vad",
			Threshold:         0.3,
			SilenceDurationMs: 700,
			PrefixPaddingMs:   400,
			InterruptResponse: true,
			CreateResponse:    true,
		},
		Tools:                   []any{},
		ToolChoice:              "none",
		Temperature:             &temperature,
		MaxResponseOutputTokens: "inf",
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	ctx := r.Context()

	history, err := s.opts.Conversations.Context(ctx, id.UserID)
	if err != nil {
		s.logger.Error("load conversation context", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	instructions, err := s.opts.Prompts.Build(prompt.ModeSession, id.UserName, history)
	if err != nil {
		s.logger.Error("build session prompt", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.logger.Info("creating realtime session",
		"user_id", id.UserID, "context_len", len(history), "instructions_len", len(instructions))

	resp, err := s.opts.Provider.CreateSession(ctx, &openairealtime.SessionRequest{
		Model:         s.opts.Model,
		SessionConfig: s.sessionConfig(instructions),
	})
	if err != nil {
		var apiErr *openairealtime.Error
		if errors.As(err, &apiErr) && apiErr.HTTPStatus != 0 {
			s.logger.Error("provider rejected session", "status", apiErr.HTTPStatus, "error", apiErr)
			writeJSON(w, apiErr.HTTPStatus, map[string]any{"error": "OpenAI API error", "details": apiErr})
			return
		}
		s.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if resp.ClientSecret.Value == "" {
		s.logger.Error("provider session has no client secret", "session_id", resp.ID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Invalid OpenAI response",
			"message": "Response missing client_secret value",
		})
		return
	}
	writeJSON(w, http.StatusOK, openairealtime.SessionResponse{ClientSecret: resp.ClientSecret})
}

func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSDPSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read SDP offer")
		return
	}
	offer := string(body)
	if strings.TrimSpace(offer) == "" {
		writeError(w, http.StatusBadRequest, "SDP offer is required")
		return
	}
	model := r.URL.Query().Get("model")
	if model == "" {
		model = s.opts.Model
	}

	answer, err := s.opts.Provider.RelaySDP(r.Context(), model, offer)
	if err != nil {
		var apiErr *openairealtime.Error
		if errors.As(err, &apiErr) && apiErr.HTTPStatus != 0 {
			s.logger.Error("provider rejected sdp offer", "status", apiErr.HTTPStatus, "error", apiErr)
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(apiErr.HTTPStatus)
			io.WriteString(w, apiErr.Message)
			return
		}
		s.logger.Error("relay sdp", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.Header().Set("Content-Type", "application/sdp")
	io.WriteString(w, answer)
}
