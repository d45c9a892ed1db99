package lifecycle

import (
	openairealtime "github.com/haivivi/ishe/pkg/openai-realtime"
)

// State is the session state. Only the controller's event loop changes it.
type State int

const (
	Idle State = iota
	Connecting
	Active
	SwitchingMode
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case SwitchingMode:
		return "switching_mode"
	case Stopping:
		return "stopping"
	}
	return "unknown"
}

// transcriptionPrompt biases Turkish transcription toward medical and
// regional vocabulary.
const transcriptionPrompt = "Kullanıcının konuşmasını tıbbi terimler, eski Türkçe ifadeler ve yöresel kelimeler dahil " +
	"doğru ve eksiksiz yaz. Noktalama ve Türkçe karakterlere (ç, ğ, ı, İ, ö, ş, ü) özen göster; " +
	"anlaşılmayan yerler için \"[anlaşılmadı]\" yaz."

// DefaultSession is the session.update payload sent on channel open and on
// mode switch. Instructions are filled in per mode.
func DefaultSession() openairealtime.SessionConfig {
	return openairealtime.SessionConfig{
		Modalities:        []string{openairealtime.ModalityAudio, openairealtime.ModalityText},
		InputAudioFormat:  openairealtime.AudioFormatPCM16,
		OutputAudioFormat: openairealtime.AudioFormatPCM16,
		InputAudioTranscription: &openairealtime.TranscriptionConfig{
			Model:    openairealtime.TranscriptionModelWhisper,
			Language: "tr",
			Prompt:   transcriptionPrompt,
		},
	}
}
