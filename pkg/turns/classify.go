package turns

import (
	"log/slog"

	openairealtime "github.com/haivivi/ishe/pkg/openai-realtime"
)

// Ignore reasons.
const (
	ReasonMalformed = "malformed"
	ReasonFenced    = "stale response"
)

// Classify turns one raw server message into an Event. Events scoped to a
// response other than activeResponseID are fenced as Ignored, except
// response.created which is what moves the active id forward. Classify
// never panics on bad input.
func Classify(raw []byte, activeResponseID string) Event {
	ev, err := openairealtime.ParseServerEvent(raw)
	if err != nil {
		slog.Error("unparseable server event", "error", err, "len", len(raw))
		return Ignored{Reason: ReasonMalformed}
	}

	if ev.Type != openairealtime.EventTypeResponseCreated {
		if id := ev.FenceID(); id != "" && activeResponseID != "" && id != activeResponseID {
			return Ignored{Type: ev.Type, Reason: ReasonFenced}
		}
	}

	switch ev.Type {
	case openairealtime.EventTypeInputAudioTranscriptionCompleted:
		return UserTranscriptChunk{ItemID: ev.ItemID, Text: ev.Transcript}

	case openairealtime.EventTypeInputAudioTranscriptionDelta:
		return UserTranscriptDelta{ItemID: ev.ItemID, Delta: ev.Delta}

	case openairealtime.EventTypeTranscript:
		return UserTranscriptDelta{Delta: ev.Text, Replace: true}

	case openairealtime.EventTypeResponseCreated:
		if ev.Response == nil || ev.Response.ID == "" {
			return Ignored{Type: ev.Type, Reason: ReasonMalformed}
		}
		return ResponseCreated{ResponseID: ev.Response.ID}

	case openairealtime.EventTypeResponseOutputItemAdded:
		if ev.Item == nil || ev.Item.ID == "" {
			return Unclassified{Type: ev.Type}
		}
		return AssistantItemLinked{ItemID: ev.Item.ID, ResponseID: ev.ResponseID}

	case openairealtime.EventTypeConversationItemCreated:
		if ev.Item == nil || ev.Item.ID == "" {
			return Unclassified{Type: ev.Type}
		}
		switch ev.Item.Role {
		case openairealtime.RoleAssistant:
			return AssistantItemLinked{ItemID: ev.Item.ID, PreviousItemID: ev.PreviousItemID}
		case openairealtime.RoleUser:
			return UserItemCreated{ItemID: ev.Item.ID, PreviousItemID: ev.PreviousItemID}
		}
		return Unclassified{Type: ev.Type}

	case openairealtime.EventTypeResponseAudioTranscriptDelta:
		return AssistantTranscriptDelta{ResponseID: ev.ResponseID, ItemID: ev.ItemID, Delta: ev.Delta}

	case openairealtime.EventTypeResponseAudioTranscriptDone:
		return AssistantTranscriptFinal{ResponseID: ev.ResponseID, ItemID: ev.ItemID, Transcript: ev.Transcript}

	case openairealtime.EventTypeResponseDone:
		done := ResponseDone{ResponseID: ev.FenceID()}
		if r := ev.Response; r != nil {
			done.Status = r.Status
			if d := r.StatusDetails; d != nil {
				done.Reason = d.Reason
				if done.Reason == "" && d.Error != nil {
					done.Reason = d.Error.Message
				}
			}
		}
		return done

	case openairealtime.EventTypeSpeechStarted, openairealtime.EventTypeOutputAudioBufferStarted:
		return SpeechStarted{Who: Assistant}
	case openairealtime.EventTypeSpeechEnded, openairealtime.EventTypeOutputAudioBufferStopped:
		return SpeechEnded{Who: Assistant}
	case openairealtime.EventTypeInputAudioBufferSpeechStarted:
		return SpeechStarted{Who: User}
	case openairealtime.EventTypeInputAudioBufferSpeechStopped:
		return SpeechEnded{Who: User}

	case openairealtime.EventTypeSessionCreated, openairealtime.EventTypeSessionUpdated:
		sl := SessionLifecycle{Kind: ev.Type}
		if ev.Session != nil {
			sl.SessionID = ev.Session.ID
		}
		return sl

	case openairealtime.EventTypeError,
		openairealtime.EventTypeSessionError,
		openairealtime.EventTypeInputAudioTranscriptionFailed:
		ee := ErrorEvent{Kind: ev.Type}
		if e := ev.Err(); e != nil {
			ee.Code = e.Code
			ee.Message = e.Message
		}
		return ee
	}

	slog.Debug("unclassified server event", "type", ev.Type)
	return Unclassified{Type: ev.Type}
}
