package call

import "encoding/json"

// Event is one frame on the realtime channel: a logical event name plus
// its JSON payload. Both directions use the same shape.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound event names.
const (
	// EventJoinSession announces membership in a session, both on first
	// connect and when rejoining after a reconnect.
	EventJoinSession = "join_voice_session"

	// EventUserUtterance carries one transcribed operator utterance.
	EventUserUtterance = "user_audio"

	// EventEndSession asks the backend to end the session.
	EventEndSession = "end_voice_session"
)

// Inbound event names.
const (
	// EventJoined acknowledges a join_voice_session.
	EventJoined = "joined_session"

	// EventTranscriptUpdate appends one utterance to the transcript.
	EventTranscriptUpdate = "transcript_update"

	// EventAudioSegment delivers one base64-encoded speech segment.
	EventAudioSegment = "ai_audio"

	// EventSessionEnded acknowledges an end_voice_session.
	EventSessionEnded = "session_ended"

	// EventChannelError is an application-level error from the backend.
	EventChannelError = "error"
)

// Transport meta event names, synthesized by the channel implementation
// rather than received from the backend.
const (
	// EventConnected means the transport (re-)established its link.
	EventConnected = "connected"

	// EventReconnecting means the transport lost its link and is retrying.
	EventReconnecting = "reconnecting"

	// EventConnectError means a connection attempt failed.
	EventConnectError = "connect_error"

	// EventDisconnected means the transport link is down for good (client
	// close, server close, or retries exhausted).
	EventDisconnected = "disconnected"
)

// Disconnect reasons carried by [DisconnectPayload].
const (
	// DisconnectReasonClient means the client closed the channel.
	DisconnectReasonClient = "client"

	// DisconnectReasonServer means the server closed the connection; per
	// the reconnection policy this triggers one explicit reconnect.
	DisconnectReasonServer = "server"

	// DisconnectReasonExhausted means bounded reconnection ran out of
	// attempts.
	DisconnectReasonExhausted = "exhausted"
)

// JoinPayload is the body of join_voice_session and joined_session.
type JoinPayload struct {
	SessionID string `json:"session_id"`
	// ClientID identifies this client instance across rejoins.
	ClientID string `json:"client_id,omitempty"`
}

// UtterancePayload is the body of user_audio.
type UtterancePayload struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// EndPayload is the body of end_voice_session.
type EndPayload struct {
	SessionID string `json:"session_id"`
}

// TranscriptPayload is the body of transcript_update. Speaker is the
// backend's tag: "user" for the operator, anything else for the agent.
type TranscriptPayload struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// AudioPayload is the body of ai_audio. Audio is base64-encoded.
type AudioPayload struct {
	Audio string `json:"audio"`
	Text  string `json:"text,omitempty"`
}

// ErrorPayload is the body of error, connect_error, and disconnected.
type ErrorPayload struct {
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Text returns the best available description from an error payload.
func (p ErrorPayload) Text() string {
	if p.Message != "" {
		return p.Message
	}
	if p.Reason != "" {
		return p.Reason
	}
	return "unknown"
}

// DisconnectPayload is the body of disconnected meta events.
type DisconnectPayload struct {
	Reason string `json:"reason"`
}

// MarshalPayload is a convenience for building outbound events.
// It panics only on unmarshalable values, which event payloads never are.
func MarshalPayload(name string, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		panic("call: marshal event payload: " + err.Error())
	}
	return Event{Name: name, Data: data}
}
