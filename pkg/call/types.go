package call

import "time"

// Speaker identifies which side of the call produced an utterance.
type Speaker string

const (
	// SpeakerOperator is the human operator practising the pitch.
	SpeakerOperator Speaker = "operator"

	// SpeakerAgent is the remote conversational agent playing the prospect.
	SpeakerAgent Speaker = "agent"
)

// String returns the wire name of the speaker.
func (s Speaker) String() string { return string(s) }

// Persona is the immutable configuration of the prospect the agent plays.
// It is supplied before session creation and never changes afterwards.
type Persona struct {
	Name        string `json:"name" yaml:"name"`
	Role        string `json:"role" yaml:"role"`
	Company     string `json:"company" yaml:"company"`
	Personality string `json:"personality,omitempty" yaml:"personality"`
	Objective   string `json:"objective,omitempty" yaml:"objective"`
	Difficulty  string `json:"difficulty,omitempty" yaml:"difficulty"`
	Background  string `json:"background,omitempty" yaml:"background"`
}

// TranscriptEntry is a single speaker-tagged utterance in the call
// transcript. Entries are append-only: once recorded they are never
// mutated or removed, and Sequence reflects display and export order.
type TranscriptEntry struct {
	// Speaker tagged the utterance.
	Speaker Speaker

	// Text is the utterance as transcribed or as spoken by the agent.
	Text string

	// Sequence is assigned by the accumulator: monotonically increasing
	// and gapless, starting at 0.
	Sequence uint64

	// Timestamp is when the entry was appended.
	Timestamp time.Time
}

// AudioSegment is one discrete unit of synthesized agent speech. The
// payload is opaque encoded audio (the backend decides the codec); the
// playback queue consumes each segment exactly once and does not retain
// it after playback completes, errors, or times out.
type AudioSegment struct {
	// Payload is the encoded audio bytes, already base64-decoded.
	Payload []byte

	// Text is the agent utterance this segment voices, when the backend
	// provides it. Informational only.
	Text string

	// Sequence tags arrival order. Assigned by the connection manager.
	Sequence uint64
}

// ConnectionState describes the realtime channel lifecycle.
type ConnectionState int

const (
	// ConnectionConnecting is the initial dial phase.
	ConnectionConnecting ConnectionState = iota

	// ConnectionConnected means the channel is open and usable.
	ConnectionConnected

	// ConnectionReconnecting means the channel dropped unexpectedly and
	// the transport is retrying within its bounded policy.
	ConnectionReconnecting

	// ConnectionDisconnected means the channel was closed deliberately.
	ConnectionDisconnected

	// ConnectionFailed means the transport exhausted its reconnect
	// attempts; the session is blocked until the operator retries.
	ConnectionFailed
)

// String returns the human-readable name of the connection state.
func (s ConnectionState) String() string {
	switch s {
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionReconnecting:
		return "reconnecting"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CaptureState describes the push-to-talk speech capture machine.
type CaptureState int

const (
	// CaptureIdle means no capture session is active.
	CaptureIdle CaptureState = iota

	// CaptureListening means exactly one capture session is active.
	CaptureListening

	// CaptureError is a transient state entered on engine failure; the
	// machine resets to [CaptureIdle] immediately after reporting.
	CaptureError
)

// String returns the human-readable name of the capture state.
func (s CaptureState) String() string {
	switch s {
	case CaptureIdle:
		return "idle"
	case CaptureListening:
		return "listening"
	case CaptureError:
		return "error"
	default:
		return "unknown"
	}
}

// PlaybackState is derived from playback queue occupancy.
type PlaybackState int

const (
	// PlaybackEmpty means the queue is empty and nothing is playing.
	PlaybackEmpty PlaybackState = iota

	// PlaybackPlaying means a consume loop is active.
	PlaybackPlaying
)

// String returns the human-readable name of the playback state.
func (s PlaybackState) String() string {
	switch s {
	case PlaybackEmpty:
		return "empty"
	case PlaybackPlaying:
		return "playing"
	default:
		return "unknown"
	}
}
