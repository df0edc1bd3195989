package stage

// EventKind names a server-to-client notification.
type EventKind string

const (
	// EventPosition reports the current line pointer, scroll state, and
	// rolling match confidence. Sent whenever any of the three changes.
	EventPosition EventKind = "position"

	// EventAutoPause reports that silence or low confidence paused the set.
	EventAutoPause EventKind = "auto_pause"

	// EventAutoResume reports that confident voice resumed the set.
	EventAutoResume EventKind = "auto_resume"

	// EventCorrection reports a hard snap of the pointer to the
	// voice-reported line.
	EventCorrection EventKind = "correction"

	// EventPredictive reports that learned per-session pacing engaged.
	EventPredictive EventKind = "predictive"

	// EventAnchorJump reports a spoken-anchor reposition.
	EventAnchorJump EventKind = "anchor_jump"

	// EventEmphasis reports an emphasised audio buffer, with its energy tier.
	EventEmphasis EventKind = "emphasis"

	// EventQuestion reports rising intonation at a phrase end.
	EventQuestion EventKind = "question"

	// EventStopped reports that the set ended, either by reaching the last
	// line or by the prolonged-silence hard stop.
	EventStopped EventKind = "stopped"
)

// Event is one notification pushed to the connected stage client. Unused
// fields are omitted from the JSON encoding; which fields are meaningful
// depends on Kind.
type Event struct {
	Kind EventKind `json:"type"`

	// Line is the current (or target) line index.
	Line int `json:"line"`

	// FromLine is the pre-correction line index for EventCorrection.
	FromLine int `json:"from_line,omitempty"`

	// BlockID names the jump target for EventAnchorJump.
	BlockID string `json:"block_id,omitempty"`

	// State is the scroll state name for EventPosition.
	State string `json:"state,omitempty"`

	// Confidence is the rolling match confidence for EventPosition.
	Confidence float64 `json:"confidence,omitempty"`

	// Engaged reports the predictive-pacing flag for EventPredictive.
	Engaged bool `json:"engaged,omitempty"`

	// Energy is the loudness tier name for EventEmphasis.
	Energy string `json:"energy,omitempty"`

	// Reason distinguishes silence from low-confidence auto-pauses.
	Reason string `json:"reason,omitempty"`
}

// EventSink receives stage events. The stage invokes it from the session
// run loop, one event at a time; implementations must not block for long
// or the scroll clock stalls behind them.
type EventSink func(Event)
