package scroll

// Listener receives the control-law events the session layer forwards to
// the connected client (haptics, UI badges). Callbacks fire synchronously
// on the session loop and must not block.
type Listener interface {
	// OnAutoPause fires when silence or low confidence pauses scrolling.
	OnAutoPause(lineIndex int)

	// OnAutoResume fires when confident voice resumes scrolling.
	OnAutoResume(lineIndex int)

	// OnHardCorrection fires when the pointer snaps to the voice-reported
	// line.
	OnHardCorrection(from, to int)

	// OnPredictiveMode fires once when per-session learned pacing engages.
	OnPredictiveMode(engaged bool)

	// OnAnchorJump fires when a spoken anchor phrase repositions the set.
	OnAnchorJump(blockID string, lineIndex int)
}

// NopListener discards all events.
type NopListener struct{}

func (NopListener) OnAutoPause(int)           {}
func (NopListener) OnAutoResume(int)          {}
func (NopListener) OnHardCorrection(int, int) {}
func (NopListener) OnPredictiveMode(bool)     {}
func (NopListener) OnAnchorJump(string, int)  {}
