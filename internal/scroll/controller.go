package scroll

import (
	"log/slog"
	"strings"
	"time"

	"github.com/tightfive/stagetrack/internal/match"
	"github.com/tightfive/stagetrack/internal/script"
)

// Controller composes the script matcher and the scroll engine into the
// one surface the session loop drives: transcript fragments go in, the
// matcher resolves a position, the engine reconciles its clock against
// it. Manual navigation goes through the controller so matcher and
// engine never disagree about the current line.
//
// Like the Engine, a Controller is confined to the session goroutine.
type Controller struct {
	scr      *script.Script
	matcher  *match.Matcher
	engine   *Engine
	listener Listener
}

// NewController wires a matcher and engine over scr. A nil listener is
// replaced with a no-op; matchOpts tune the matcher.
func NewController(scr *script.Script, cfg Config, listener Listener, matchOpts ...match.Option) *Controller {
	if listener == nil {
		listener = NopListener{}
	}
	return &Controller{
		scr:      scr,
		matcher:  match.New(scr, matchOpts...),
		engine:   NewEngine(scr, cfg, listener),
		listener: listener,
	}
}

// Start begins scrolling from the current position.
func (c *Controller) Start(now time.Time) { c.engine.Start(now) }

// Stop halts scrolling.
func (c *Controller) Stop() { c.engine.Stop() }

// Pause holds the pointer without emitting an auto-pause event.
func (c *Controller) Pause() { c.engine.Pause() }

// Resume continues a manually paused set.
func (c *Controller) Resume(now time.Time) { c.engine.Resume(now) }

// Tick advances the scroll clock.
func (c *Controller) Tick(now time.Time) { c.engine.Tick(now) }

// Ingest feeds one transcript fragment through anchor detection, position
// matching, and clock reconciliation. It returns true when the fragment
// caused a hard correction or an anchor jump.
func (c *Controller) Ingest(now time.Time, fragment string) bool {
	if strings.TrimSpace(fragment) == "" {
		c.engine.SignalNoVoiceActivity(now)
		return false
	}

	// Anchor phrases trump positional matching: the performer saying the
	// marked opener of a block is an explicit navigation cue. It is also
	// voice activity, so the silence clock refreshes with the jump.
	if blockID, ok := c.matcher.DetectAnchor(fragment); ok {
		if idx, jumped := c.jump(blockID); jumped {
			c.engine.NoteVoiceActivity(now)
			slog.Debug("anchor jump", "block", blockID, "line", idx)
			c.listener.OnAnchorJump(blockID, idx)
			return true
		}
	}

	idx, conf := c.matcher.IngestTranscript(fragment)
	return c.engine.IngestVoiceMatch(now, idx, conf)
}

// JumpToBlock repositions matcher and engine to the named block.
func (c *Controller) JumpToBlock(blockID string) bool {
	_, ok := c.jump(blockID)
	return ok
}

func (c *Controller) jump(blockID string) (int, bool) {
	idx, ok := c.scr.IndexOfBlock(blockID)
	if !ok {
		return 0, false
	}
	c.matcher.Reset(idx)
	c.engine.Reset(idx)
	return idx, true
}

// Reset repositions matcher and engine to index, clamped.
func (c *Controller) Reset(index int) {
	idx := c.scr.Clamp(index)
	c.matcher.Reset(idx)
	c.engine.Reset(idx)
}

// JumpToNext advances one line manually.
func (c *Controller) JumpToNext() { c.Reset(c.engine.CurrentLine() + 1) }

// JumpToPrevious steps one line back manually.
func (c *Controller) JumpToPrevious() { c.Reset(c.engine.CurrentLine() - 1) }

// CurrentLine returns the engine's line pointer.
func (c *Controller) CurrentLine() int { return c.engine.CurrentLine() }

// Confidence returns the rolling mean voice-match confidence.
func (c *Controller) Confidence() float64 { return c.engine.Confidence() }

// MatchConfidence returns the confidence of the most recent fragment
// match, before the rolling window smooths it. An off-script run shows
// up here immediately while Confidence drains over twenty samples.
func (c *Controller) MatchConfidence() float64 { return c.matcher.CurrentConfidence() }

// State returns the scrolling state.
func (c *Controller) State() State { return c.engine.State() }

// IsScrolling reports whether the pointer is advancing.
func (c *Controller) IsScrolling() bool { return c.engine.IsScrolling() }

// Snapshot returns the engine metrics.
func (c *Controller) Snapshot() Metrics { return c.engine.Snapshot() }
