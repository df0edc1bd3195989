// Package scroll owns the time-driven forward motion of the teleprompter.
// The Engine advances a current-line pointer from a periodic tick,
// independent of whether voice tracking is connecting, and accepts
// correction signals (pause, resume, pace adjustment, hard snap) derived
// from voice evidence. The Controller composes the Engine with a script
// matcher into the single surface the session layer drives.
//
// Every Engine method takes the current time explicitly, so the control
// law is exercised in tests with a synthetic clock instead of sleeps. The
// Driver types adapt a real wall clock onto that surface.
//
// Engine and Controller are confined to one goroutine (the session run
// loop) and are not safe for concurrent use.
package scroll

import (
	"log/slog"
	"math"
	"time"

	"github.com/tightfive/stagetrack/internal/rolling"
	"github.com/tightfive/stagetrack/internal/script"
)

// Rolling-window capacities for the control law.
const (
	confidenceWindowCap = 20
	transitionWindowCap = 10
)

// State is the engine's scrolling state.
type State int

const (
	// Stopped: no line motion, the timing loop is torn down.
	Stopped State = iota

	// Scrolling: the line pointer advances on ticks.
	Scrolling

	// Paused: ticks still run for metrics, the pointer holds.
	Paused
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Scrolling:
		return "scrolling"
	case Paused:
		return "paused"
	}
	return "unknown"
}

// Config holds the scroll control-law tuning. All thresholds were tuned
// by feel against live sets in the reference app; they are surfaced as
// named fields so a deployment can retune without a rebuild. Zero fields
// take the defaults from DefaultConfig.
type Config struct {
	// BaseSecondsPerLine is the unadapted pace. When zero it is derived
	// from the script at the default words-per-minute rate.
	BaseSecondsPerLine float64

	// MinPaceFactor and MaxPaceFactor bound the adaptive pace as
	// multiples of the base. Defaults 0.5 and 2.0; the adaptive pace is
	// re-clamped into this band after every adjustment.
	MinPaceFactor float64
	MaxPaceFactor float64

	// PauseAfterSilence is how long the engine scrolls without a voice
	// match before auto-pausing. Default 1.5s.
	PauseAfterSilence time.Duration

	// HardStopAfterSilence is how long total silence persists before the
	// engine stops outright instead of scrolling through a performer who
	// has left the script. Default 10s.
	HardStopAfterSilence time.Duration

	// HesitationLeadMin/Max bracket the "soon silent" window: when the
	// last voice match is older than HardStopAfterSilence−HesitationLeadMax
	// but younger than HardStopAfterSilence−HesitationLeadMin, each line
	// advance injects HesitationOffset of extra dwell. Defaults 1.5s, 5s,
	// 0.2s.
	HesitationLeadMin time.Duration
	HesitationLeadMax time.Duration
	HesitationOffset  float64

	// LowConfidencePause pauses scrolling when a voice match reports
	// confidence below this value. Default 0.4.
	LowConfidencePause float64

	// ResumeConfidence resumes a paused engine when a voice match
	// reports at least this confidence. Default 0.5.
	ResumeConfidence float64

	// DriftSmoothing is the weight of the newest drift sample in the
	// exponential drift average. Default 0.2.
	DriftSmoothing float64

	// DriftAdaptThreshold is the average drift magnitude, in lines,
	// above which the pace adapts. Default 0.5.
	DriftAdaptThreshold float64

	// AdaptationRate is the fraction by which the pace moves per
	// adaptation step. The source material quotes 20–25% in different
	// places; this single knob stands in for both. Default 0.22.
	AdaptationRate float64

	// MaxDriftLines and CorrectionConfidence gate hard corrections: when
	// drift magnitude exceeds MaxDriftLines and confidence exceeds
	// CorrectionConfidence, the pointer snaps to the voice-reported
	// line. Defaults 2 and 0.7.
	MaxDriftLines        float64
	CorrectionConfidence float64

	// PredictiveMinSamples is how many line-transition durations must be
	// observed before predictive pacing engages. Default 5.
	PredictiveMinSamples int

	// PredictiveBlend is the weight of the learned per-session pace when
	// blending against the base pace. Default 0.70.
	PredictiveBlend float64

	// PredictiveDelta is the minimum difference, in seconds, between the
	// blended pace and the current pace before the current pace is
	// replaced. Default 0.3.
	PredictiveDelta float64
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		MinPaceFactor:        0.5,
		MaxPaceFactor:        2.0,
		PauseAfterSilence:    1500 * time.Millisecond,
		HardStopAfterSilence: 10 * time.Second,
		HesitationLeadMin:    1500 * time.Millisecond,
		HesitationLeadMax:    5 * time.Second,
		HesitationOffset:     0.2,
		LowConfidencePause:   0.4,
		ResumeConfidence:     0.5,
		DriftSmoothing:       0.2,
		DriftAdaptThreshold:  0.5,
		AdaptationRate:       0.22,
		MaxDriftLines:        2,
		CorrectionConfidence: 0.7,
		PredictiveMinSamples: 5,
		PredictiveBlend:      0.70,
		PredictiveDelta:      0.3,
	}
}

func (c *Config) applyDefaults(scr *script.Script) {
	def := DefaultConfig()
	if c.BaseSecondsPerLine <= 0 {
		c.BaseSecondsPerLine = scr.BaseSecondsPerLine(0)
	}
	if c.MinPaceFactor <= 0 {
		c.MinPaceFactor = def.MinPaceFactor
	}
	if c.MaxPaceFactor <= 0 {
		c.MaxPaceFactor = def.MaxPaceFactor
	}
	if c.PauseAfterSilence <= 0 {
		c.PauseAfterSilence = def.PauseAfterSilence
	}
	if c.HardStopAfterSilence <= 0 {
		c.HardStopAfterSilence = def.HardStopAfterSilence
	}
	if c.HesitationLeadMin <= 0 {
		c.HesitationLeadMin = def.HesitationLeadMin
	}
	if c.HesitationLeadMax <= 0 {
		c.HesitationLeadMax = def.HesitationLeadMax
	}
	if c.HesitationOffset <= 0 {
		c.HesitationOffset = def.HesitationOffset
	}
	if c.LowConfidencePause <= 0 {
		c.LowConfidencePause = def.LowConfidencePause
	}
	if c.ResumeConfidence <= 0 {
		c.ResumeConfidence = def.ResumeConfidence
	}
	if c.DriftSmoothing <= 0 {
		c.DriftSmoothing = def.DriftSmoothing
	}
	if c.DriftAdaptThreshold <= 0 {
		c.DriftAdaptThreshold = def.DriftAdaptThreshold
	}
	if c.AdaptationRate <= 0 {
		c.AdaptationRate = def.AdaptationRate
	}
	if c.MaxDriftLines <= 0 {
		c.MaxDriftLines = def.MaxDriftLines
	}
	if c.CorrectionConfidence <= 0 {
		c.CorrectionConfidence = def.CorrectionConfidence
	}
	if c.PredictiveMinSamples <= 0 {
		c.PredictiveMinSamples = def.PredictiveMinSamples
	}
	if c.PredictiveBlend <= 0 {
		c.PredictiveBlend = def.PredictiveBlend
	}
	if c.PredictiveDelta <= 0 {
		c.PredictiveDelta = def.PredictiveDelta
	}
}

// Metrics is a read-only snapshot of engine internals for the UI and the
// metrics pipeline.
type Metrics struct {
	// FPS is the tick rate measured over the last one-second window.
	FPS float64

	// SecondsPerLine is the current adaptive pace.
	SecondsPerLine float64

	// AvgDrift is the exponentially smoothed voice-vs-clock drift, in
	// lines.
	AvgDrift float64

	// Corrections counts hard corrections this session.
	Corrections int

	// Predictive reports whether predictive pacing is engaged.
	Predictive bool
}

// Engine is the scroll clock. See the package comment for the threading
// contract.
type Engine struct {
	scr      *script.Script
	cfg      Config
	listener Listener

	state          State
	current        int
	accumulator    float64
	secondsPerLine float64

	lastTick      time.Time
	lastTickValid bool

	// Silence tracking engages only after the first voice evidence; with
	// no recognizer attached the engine stays purely time-driven.
	lastVoice      time.Time
	lastVoiceValid bool
	silencePaused  bool

	lastAdvance      time.Time
	lastAdvanceValid bool

	confidence  *rolling.Window
	transitions *rolling.Window
	driftAvg    float64
	corrections int
	predictive  bool

	fpsWindowStart time.Time
	fpsFrames      int
	fps            float64
}

// NewEngine creates a stopped Engine over scr. A nil listener is
// replaced with a no-op.
func NewEngine(scr *script.Script, cfg Config, listener Listener) *Engine {
	cfg.applyDefaults(scr)
	if listener == nil {
		listener = NopListener{}
	}
	return &Engine{
		scr:            scr,
		cfg:            cfg,
		listener:       listener,
		secondsPerLine: cfg.BaseSecondsPerLine,
		confidence:     rolling.New(confidenceWindowCap),
		transitions:    rolling.New(transitionWindowCap),
	}
}

// Start transitions to Scrolling and resets the tick clock and
// accumulator. Starting an already scrolling engine restarts its clock.
func (e *Engine) Start(now time.Time) {
	e.state = Scrolling
	e.accumulator = 0
	e.lastTick = now
	e.lastTickValid = true
	e.lastAdvance = now
	e.lastAdvanceValid = true
	e.lastVoiceValid = false
	e.silencePaused = false
}

// Stop transitions to Stopped and zeroes the accumulator. Safe to call
// redundantly; a stopped engine ignores ticks beyond FPS bookkeeping.
func (e *Engine) Stop() {
	e.state = Stopped
	e.accumulator = 0
	e.lastTickValid = false
}

// Pause holds the line pointer without tearing down timing. Manual
// pauses do not emit the auto-pause event.
func (e *Engine) Pause() {
	if e.state == Scrolling {
		e.state = Paused
	}
}

// Resume returns a paused engine to Scrolling, re-basing the tick clock
// so paused time is not attributed as elapsed.
func (e *Engine) Resume(now time.Time) {
	if e.state == Paused {
		e.state = Scrolling
		e.lastTick = now
		e.lastTickValid = true
	}
}

// Tick advances the clock. Call at the driver frequency (~60 Hz).
func (e *Engine) Tick(now time.Time) {
	e.trackFPS(now)
	if e.state == Stopped {
		return
	}

	// The hard stop applies to paused sets too: a performer who stays
	// silent past the long threshold has left the script for good.
	if e.lastVoiceValid && now.Sub(e.lastVoice) > e.cfg.HardStopAfterSilence {
		slog.Info("scroll: hard stop after prolonged silence",
			"line", e.current,
			"silent_for", now.Sub(e.lastVoice),
		)
		e.Stop()
		return
	}

	if e.state != Scrolling {
		// Keep the wall-clock reference current so resuming does not
		// attribute the paused interval as elapsed scroll time.
		e.lastTick = now
		return
	}

	if !e.lastTickValid {
		e.lastTick = now
		e.lastTickValid = true
		return
	}
	delta := now.Sub(e.lastTick)
	e.lastTick = now

	// One auto-pause per silence episode: a manual resume during the
	// same episode keeps scrolling (with hesitation) instead of being
	// re-paused on the next tick.
	if e.lastVoiceValid && !e.silencePaused && now.Sub(e.lastVoice) > e.cfg.PauseAfterSilence {
		e.silencePaused = true
		e.autoPause()
		return
	}

	e.accumulator += delta.Seconds()
	for e.accumulator >= e.secondsPerLine {
		// Subtract rather than reset: the remainder carries into the
		// next line so pacing stays smooth across advances.
		e.accumulator -= e.secondsPerLine

		if e.current >= e.scr.Len()-1 {
			e.Stop()
			return
		}
		e.advance(now)
	}
}

// advance moves the pointer one line and updates the pacing estimator.
func (e *Engine) advance(now time.Time) {
	e.current++

	// Approaching the silence hard stop: hesitate a little on each
	// advance instead of marching confidently into dead air.
	if e.lastVoiceValid {
		silentFor := now.Sub(e.lastVoice)
		soonFrom := e.cfg.HardStopAfterSilence - e.cfg.HesitationLeadMax
		soonTo := e.cfg.HardStopAfterSilence - e.cfg.HesitationLeadMin
		if silentFor >= soonFrom && silentFor <= soonTo {
			e.accumulator -= e.cfg.HesitationOffset
		}
	}

	if e.lastAdvanceValid {
		e.transitions.Push(now.Sub(e.lastAdvance).Seconds())
		e.updatePredictivePace()
	}
	e.lastAdvance = now
	e.lastAdvanceValid = true
}

// updatePredictivePace blends the learned mean transition time with the
// base pace once enough samples exist. The predictive flag engages at the
// sample threshold; the pace itself only moves when the blend differs
// from the current pace by more than the configured delta.
func (e *Engine) updatePredictivePace() {
	if e.transitions.Len() < e.cfg.PredictiveMinSamples {
		return
	}
	if !e.predictive {
		e.predictive = true
		e.listener.OnPredictiveMode(true)
	}

	learned := e.transitions.Mean()
	blended := e.cfg.PredictiveBlend*learned + (1-e.cfg.PredictiveBlend)*e.cfg.BaseSecondsPerLine
	if math.Abs(blended-e.secondsPerLine) > e.cfg.PredictiveDelta {
		e.secondsPerLine = e.clampPace(blended)
	}
}

// IngestVoiceMatch reconciles the scroll clock with voice evidence. It
// returns true when a hard correction snapped the pointer to the
// voice-reported line (the caller uses this for haptic feedback).
func (e *Engine) IngestVoiceMatch(now time.Time, lineIndex int, conf float64) bool {
	lineIndex = e.scr.Clamp(lineIndex)
	conf = clamp01(conf)
	e.confidence.Push(conf)

	// Silence gap since the previous match.
	if e.lastVoiceValid && e.state == Scrolling && !e.silencePaused && now.Sub(e.lastVoice) > e.cfg.PauseAfterSilence {
		e.autoPause()
	}
	e.lastVoice = now
	e.lastVoiceValid = true
	e.silencePaused = false

	if e.state == Scrolling && conf < e.cfg.LowConfidencePause {
		e.autoPause()
	} else if e.state == Paused && conf >= e.cfg.ResumeConfidence {
		e.autoResume(now)
	}

	drift := float64(lineIndex - e.current)
	e.driftAvg = (1-e.cfg.DriftSmoothing)*e.driftAvg + e.cfg.DriftSmoothing*drift

	if math.Abs(drift) > e.cfg.MaxDriftLines && conf > e.cfg.CorrectionConfidence {
		from := e.current
		e.current = lineIndex
		e.accumulator = 0
		e.driftAvg = 0
		e.corrections++
		e.listener.OnHardCorrection(from, lineIndex)
		return true
	}

	if math.Abs(e.driftAvg) > e.cfg.DriftAdaptThreshold {
		if e.driftAvg > 0 {
			// Voice is consistently ahead of the clock: speed up.
			e.secondsPerLine *= 1 - e.cfg.AdaptationRate
		} else {
			e.secondsPerLine *= 1 + e.cfg.AdaptationRate
		}
		e.secondsPerLine = e.clampPace(e.secondsPerLine)
	}
	return false
}

// SignalNoVoiceActivity reports that the recognizer affirmatively
// returned nothing. Treated as maximally stale voice evidence: a
// scrolling engine pauses immediately, and the voice clock is backdated
// rather than refreshed so the hard-stop countdown keeps running.
func (e *Engine) SignalNoVoiceActivity(now time.Time) {
	stale := now.Add(-e.cfg.PauseAfterSilence)
	if !e.lastVoiceValid || e.lastVoice.After(stale) {
		e.lastVoice = stale
	}
	e.lastVoiceValid = true
	if e.state == Scrolling && !e.silencePaused {
		e.silencePaused = true
		e.autoPause()
	}
}

// NoteVoiceActivity refreshes the silence clock without carrying
// position evidence. Spoken anchor phrases route here: they bypass the
// matcher entirely, but the performer saying one is still proof they
// are talking.
func (e *Engine) NoteVoiceActivity(now time.Time) {
	e.lastVoice = now
	e.lastVoiceValid = true
	e.silencePaused = false
}

// JumpToBlock snaps to the line bound to blockID, bypassing drift and
// correction logic. Unknown IDs are ignored.
func (e *Engine) JumpToBlock(blockID string) bool {
	idx, ok := e.scr.IndexOfBlock(blockID)
	if !ok {
		return false
	}
	e.Reset(idx)
	return true
}

// Reset repositions to index (clamped), clearing the accumulator and
// drift state. The scrolling state is preserved.
func (e *Engine) Reset(index int) {
	e.current = e.scr.Clamp(index)
	e.accumulator = 0
	e.driftAvg = 0
}

// CurrentLine returns the scroll pointer's line index.
func (e *Engine) CurrentLine() int { return e.current }

// Confidence returns the mean of the rolling voice-confidence window.
func (e *Engine) Confidence() float64 { return e.confidence.Mean() }

// State returns the current scrolling state.
func (e *Engine) State() State { return e.state }

// IsScrolling reports whether the pointer is advancing.
func (e *Engine) IsScrolling() bool { return e.state == Scrolling }

// Snapshot returns the current engine metrics.
func (e *Engine) Snapshot() Metrics {
	return Metrics{
		FPS:            e.fps,
		SecondsPerLine: e.secondsPerLine,
		AvgDrift:       e.driftAvg,
		Corrections:    e.corrections,
		Predictive:     e.predictive,
	}
}

func (e *Engine) autoPause() {
	if e.state != Scrolling {
		return
	}
	e.state = Paused
	e.listener.OnAutoPause(e.current)
}

func (e *Engine) autoResume(now time.Time) {
	if e.state != Paused {
		return
	}
	e.state = Scrolling
	e.lastTick = now
	e.lastTickValid = true
	e.listener.OnAutoResume(e.current)
}

func (e *Engine) trackFPS(now time.Time) {
	if e.fpsWindowStart.IsZero() {
		e.fpsWindowStart = now
	}
	e.fpsFrames++
	if elapsed := now.Sub(e.fpsWindowStart); elapsed >= time.Second {
		e.fps = float64(e.fpsFrames) / elapsed.Seconds()
		e.fpsFrames = 0
		e.fpsWindowStart = now
	}
}

// clampPace bounds a pace to [MinPaceFactor, MaxPaceFactor] times base.
func (e *Engine) clampPace(pace float64) float64 {
	lo := e.cfg.MinPaceFactor * e.cfg.BaseSecondsPerLine
	hi := e.cfg.MaxPaceFactor * e.cfg.BaseSecondsPerLine
	if pace < lo {
		return lo
	}
	if pace > hi {
		return hi
	}
	return pace
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
