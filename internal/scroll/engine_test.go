package scroll_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/tightfive/stagetrack/internal/script"
	"github.com/tightfive/stagetrack/internal/scroll"
)

var t0 = time.Date(2026, time.March, 14, 21, 0, 0, 0, time.UTC)

// at returns a time s seconds into the set.
func at(s float64) time.Time {
	return t0.Add(time.Duration(s * float64(time.Second)))
}

// recorder captures control-law events for assertions.
type recorder struct {
	pauses      []int
	resumes     []int
	corrections [][2]int
	predictive  []bool
	anchors     []string
}

func (r *recorder) OnAutoPause(line int)            { r.pauses = append(r.pauses, line) }
func (r *recorder) OnAutoResume(line int)           { r.resumes = append(r.resumes, line) }
func (r *recorder) OnHardCorrection(from, to int)   { r.corrections = append(r.corrections, [2]int{from, to}) }
func (r *recorder) OnPredictiveMode(engaged bool)   { r.predictive = append(r.predictive, engaged) }
func (r *recorder) OnAnchorJump(id string, _ int)   { r.anchors = append(r.anchors, id) }

func makeScript(t *testing.T, n int) *script.Script {
	t.Helper()
	lines := make([]script.Line, n)
	for i := range lines {
		lines[i] = script.Line{Text: fmt.Sprintf("bit number %d about something", i)}
	}
	lines[n-1].ID = "closer"
	s, err := script.New("test set", lines)
	if err != nil {
		t.Fatalf("script.New: %v", err)
	}
	return s
}

// twoSecondPace is the fixed pace used across these tests.
func newEngine(t *testing.T, n int, rec *recorder) *scroll.Engine {
	t.Helper()
	return scroll.NewEngine(makeScript(t, n), scroll.Config{BaseSecondsPerLine: 2.0}, rec)
}

func TestTick_CarriesRemainderAcrossAdvances(t *testing.T) {
	t.Parallel()

	e := newEngine(t, 10, nil)
	e.Start(t0)

	// A late tick overshoots one boundary by 1.1s; the remainder must
	// carry so the next boundary lands 2.0s after the previous one, not
	// 2.0s after the late tick.
	e.Tick(at(3.1))
	if e.CurrentLine() != 1 {
		t.Fatalf("CurrentLine() after 3.1s = %d, want 1", e.CurrentLine())
	}
	e.Tick(at(4.0))
	if e.CurrentLine() != 2 {
		t.Errorf("CurrentLine() after 4.0s = %d, want 2 (remainder carried)", e.CurrentLine())
	}
}

func TestStopIsIdempotentAndRestartResetsAccumulator(t *testing.T) {
	t.Parallel()

	e := newEngine(t, 10, nil)
	e.Start(t0)
	e.Tick(at(1.5))

	e.Stop()
	e.Stop()
	if e.State() != scroll.Stopped {
		t.Fatalf("State() = %v, want stopped", e.State())
	}
	if e.CurrentLine() != 0 {
		t.Fatalf("CurrentLine() = %d, want 0", e.CurrentLine())
	}

	// Restart: the 1.5s banked before the stop must be gone.
	e.Start(at(10))
	e.Tick(at(11))
	if e.CurrentLine() != 0 {
		t.Errorf("CurrentLine() 1s after restart = %d, want 0", e.CurrentLine())
	}
	e.Tick(at(12))
	if e.CurrentLine() != 1 {
		t.Errorf("CurrentLine() 2s after restart = %d, want 1", e.CurrentLine())
	}
}

func TestIngest_LowConfidencePausesUntilConfidentResume(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	e := newEngine(t, 10, rec)
	e.Start(t0)

	e.IngestVoiceMatch(at(0.5), 0, 0.3)
	if e.State() != scroll.Paused {
		t.Fatalf("State() after confidence 0.3 = %v, want paused", e.State())
	}
	e.Tick(at(0.6))
	if e.State() != scroll.Paused || e.CurrentLine() != 0 {
		t.Fatalf("tick while paused: state %v line %d, want paused/0", e.State(), e.CurrentLine())
	}

	// 0.45 sits in the hysteresis band: not enough to resume.
	e.IngestVoiceMatch(at(0.7), 0, 0.45)
	if e.State() != scroll.Paused {
		t.Fatalf("State() after confidence 0.45 = %v, want still paused", e.State())
	}

	e.IngestVoiceMatch(at(0.9), 0, 0.55)
	if e.State() != scroll.Scrolling {
		t.Fatalf("State() after confidence 0.55 = %v, want scrolling", e.State())
	}

	if len(rec.pauses) != 1 || len(rec.resumes) != 1 {
		t.Errorf("events: %d pauses %d resumes, want 1 and 1", len(rec.pauses), len(rec.resumes))
	}
}

func TestIngest_HardCorrectionSnapsPointer(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	e := newEngine(t, 10, rec)
	e.Start(t0)

	// Drift 2 is at, not beyond, the limit.
	if e.IngestVoiceMatch(at(0.1), 2, 0.9) {
		t.Fatal("IngestVoiceMatch(drift 2) = true, want false")
	}
	e.Reset(0)

	// Beyond the limit but below the confidence gate.
	if e.IngestVoiceMatch(at(0.2), 3, 0.6) {
		t.Fatal("IngestVoiceMatch(drift 3, conf 0.6) = true, want false")
	}
	if e.CurrentLine() != 0 {
		t.Fatalf("CurrentLine() = %d, want held at 0", e.CurrentLine())
	}

	// Both gates satisfied: snap.
	if !e.IngestVoiceMatch(at(0.3), 3, 0.8) {
		t.Fatal("IngestVoiceMatch(drift 3, conf 0.8) = false, want true")
	}
	if e.CurrentLine() != 3 {
		t.Errorf("CurrentLine() after correction = %d, want 3", e.CurrentLine())
	}
	if got := e.Snapshot().Corrections; got != 1 {
		t.Errorf("Snapshot().Corrections = %d, want 1", got)
	}
	if len(rec.corrections) != 1 || rec.corrections[0] != [2]int{0, 3} {
		t.Errorf("correction events = %v, want [[0 3]]", rec.corrections)
	}
}

func TestIngest_SustainedDriftAdaptsPaceWithinClamp(t *testing.T) {
	t.Parallel()

	e := newEngine(t, 10, nil)
	e.Start(t0)

	// Voice consistently one line ahead: pace must speed up.
	for i := 0; i < 6; i++ {
		e.IngestVoiceMatch(at(0.1*float64(i)), 1, 0.9)
	}
	fast := e.Snapshot().SecondsPerLine
	if fast >= 2.0 {
		t.Errorf("SecondsPerLine after sustained ahead drift = %v, want < 2.0", fast)
	}

	// Voice consistently behind: pace slows until the clamp ceiling.
	e.Reset(5)
	for i := 0; i < 40; i++ {
		e.IngestVoiceMatch(at(1+0.1*float64(i)), 4, 0.9)
		spl := e.Snapshot().SecondsPerLine
		if spl < 1.0-1e-9 || spl > 4.0+1e-9 {
			t.Fatalf("ingest %d: SecondsPerLine = %v outside clamp [1.0, 4.0]", i, spl)
		}
	}
	if got := e.Snapshot().SecondsPerLine; math.Abs(got-4.0) > 1e-9 {
		t.Errorf("SecondsPerLine after sustained behind drift = %v, want clamped at 4.0", got)
	}
}

// Silence while scrolling pauses exactly once, without any ingest calls.
func TestTick_SilencePausesExactlyOnce(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	e := newEngine(t, 10, rec)
	e.Start(t0)
	e.IngestVoiceMatch(at(0.1), 0, 0.9)

	e.Tick(at(1.0))
	if e.State() != scroll.Scrolling {
		t.Fatalf("State() at 0.9s silence = %v, want scrolling", e.State())
	}

	for _, s := range []float64{2.1, 2.2, 2.3, 2.4} {
		e.Tick(at(s))
	}
	if e.State() != scroll.Paused {
		t.Fatalf("State() after 2s silence = %v, want paused", e.State())
	}
	if len(rec.pauses) != 1 {
		t.Errorf("pause events = %d, want exactly 1", len(rec.pauses))
	}
	if e.CurrentLine() != 0 {
		t.Errorf("CurrentLine() = %d, want held at 0", e.CurrentLine())
	}
}

// With no voice evidence at all the engine is purely time-driven and
// never silence-pauses.
func TestTick_NoVoiceEvidenceMeansTimeDriven(t *testing.T) {
	t.Parallel()

	e := newEngine(t, 10, nil)
	e.Start(t0)
	for s := 0.5; s <= 6.0; s += 0.5 {
		e.Tick(at(s))
	}
	if e.State() != scroll.Scrolling {
		t.Fatalf("State() = %v, want scrolling", e.State())
	}
	if e.CurrentLine() != 3 {
		t.Errorf("CurrentLine() after 6s = %d, want 3", e.CurrentLine())
	}
}

// A manual resume during a silence episode keeps scrolling, hesitates on
// advances near the hard stop, and finally stops outright.
func TestTick_HesitationThenHardStop(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	e := newEngine(t, 10, rec)
	e.Start(t0)
	e.IngestVoiceMatch(at(0.1), 0, 0.9)

	e.Tick(at(1.0))
	e.Tick(at(2.0))
	if e.State() != scroll.Paused {
		t.Fatalf("State() at 1.9s silence = %v, want paused", e.State())
	}

	e.Resume(at(5.0))
	e.Tick(at(6.0))
	if e.State() != scroll.Scrolling || e.CurrentLine() != 1 {
		t.Fatalf("after resume: state %v line %d, want scrolling/1", e.State(), e.CurrentLine())
	}

	// The advance at 6.0s fell in the soon-silent window, so 0.2s of
	// hesitation was injected: the next boundary is 8.2s, not 8.0s.
	e.Tick(at(8.05))
	if e.CurrentLine() != 1 {
		t.Errorf("CurrentLine() at 8.05s = %d, want 1 (hesitation dwell)", e.CurrentLine())
	}

	e.Tick(at(10.2))
	if e.State() != scroll.Stopped {
		t.Errorf("State() at 10.1s silence = %v, want stopped", e.State())
	}
	if len(rec.pauses) != 1 {
		t.Errorf("pause events = %d, want 1", len(rec.pauses))
	}
}

// SignalNoVoiceActivity pauses immediately and backdates the voice
// clock so the hard stop still fires from the paused state.
func TestSignalNoVoiceActivity(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	e := newEngine(t, 10, rec)
	e.Start(t0)
	e.IngestVoiceMatch(at(0.1), 0, 0.9)

	e.SignalNoVoiceActivity(at(0.5))
	if e.State() != scroll.Paused {
		t.Fatalf("State() = %v, want paused", e.State())
	}
	e.SignalNoVoiceActivity(at(0.6))
	if len(rec.pauses) != 1 {
		t.Fatalf("pause events = %d, want 1", len(rec.pauses))
	}

	// lastVoice was backdated to 0.5−1.5 = −1.0s, so the 10s hard stop
	// lands at 9.0s even though the engine is paused.
	e.Tick(at(8.5))
	if e.State() != scroll.Paused {
		t.Fatalf("State() at 8.5s = %v, want still paused", e.State())
	}
	e.Tick(at(9.5))
	if e.State() != scroll.Stopped {
		t.Errorf("State() at 9.5s = %v, want stopped", e.State())
	}
}

// A clean run-through: predictive pacing engages after enough observed
// transitions, the set reaches the final line, and no corrections fire.
func TestRunThrough_PredictiveEngagesAndSetCompletes(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	e := newEngine(t, 20, rec)
	e.Start(t0)

	for s := 0.5; s <= 41.0; s += 0.5 {
		e.Tick(at(s))
	}

	if e.CurrentLine() != 19 {
		t.Errorf("CurrentLine() = %d, want 19 (final line)", e.CurrentLine())
	}
	if e.State() != scroll.Stopped {
		t.Errorf("State() = %v, want stopped at end of set", e.State())
	}
	if len(rec.predictive) != 1 || !rec.predictive[0] {
		t.Errorf("predictive events = %v, want exactly [true]", rec.predictive)
	}
	if len(rec.corrections) != 0 {
		t.Errorf("corrections = %v, want none on a clean run", rec.corrections)
	}
	snap := e.Snapshot()
	if !snap.Predictive {
		t.Error("Snapshot().Predictive = false, want true")
	}
	// Observed transitions match the base pace exactly, so the blend
	// must not have moved the pace.
	if math.Abs(snap.SecondsPerLine-2.0) > 1e-9 {
		t.Errorf("SecondsPerLine = %v, want unchanged 2.0", snap.SecondsPerLine)
	}
}

func TestConfidenceIsRollingMean(t *testing.T) {
	t.Parallel()

	e := newEngine(t, 10, nil)
	e.Start(t0)
	e.IngestVoiceMatch(at(0.1), 0, 0.8)
	e.IngestVoiceMatch(at(0.2), 0, 0.6)

	if got := e.Confidence(); math.Abs(got-0.7) > 1e-9 {
		t.Errorf("Confidence() = %v, want 0.7", got)
	}
}

func TestJumpToBlockAndReset(t *testing.T) {
	t.Parallel()

	e := newEngine(t, 10, nil)
	e.Start(t0)
	e.Tick(at(1.5))

	if !e.JumpToBlock("closer") {
		t.Fatal("JumpToBlock(closer) = false, want true")
	}
	if e.CurrentLine() != 9 {
		t.Fatalf("CurrentLine() = %d, want 9", e.CurrentLine())
	}
	if e.JumpToBlock("no-such-block") {
		t.Error("JumpToBlock(unknown) = true, want false")
	}

	// The jump cleared the accumulator: a full base interval is needed
	// before the next boundary. 9 is the last line, so the boundary
	// ends the set.
	e.Tick(at(2.0))
	if e.State() != scroll.Scrolling {
		t.Fatalf("State() = %v, want scrolling (accumulator cleared)", e.State())
	}

	e.Reset(-5)
	if e.CurrentLine() != 0 {
		t.Errorf("Reset(-5): CurrentLine() = %d, want 0", e.CurrentLine())
	}
	e.Reset(100)
	if e.CurrentLine() != 9 {
		t.Errorf("Reset(100): CurrentLine() = %d, want 9", e.CurrentLine())
	}
}
