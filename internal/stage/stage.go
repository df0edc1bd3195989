// Package stage owns one live performance session end to end. A Stage is
// created when a client opens its setlist and torn down when the set
// ends; it constructs a fresh analyzer, matcher, and scroll engine per
// performance so no adaptive state leaks between shows.
//
// Concurrency model: all tracking state (controller, collector samples,
// publish cursor) is confined to one run-loop goroutine. Driver ticks,
// recognizer transcripts, and client commands are serialized onto that
// loop through channels. The only work done on caller goroutines is
// audio normalisation and feature extraction in [Stage.PushAudio], which
// must itself be called from a single goroutine (the connection read
// loop).
package stage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tightfive/stagetrack/internal/acoustic"
	"github.com/tightfive/stagetrack/internal/config"
	"github.com/tightfive/stagetrack/internal/insights"
	"github.com/tightfive/stagetrack/internal/observe"
	"github.com/tightfive/stagetrack/internal/script"
	"github.com/tightfive/stagetrack/internal/scroll"
	"github.com/tightfive/stagetrack/pkg/audio"
	"github.com/tightfive/stagetrack/pkg/provider/stt"
)

const (
	// defaultSampleRate is assumed when the config does not pin one.
	defaultSampleRate = 48000

	// analyzeStride sends every 4th normalised buffer through feature
	// extraction. At typical 20ms client buffers that is one feature set
	// every 80ms, well under the reaction time the control law needs.
	analyzeStride = 4

	// anchorKeywordBoost is the recognition boost applied to every anchor
	// phrase when a server-side recognizer is attached.
	anchorKeywordBoost = 3.5

	// cmdBuffer bounds queued client commands and acoustic events.
	cmdBuffer = 32

	// Pace samples outside this band are discarded as recognizer noise
	// (a one-word final against a long gap, or a burst of corrections).
	minPlausibleWPM = 40
	maxPlausibleWPM = 400
)

// Options configures a new Stage. Zero-value fields take defaults.
type Options struct {
	// ID identifies the session in logs and events. Generated when empty.
	ID string

	// Config is the application config; nil means built-in defaults.
	Config *config.Config

	// Driver supplies scroll ticks. Defaults to a wall-clock ticker at
	// the configured tick rate.
	Driver scroll.Driver

	// STT, when non-nil, attaches a server-side recognizer: uploaded
	// audio is forwarded to it and its transcripts drive the tracker.
	// When nil the session tracks client-supplied transcripts only.
	STT stt.Provider

	// Sink receives position updates and control-law events. nil discards.
	Sink EventSink

	// Metrics records instrumentation. Defaults to the process-wide set.
	Metrics *observe.Metrics

	// Clock overrides time.Now for command and transcript handling.
	Clock func() time.Time
}

// Stage is one live performance session.
type Stage struct {
	id        string
	scr       *script.Script
	ctrl      *scroll.Controller
	analyzer  *acoustic.Analyzer
	collector *insights.Collector
	norm      *audio.Normalizer
	driver    scroll.Driver
	metrics   *observe.Metrics
	sink      EventSink
	clock     func() time.Time

	session  stt.SessionHandle
	partials <-chan stt.Transcript
	finals   <-chan stt.Transcript

	cmds  chan func(now time.Time)
	ticks chan time.Time
	done  chan struct{}
	wg    sync.WaitGroup

	endOnce   sync.Once
	audioWarn sync.Once

	// frameCount is confined to the PushAudio caller goroutine.
	frameCount int

	// Run-loop confined publish state.
	pauseReason string
	lastLine    int
	lastState   scroll.State
	lastConf    float64
	published   bool
	lastFinalAt time.Time
}

// New builds and starts a Stage over scr. The returned stage is live:
// its driver is ticking and, when an STT provider is configured, a
// recognition stream is open. Callers must End it.
func New(ctx context.Context, scr *script.Script, opts Options) (*Stage, error) {
	if scr == nil {
		return nil, fmt.Errorf("stage: nil script")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	id := opts.ID
	if id == "" {
		id = fmt.Sprintf("stage-%s", clock().UTC().Format("20060102T150405.000Z0700"))
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	driver := opts.Driver
	if driver == nil {
		driver = scroll.NewTickerDriver(cfg.Scroll.TickRate)
	}
	sampleRate := cfg.Audio.SampleRate
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}

	analyzer, err := acoustic.New(acousticConfigFrom(cfg, sampleRate))
	if err != nil {
		return nil, fmt.Errorf("stage: %w", err)
	}

	s := &Stage{
		id:          id,
		scr:         scr,
		analyzer:    analyzer,
		collector:   insights.NewCollector(),
		norm:        &audio.Normalizer{TargetRate: sampleRate},
		driver:      driver,
		metrics:     metrics,
		sink:        opts.Sink,
		clock:       clock,
		cmds:        make(chan func(now time.Time), cmdBuffer),
		ticks:       make(chan time.Time, 1),
		done:        make(chan struct{}),
		pauseReason: "silence",
	}
	s.ctrl = scroll.NewController(scr, scrollConfigFrom(cfg, scr), &listenerBridge{s: s}, matchOptionsFrom(cfg)...)

	if opts.STT != nil {
		session, err := opts.STT.StartStream(ctx, stt.StreamConfig{
			SampleRate: sampleRate,
			Channels:   1,
			Language:   cfg.STT.Language,
			Keywords:   anchorKeywords(scr),
		})
		if err != nil {
			return nil, fmt.Errorf("stage: start recognition stream: %w", err)
		}
		s.session = session
		s.partials = session.Partials()
		s.finals = session.Finals()
	}

	s.metrics.ActiveStages.Add(ctx, 1)

	s.wg.Add(1)
	go s.loop()
	s.driver.Run(func(now time.Time) {
		// Drop ticks the loop has not consumed yet; the engine works from
		// real time deltas, so a skipped tick costs nothing.
		select {
		case s.ticks <- now:
		default:
		}
	})

	slog.Info("stage: session started",
		"stage_id", id,
		"title", scr.Title(),
		"lines", scr.Len(),
		"sample_rate", sampleRate,
		"recognizer", s.session != nil,
	)
	return s, nil
}

// anchorKeywords turns the script's anchor phrases into recognition
// boosts so the recognizer does not mishear the navigation vocabulary.
func anchorKeywords(scr *script.Script) []stt.KeywordBoost {
	phrases := scr.AnchorPhrases()
	if len(phrases) == 0 {
		return nil
	}
	out := make([]stt.KeywordBoost, 0, len(phrases))
	for phrase := range phrases {
		out = append(out, stt.KeywordBoost{Keyword: phrase, Boost: anchorKeywordBoost})
	}
	return out
}

// loop is the session run loop. Everything that touches the controller
// or the publish cursor happens here.
func (s *Stage) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case now := <-s.ticks:
			s.pauseReason = "silence"
			s.ctrl.Tick(now)
			s.publishPosition()
		case fn := <-s.cmds:
			fn(s.clock())
			s.publishPosition()
		case tr, ok := <-s.partials:
			if !ok {
				s.partials = nil
				continue
			}
			s.handleTranscript(s.clock(), tr)
		case tr, ok := <-s.finals:
			if !ok {
				s.finals = nil
				continue
			}
			s.handleTranscript(s.clock(), tr)
		}
	}
}

// handleTranscript routes one recognizer fragment through the tracker
// and, for finals, the pace estimator.
func (s *Stage) handleTranscript(now time.Time, tr stt.Transcript) {
	kind := "partial"
	if tr.IsFinal {
		kind = "final"
	}
	ctx, span := observe.StartSpan(context.Background(), "stage.transcript.ingest")
	span.SetAttributes(observe.Attr("stage_id", s.id), observe.Attr("kind", kind))
	defer span.End()
	s.metrics.RecordFragment(ctx, kind)

	s.pauseReason = "confidence"
	start := time.Now()
	s.ctrl.Ingest(now, tr.Text)
	if strings.TrimSpace(tr.Text) != "" {
		// The analytics sample is the per-fragment match confidence, not
		// the rolling mean: crowd work has to be visible as a low run in
		// the collected series.
		conf := s.ctrl.MatchConfidence()
		s.metrics.RecordMatch(ctx, time.Since(start).Seconds(), conf)
		s.collector.RecordMatch(now, s.ctrl.CurrentLine(), conf)
	}
	if tr.IsFinal {
		s.recordPace(now, tr)
	}
	s.publishPosition()
}

// recordPace derives a words-per-minute sample from one final fragment.
// Partials never reach here: their text mutates as the recognizer
// revises, so only committed fragments count toward delivery pace.
func (s *Stage) recordPace(now time.Time, tr stt.Transcript) {
	words := len(strings.Fields(tr.Text))
	if words == 0 {
		return
	}
	dur := tr.Duration
	if dur <= 0 {
		// Recognizers without utterance timing: use the gap since the
		// previous final as the utterance length.
		if s.lastFinalAt.IsZero() {
			s.lastFinalAt = now
			return
		}
		dur = now.Sub(s.lastFinalAt)
	}
	s.lastFinalAt = now
	if dur <= 0 {
		return
	}
	wpm := float64(words) / dur.Minutes()
	if wpm < minPlausibleWPM || wpm > maxPlausibleWPM {
		return
	}
	s.collector.RecordPace(now, wpm)
}

// publishPosition emits a position event when line, state, or confidence
// moved since the last publish, plus a stopped event on the transition
// into Stopped.
func (s *Stage) publishPosition() {
	line := s.ctrl.CurrentLine()
	state := s.ctrl.State()
	conf := s.ctrl.Confidence()
	if s.published && line == s.lastLine && state == s.lastState && conf == s.lastConf {
		return
	}
	if s.published && state == scroll.Stopped && s.lastState != scroll.Stopped {
		s.emit(Event{Kind: EventStopped, Line: line})
	}
	s.lastLine, s.lastState, s.lastConf = line, state, conf
	s.published = true
	s.emit(Event{Kind: EventPosition, Line: line, State: state.String(), Confidence: conf})
}

func (s *Stage) emit(e Event) {
	if s.sink != nil {
		s.sink(e)
	}
}

// do queues fn onto the run loop. Commands arriving after End are
// silently dropped.
func (s *Stage) do(fn func(now time.Time)) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

// Start begins scrolling from the current position.
func (s *Stage) Start() { s.do(func(now time.Time) { s.ctrl.Start(now) }) }

// Pause holds the pointer until Resume.
func (s *Stage) Pause() { s.do(func(time.Time) { s.ctrl.Pause() }) }

// Resume continues a paused set.
func (s *Stage) Resume() { s.do(func(now time.Time) { s.ctrl.Resume(now) }) }

// Stop halts scrolling without tearing the session down.
func (s *Stage) Stop() { s.do(func(time.Time) { s.ctrl.Stop() }) }

// JumpToBlock repositions the set to the named block.
func (s *Stage) JumpToBlock(blockID string) {
	s.do(func(time.Time) {
		if !s.ctrl.JumpToBlock(blockID) {
			slog.Warn("stage: jump to unknown block", "stage_id", s.id, "block", blockID)
		}
	})
}

// JumpToLine repositions the set to the given line index, clamped.
func (s *Stage) JumpToLine(index int) { s.do(func(time.Time) { s.ctrl.Reset(index) }) }

// Next advances one line manually.
func (s *Stage) Next() { s.do(func(time.Time) { s.ctrl.JumpToNext() }) }

// Previous steps one line back manually.
func (s *Stage) Previous() { s.do(func(time.Time) { s.ctrl.JumpToPrevious() }) }

// PushTranscript feeds a client-side recognition fragment into the
// tracker, for deployments where the phone runs its own recognizer.
func (s *Stage) PushTranscript(text string, final bool) {
	s.do(func(now time.Time) {
		s.handleTranscript(now, stt.Transcript{Text: text, IsFinal: final})
	})
}

// PushAudio accepts one uploaded PCM frame: it is normalised to mono at
// the session rate, forwarded to the recognizer when one is attached,
// and every [analyzeStride]th frame runs through feature extraction.
// Must be called from a single goroutine.
func (s *Stage) PushAudio(frame audio.Frame) {
	select {
	case <-s.done:
		return
	default:
	}

	frame = s.norm.Normalize(frame)
	if len(frame.PCM) == 0 {
		return
	}

	if s.session != nil {
		if err := s.session.SendAudio(frame.PCM); err != nil {
			s.audioWarn.Do(func() {
				slog.Warn("stage: forwarding audio to recognizer failed",
					"stage_id", s.id, "err", err)
			})
		}
	}

	s.frameCount++
	if s.frameCount%analyzeStride != 0 {
		return
	}

	start := time.Now()
	f := s.analyzer.Analyze(frame.Samples())
	s.metrics.AnalyzeDuration.Record(context.Background(), time.Since(start).Seconds())

	if f.Emphasis {
		s.queueAcousticEvent(Event{Kind: EventEmphasis, Energy: f.Energy.String()})
	}
	if f.Question {
		s.queueAcousticEvent(Event{Kind: EventQuestion})
	}
}

// queueAcousticEvent hands a feature event to the run loop so the line
// index it carries is read on the owning goroutine. Dropped when the
// command queue is full; acoustic events are advisory.
func (s *Stage) queueAcousticEvent(e Event) {
	fn := func(time.Time) {
		e.Line = s.ctrl.CurrentLine()
		s.emit(e)
	}
	select {
	case s.cmds <- fn:
	default:
	}
}

// End tears the session down: the driver stops, the recognition stream
// closes, the run loop drains, and the collected evidence is analyzed
// into the post-show report. Safe to call more than once; every call
// returns the report.
func (s *Stage) End(ctx context.Context) insights.Report {
	s.endOnce.Do(func() {
		s.driver.Stop()
		if s.session != nil {
			if err := s.session.Close(); err != nil {
				slog.Warn("stage: recognizer close error", "stage_id", s.id, "err", err)
			}
		}
		close(s.done)
		s.wg.Wait()
		s.ctrl.Stop()
		s.metrics.ActiveStages.Add(ctx, -1)
		slog.Info("stage: session ended", "stage_id", s.id, "line", s.ctrl.CurrentLine())
	})
	return s.collector.Report(s.scr)
}

// ID returns the session identifier.
func (s *Stage) ID() string { return s.id }

// Script returns the setlist this session tracks.
func (s *Stage) Script() *script.Script { return s.scr }

// listenerBridge forwards control-law events to the collector, the
// metrics, and the client event sink. Callbacks fire synchronously on
// the run loop.
type listenerBridge struct {
	s *Stage
}

func (b *listenerBridge) OnAutoPause(line int) {
	b.s.collector.RecordAutoPause()
	b.s.metrics.RecordAutoPause(context.Background(), b.s.pauseReason)
	b.s.emit(Event{Kind: EventAutoPause, Line: line, Reason: b.s.pauseReason})
}

func (b *listenerBridge) OnAutoResume(line int) {
	b.s.emit(Event{Kind: EventAutoResume, Line: line})
}

func (b *listenerBridge) OnHardCorrection(from, to int) {
	b.s.collector.RecordCorrection()
	b.s.metrics.Corrections.Add(context.Background(), 1)
	b.s.emit(Event{Kind: EventCorrection, Line: to, FromLine: from})
}

func (b *listenerBridge) OnPredictiveMode(engaged bool) {
	b.s.emit(Event{Kind: EventPredictive, Engaged: engaged, Line: b.s.ctrl.CurrentLine()})
}

func (b *listenerBridge) OnAnchorJump(blockID string, line int) {
	b.s.collector.RecordAnchorJump()
	b.s.metrics.AnchorJumps.Add(context.Background(), 1)
	b.s.emit(Event{Kind: EventAnchorJump, BlockID: blockID, Line: line})
}
