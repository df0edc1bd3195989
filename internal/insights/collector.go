package insights

import (
	"sync"
	"time"

	"github.com/tightfive/stagetrack/internal/script"
)

// Collector accumulates evidence during a live performance. Recording
// happens on the session loop while the report may be requested from the
// teardown path, so access is mutex-guarded.
type Collector struct {
	mu          sync.Mutex
	samples     []Sample
	pace        []PaceSample
	corrections int
	autoPauses  int
	anchorJumps int
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordMatch logs one voice-match observation.
func (c *Collector) RecordMatch(at time.Time, lineIndex int, confidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, Sample{At: at, LineIndex: lineIndex, Confidence: confidence})
}

// RecordPace logs one speaking-rate observation.
func (c *Collector) RecordPace(at time.Time, wpm float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pace = append(c.pace, PaceSample{At: at, WPM: wpm})
}

// RecordCorrection counts a hard correction.
func (c *Collector) RecordCorrection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.corrections++
}

// RecordAutoPause counts a silence or low-confidence pause.
func (c *Collector) RecordAutoPause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoPauses++
}

// RecordAnchorJump counts a spoken-anchor reposition.
func (c *Collector) RecordAnchorJump() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorJumps++
}

// Report analyzes everything collected so far against scr.
func (c *Collector) Report(scr *script.Script) Report {
	c.mu.Lock()
	samples := make([]Sample, len(c.samples))
	copy(samples, c.samples)
	pace := make([]PaceSample, len(c.pace))
	copy(pace, c.pace)
	corrections, autoPauses, anchorJumps := c.corrections, c.autoPauses, c.anchorJumps
	c.mu.Unlock()

	return Analyze(scr, samples, pace, corrections, autoPauses, anchorJumps)
}
