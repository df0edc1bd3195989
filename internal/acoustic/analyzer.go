// Package acoustic extracts per-buffer acoustic features from mono audio:
// RMS amplitude, energy tier, relative emphasis, an autocorrelation pitch
// estimate, rising-intonation (question) detection, and a spectral
// centroid. The feature ladder is ordered cheap-to-expensive with early
// exits so the analyzer stays well inside an audio callback budget: pitch
// is skipped below the silence floor and the FFT runs only for loud or
// emphasised buffers.
//
// Emphasis and question detection are relative, not absolute: each
// compares the current buffer against a small rolling window of recent
// history, so a naturally quiet performer is measured against their own
// baseline. Reset clears that history between performances.
//
// An Analyzer is not safe for concurrent use; it is owned by the audio
// capture callback goroutine.
package acoustic

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/tightfive/stagetrack/internal/rolling"
)

// Rolling-window capacities and arming thresholds. These are correctness
// constants for relative detection, not tunables.
const (
	amplitudeWindowCap = 20
	emphasisMinSamples = 5
	pitchWindowCap     = 5
	questionMinSamples = 3
)

// EnergyTier is a coarse loudness classification of one buffer.
type EnergyTier int

const (
	EnergyLow EnergyTier = iota
	EnergyMedium
	EnergyHigh
)

// String returns the tier name for logs and the event stream.
func (e EnergyTier) String() string {
	switch e {
	case EnergyLow:
		return "low"
	case EnergyMedium:
		return "medium"
	case EnergyHigh:
		return "high"
	}
	return "unknown"
}

// Features is the per-buffer analysis result. The zero value is the
// neutral feature set returned for empty or silent input.
type Features struct {
	// Amplitude is the RMS amplitude over the whole buffer, in [0, 1]
	// for normalised float input.
	Amplitude float64

	// Pitch is the fundamental-frequency estimate in Hz. Only meaningful
	// when Voiced is true.
	Pitch float64

	// Voiced reports whether a pitch estimate was obtained. False below
	// the silence floor or when no autocorrelation peak lands in the
	// human voice band.
	Voiced bool

	// Centroid is the spectral centroid in Hz, or exactly 0 when the
	// FFT path was skipped (neither high energy nor emphasis).
	Centroid float64

	// Emphasis is set when this buffer is markedly louder than the
	// trailing amplitude average.
	Emphasis bool

	// Question is set when the pitch rose noticeably above the trailing
	// pitch average, i.e. rising intonation at a phrase end.
	Question bool

	// Energy is the coarse loudness tier.
	Energy EnergyTier
}

// Config holds the analyzer parameters. Zero fields take defaults from
// DefaultConfig; SampleRate is required.
type Config struct {
	// SampleRate of the incoming buffers in Hz. Required.
	SampleRate int

	// FFTSize is the transform length for the spectral centroid.
	// Buffers shorter than FFTSize are zero-padded, longer ones
	// truncated. Default 1024.
	FFTSize int

	// SilenceFloor is the RMS amplitude below which pitch analysis is
	// skipped entirely. Default 0.01.
	SilenceFloor float64

	// LowEnergyMax and MediumEnergyMax are the two energy-tier
	// boundaries: amplitude < LowEnergyMax is low, < MediumEnergyMax is
	// medium, anything else high. Defaults 0.05 and 0.15.
	LowEnergyMax    float64
	MediumEnergyMax float64

	// EmphasisRatio is the factor by which the current amplitude must
	// exceed the rolling mean to flag emphasis. Default 1.4.
	EmphasisRatio float64

	// QuestionRise is the factor by which the newest pitch must exceed
	// the mean of the prior pitches to flag a question. Default 1.08.
	QuestionRise float64

	// PitchMinHz and PitchMaxHz bound the autocorrelation search to the
	// human voice band. Defaults 80 and 500.
	PitchMinHz float64
	PitchMaxHz float64

	// PitchWindow caps the number of samples used for autocorrelation.
	// Default 512.
	PitchWindow int
}

// DefaultConfig returns the reference tuning for the given sample rate.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:      sampleRate,
		FFTSize:         1024,
		SilenceFloor:    0.01,
		LowEnergyMax:    0.05,
		MediumEnergyMax: 0.15,
		EmphasisRatio:   1.4,
		QuestionRise:    1.08,
		PitchMinHz:      80,
		PitchMaxHz:      500,
		PitchWindow:     512,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig(c.SampleRate)
	if c.FFTSize == 0 {
		c.FFTSize = def.FFTSize
	}
	if c.SilenceFloor == 0 {
		c.SilenceFloor = def.SilenceFloor
	}
	if c.LowEnergyMax == 0 {
		c.LowEnergyMax = def.LowEnergyMax
	}
	if c.MediumEnergyMax == 0 {
		c.MediumEnergyMax = def.MediumEnergyMax
	}
	if c.EmphasisRatio == 0 {
		c.EmphasisRatio = def.EmphasisRatio
	}
	if c.QuestionRise == 0 {
		c.QuestionRise = def.QuestionRise
	}
	if c.PitchMinHz == 0 {
		c.PitchMinHz = def.PitchMinHz
	}
	if c.PitchMaxHz == 0 {
		c.PitchMaxHz = def.PitchMaxHz
	}
	if c.PitchWindow == 0 {
		c.PitchWindow = def.PitchWindow
	}
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("acoustic: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FFTSize < 64 {
		return fmt.Errorf("acoustic: fft size must be at least 64, got %d", c.FFTSize)
	}
	if c.PitchMinHz <= 0 || c.PitchMaxHz <= c.PitchMinHz {
		return fmt.Errorf("acoustic: invalid pitch band [%g, %g]", c.PitchMinHz, c.PitchMaxHz)
	}
	if c.PitchMaxHz > float64(c.SampleRate)/2 {
		return fmt.Errorf("acoustic: pitch band upper bound %g Hz exceeds Nyquist for %d Hz", c.PitchMaxHz, c.SampleRate)
	}
	if c.LowEnergyMax >= c.MediumEnergyMax {
		return fmt.Errorf("acoustic: energy tier boundaries out of order (%g >= %g)", c.LowEnergyMax, c.MediumEnergyMax)
	}
	return nil
}

// Analyzer extracts Features from successive audio buffers, keeping small
// rolling windows of amplitude and pitch history across calls.
type Analyzer struct {
	cfg Config

	fft     *fourier.FFT
	hann    []float64
	frame   []float64    // FFT input scratch, len FFTSize
	coeffs  []complex128 // FFT output scratch, len FFTSize/2+1
	binHz   float64
	minLag  int
	maxLag  int
	amps    *rolling.Window
	pitches *rolling.Window
}

// New constructs an Analyzer. Construction is the only failure point of
// this package: an invalid configuration (bad sample rate, pitch band
// above Nyquist, degenerate tier boundaries) is reported here, and
// Analyze never errors afterwards.
func New(cfg Config) (*Analyzer, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Lag bounds for the autocorrelation search: high pitch = short lag.
	minLag := int(float64(cfg.SampleRate) / cfg.PitchMaxHz)
	if minLag < 1 {
		minLag = 1
	}
	maxLag := int(float64(cfg.SampleRate) / cfg.PitchMinHz)
	if maxLag >= cfg.PitchWindow {
		maxLag = cfg.PitchWindow - 1
	}
	if minLag >= maxLag {
		return nil, fmt.Errorf("acoustic: pitch window %d too short for pitch band [%g, %g] at %d Hz",
			cfg.PitchWindow, cfg.PitchMinHz, cfg.PitchMaxHz, cfg.SampleRate)
	}

	// Precompute the Hann coefficients once by windowing a unit frame.
	hann := make([]float64, cfg.FFTSize)
	for i := range hann {
		hann[i] = 1
	}
	window.Hann(hann)

	return &Analyzer{
		cfg:     cfg,
		fft:     fourier.NewFFT(cfg.FFTSize),
		hann:    hann,
		frame:   make([]float64, cfg.FFTSize),
		coeffs:  make([]complex128, cfg.FFTSize/2+1),
		binHz:   float64(cfg.SampleRate) / float64(cfg.FFTSize),
		minLag:  minLag,
		maxLag:  maxLag,
		amps:    rolling.New(amplitudeWindowCap),
		pitches: rolling.New(pitchWindowCap),
	}, nil
}

// Analyze extracts features from one mono buffer of float samples in
// [-1, 1]. Empty buffers yield the neutral zero Features. Analyze never
// returns an error: weak or degenerate signal degrades to neutral values.
func (a *Analyzer) Analyze(samples []float64) Features {
	if len(samples) == 0 {
		return Features{}
	}

	var f Features
	f.Amplitude = rms(samples)
	f.Energy = a.classifyEnergy(f.Amplitude)

	// Relative loudness against the trailing average of prior buffers.
	a.amps.Push(f.Amplitude)
	if a.amps.Len() >= emphasisMinSamples && f.Amplitude > a.amps.MeanExcludingLast()*a.cfg.EmphasisRatio {
		f.Emphasis = true
	}

	// Pitch is the main CPU gate: below the silence floor the rest of
	// the ladder (pitch, question) is skipped outright.
	if f.Amplitude > a.cfg.SilenceFloor {
		if pitch, ok := a.estimatePitch(samples); ok {
			f.Pitch = pitch
			f.Voiced = true

			a.pitches.Push(pitch)
			if a.pitches.Len() >= questionMinSamples && pitch > a.pitches.MeanExcludingLast()*a.cfg.QuestionRise {
				f.Question = true
			}
		}
	}

	// The transform only runs when something interesting is happening.
	if f.Energy == EnergyHigh || f.Emphasis {
		f.Centroid = a.spectralCentroid(samples)
	}

	return f
}

// Reset clears the amplitude and pitch history without releasing backing
// capacity, so no rolling state leaks from one performance into the next.
func (a *Analyzer) Reset() {
	a.amps.Clear()
	a.pitches.Clear()
}

// classifyEnergy maps an RMS amplitude onto the three-tier scale.
func (a *Analyzer) classifyEnergy(amplitude float64) EnergyTier {
	switch {
	case amplitude < a.cfg.LowEnergyMax:
		return EnergyLow
	case amplitude < a.cfg.MediumEnergyMax:
		return EnergyMedium
	default:
		return EnergyHigh
	}
}

// estimatePitch searches the configured lag band for the autocorrelation
// peak over a bounded sub-window and converts the winning lag to Hz.
// Returns false when no positive-correlation peak lands inside the voice
// band.
func (a *Analyzer) estimatePitch(samples []float64) (float64, bool) {
	n := len(samples)
	if n > a.cfg.PitchWindow {
		n = a.cfg.PitchWindow
	}
	frame := samples[:n]

	maxLag := a.maxLag
	if maxLag >= n {
		maxLag = n - 1
	}
	if maxLag <= a.minLag {
		return 0, false
	}

	bestLag := 0
	bestCorr := 0.0
	for lag := a.minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i+lag < n; i++ {
			corr += frame[i] * frame[i+lag]
		}
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}
	if bestLag == 0 || bestCorr <= 0 {
		return 0, false
	}

	pitch := float64(a.cfg.SampleRate) / float64(bestLag)
	if pitch < a.cfg.PitchMinHz || pitch > a.cfg.PitchMaxHz {
		return 0, false
	}
	return pitch, true
}

// spectralCentroid applies the precomputed Hann window, transforms, and
// returns the magnitude-weighted mean frequency over the positive bins.
// Returns 0 when total magnitude is 0.
func (a *Analyzer) spectralCentroid(samples []float64) float64 {
	n := len(samples)
	if n > a.cfg.FFTSize {
		n = a.cfg.FFTSize
	}
	for i := 0; i < n; i++ {
		a.frame[i] = samples[i] * a.hann[i]
	}
	for i := n; i < a.cfg.FFTSize; i++ {
		a.frame[i] = 0
	}

	coeffs := a.fft.Coefficients(a.coeffs, a.frame)

	var weighted, total float64
	for i, c := range coeffs {
		mag := math.Hypot(real(c), imag(c))
		weighted += float64(i) * a.binHz * mag
		total += mag
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// rms returns the root-mean-square amplitude of the buffer.
func rms(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
