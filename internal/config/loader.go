package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidSTTProviders lists the recognizer implementations this build ships.
// Used by [Validate] to warn about unrecognised provider names.
var ValidSTTProviders = []string{"deepgram", "mock"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// STT
	if cfg.STT.Provider != "" && !slices.Contains(ValidSTTProviders, cfg.STT.Provider) {
		slog.Warn("unknown stt provider name — may be a typo or third-party provider",
			"name", cfg.STT.Provider,
			"known", ValidSTTProviders,
		)
	}
	if cfg.STT.Provider == "deepgram" && cfg.STT.APIKey == "" {
		errs = append(errs, errors.New("stt.api_key is required when stt.provider is deepgram"))
	}
	if cfg.STT.Provider == "" {
		slog.Warn("no stt provider configured; sessions will track on client-supplied transcripts only")
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is negative", cfg.Audio.SampleRate))
	} else if cfg.Audio.SampleRate != 0 && cfg.Audio.SampleRate < 8000 {
		slog.Warn("audio.sample_rate is unusually low; pitch tracking degrades below 8 kHz",
			"sample_rate", cfg.Audio.SampleRate,
		)
	}

	// Scroll
	if cfg.Scroll.TargetWPM < 0 {
		errs = append(errs, fmt.Errorf("scroll.target_wpm %.1f is negative", cfg.Scroll.TargetWPM))
	}
	if cfg.Scroll.TickRate < 0 || cfg.Scroll.TickRate > 240 {
		errs = append(errs, fmt.Errorf("scroll.tick_rate %d is out of range [0, 240]", cfg.Scroll.TickRate))
	}
	if cfg.Scroll.AdaptationRate < 0 || cfg.Scroll.AdaptationRate >= 1 {
		errs = append(errs, fmt.Errorf("scroll.adaptation_rate %.2f is out of range [0, 1)", cfg.Scroll.AdaptationRate))
	}
	if cfg.Scroll.PredictiveBlend < 0 || cfg.Scroll.PredictiveBlend > 1 {
		errs = append(errs, fmt.Errorf("scroll.predictive_blend %.2f is out of range [0, 1]", cfg.Scroll.PredictiveBlend))
	}
	if cfg.Scroll.LowConfidencePause < 0 || cfg.Scroll.LowConfidencePause > 1 {
		errs = append(errs, fmt.Errorf("scroll.low_confidence_pause %.2f is out of range [0, 1]", cfg.Scroll.LowConfidencePause))
	}
	if cfg.Scroll.ResumeConfidence < 0 || cfg.Scroll.ResumeConfidence > 1 {
		errs = append(errs, fmt.Errorf("scroll.resume_confidence %.2f is out of range [0, 1]", cfg.Scroll.ResumeConfidence))
	}
	if cfg.Scroll.ResumeConfidence != 0 && cfg.Scroll.ResumeConfidence < cfg.Scroll.LowConfidencePause {
		errs = append(errs, fmt.Errorf("scroll.resume_confidence %.2f is below low_confidence_pause %.2f; the set would oscillate",
			cfg.Scroll.ResumeConfidence, cfg.Scroll.LowConfidencePause))
	}
	if cfg.Scroll.PauseAfterSilence < 0 || cfg.Scroll.HardStopAfterSilence < 0 {
		errs = append(errs, errors.New("scroll silence thresholds must not be negative"))
	}
	if cfg.Scroll.HardStopAfterSilence != 0 && cfg.Scroll.PauseAfterSilence != 0 &&
		cfg.Scroll.HardStopAfterSilence <= cfg.Scroll.PauseAfterSilence {
		errs = append(errs, fmt.Errorf("scroll.hard_stop_after_silence %.1f must exceed pause_after_silence %.1f",
			cfg.Scroll.HardStopAfterSilence, cfg.Scroll.PauseAfterSilence))
	}

	// Acoustic
	if cfg.Acoustic.SilenceFloor < 0 {
		errs = append(errs, fmt.Errorf("acoustic.silence_floor %.3f is negative", cfg.Acoustic.SilenceFloor))
	}
	if cfg.Acoustic.EmphasisRatio != 0 && cfg.Acoustic.EmphasisRatio <= 1 {
		errs = append(errs, fmt.Errorf("acoustic.emphasis_ratio %.2f must exceed 1", cfg.Acoustic.EmphasisRatio))
	}
	if cfg.Acoustic.QuestionRise != 0 && cfg.Acoustic.QuestionRise <= 1 {
		errs = append(errs, fmt.Errorf("acoustic.question_rise %.2f must exceed 1", cfg.Acoustic.QuestionRise))
	}
	if cfg.Acoustic.FFTSize != 0 && cfg.Acoustic.FFTSize < 64 {
		errs = append(errs, fmt.Errorf("acoustic.fft_size %d is below the 64-sample minimum", cfg.Acoustic.FFTSize))
	}

	// Match
	if cfg.Match.AheadWindow < 0 || cfg.Match.BehindWindow < 0 {
		errs = append(errs, errors.New("match search windows must not be negative"))
	}
	if cfg.Match.MinConfidence < 0 || cfg.Match.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("match.min_confidence %.2f is out of range [0, 1]", cfg.Match.MinConfidence))
	}
	if cfg.Match.AnchorThreshold != 0 && (cfg.Match.AnchorThreshold < 0.5 || cfg.Match.AnchorThreshold > 1) {
		errs = append(errs, fmt.Errorf("match.anchor_threshold %.2f is out of range [0.5, 1]", cfg.Match.AnchorThreshold))
	}

	return errors.Join(errs...)
}
