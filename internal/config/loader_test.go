package config_test

import (
	"strings"
	"testing"

	"github.com/tightfive/stagetrack/internal/config"
)

const fullConfig = `
server:
  listen_addr: ":9090"
  log_level: debug
stt:
  provider: deepgram
  api_key: dg-test-key
  model: nova-2
  language: en
audio:
  sample_rate: 48000
scroll:
  target_wpm: 150
  tick_rate: 60
  pause_after_silence: 1.5
  hard_stop_after_silence: 10
  low_confidence_pause: 0.4
  resume_confidence: 0.5
  adaptation_rate: 0.22
  predictive_blend: 0.7
acoustic:
  silence_floor: 0.01
  emphasis_ratio: 1.4
  question_rise: 1.08
  fft_size: 1024
match:
  ahead_window: 5
  behind_window: 2
  min_confidence: 0.3
  anchor_threshold: 0.85
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(fullConfig))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("Server.ListenAddr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("Server.LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.STT.Provider != "deepgram" || cfg.STT.Model != "nova-2" {
		t.Errorf("STT = %+v, want deepgram/nova-2", cfg.STT)
	}
	if cfg.Scroll.TargetWPM != 150 {
		t.Errorf("Scroll.TargetWPM = %v, want 150", cfg.Scroll.TargetWPM)
	}
	if cfg.Acoustic.FFTSize != 1024 {
		t.Errorf("Acoustic.FFTSize = %d, want 1024", cfg.Acoustic.FFTSize)
	}
	if cfg.Match.AheadWindow != 5 || cfg.Match.BehindWindow != 2 {
		t.Errorf("Match windows = %d/%d, want 5/2", cfg.Match.AheadWindow, cfg.Match.BehindWindow)
	}
}

func TestLoadFromReader_EmptyConfigIsValid(t *testing.T) {
	t.Parallel()

	// Every knob is optional; the zero config runs on defaults.
	if _, err := config.LoadFromReader(strings.NewReader("{}")); err != nil {
		t.Fatalf("LoadFromReader(empty): %v", err)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("scroll:\n  target_wmp: 150\n"))
	if err == nil {
		t.Fatal("LoadFromReader with misspelled field: err = nil, want error")
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Server.LogLevel = "loud"
	cfg.STT.Provider = "deepgram" // missing api_key
	cfg.Scroll.AdaptationRate = 1.5
	cfg.Scroll.PauseAfterSilence = 3
	cfg.Scroll.HardStopAfterSilence = 2
	cfg.Acoustic.EmphasisRatio = 0.9

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate: err = nil, want joined errors")
	}
	for _, want := range []string{
		"server.log_level",
		"stt.api_key",
		"scroll.adaptation_rate",
		"hard_stop_after_silence",
		"acoustic.emphasis_ratio",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate error missing %q in: %v", want, err)
		}
	}
}

func TestValidate_ResumeBelowPauseConfidence(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Scroll.LowConfidencePause = 0.6
	cfg.Scroll.ResumeConfidence = 0.4

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "oscillate") {
		t.Fatalf("Validate: err = %v, want hysteresis inversion error", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("Load(missing): err = nil, want error")
	}
}
