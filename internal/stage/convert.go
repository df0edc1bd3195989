package stage

import (
	"time"

	"github.com/tightfive/stagetrack/internal/acoustic"
	"github.com/tightfive/stagetrack/internal/config"
	"github.com/tightfive/stagetrack/internal/match"
	"github.com/tightfive/stagetrack/internal/script"
	"github.com/tightfive/stagetrack/internal/scroll"
)

// scrollConfigFrom maps the YAML tuning onto the engine config. Zero
// fields stay zero and take the engine defaults.
func scrollConfigFrom(cfg *config.Config, scr *script.Script) scroll.Config {
	return scroll.Config{
		BaseSecondsPerLine:   scr.BaseSecondsPerLine(cfg.Scroll.TargetWPM),
		PauseAfterSilence:    seconds(cfg.Scroll.PauseAfterSilence),
		HardStopAfterSilence: seconds(cfg.Scroll.HardStopAfterSilence),
		LowConfidencePause:   cfg.Scroll.LowConfidencePause,
		ResumeConfidence:     cfg.Scroll.ResumeConfidence,
		AdaptationRate:       cfg.Scroll.AdaptationRate,
		PredictiveBlend:      cfg.Scroll.PredictiveBlend,
	}
}

// acousticConfigFrom maps the YAML tuning onto the analyzer config.
func acousticConfigFrom(cfg *config.Config, sampleRate int) acoustic.Config {
	return acoustic.Config{
		SampleRate:    sampleRate,
		FFTSize:       cfg.Acoustic.FFTSize,
		SilenceFloor:  cfg.Acoustic.SilenceFloor,
		EmphasisRatio: cfg.Acoustic.EmphasisRatio,
		QuestionRise:  cfg.Acoustic.QuestionRise,
	}
}

// matchOptionsFrom builds matcher options from the YAML tuning, touching
// only the knobs the config actually sets.
func matchOptionsFrom(cfg *config.Config) []match.Option {
	var opts []match.Option
	if cfg.Match.AheadWindow > 0 || cfg.Match.BehindWindow > 0 {
		behind := cfg.Match.BehindWindow
		if behind <= 0 {
			behind = -1
		}
		opts = append(opts, match.WithSearchWindow(cfg.Match.AheadWindow, behind))
	}
	if cfg.Match.MinConfidence > 0 {
		opts = append(opts, match.WithMinConfidence(cfg.Match.MinConfidence))
	}
	if cfg.Match.AnchorThreshold > 0 {
		opts = append(opts, match.WithAnchorThreshold(cfg.Match.AnchorThreshold))
	}
	return opts
}

// seconds converts a fractional-seconds config value to a Duration.
func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
